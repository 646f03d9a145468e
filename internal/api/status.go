package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResponse 系统状态
type StatusResponse struct {
	Version         string  `json:"version,omitempty"`
	UptimeSeconds   int64   `json:"uptimeSeconds"`
	Database        string  `json:"database"`              // ok / error / disabled
	MasterDataCache bool    `json:"masterDataCached"`      // 是否有缓存
	MasterDataAge   float64 `json:"masterDataAgeSeconds"`  // 缓存年龄
	FilterSessions  int     `json:"filterSessions"`        // 活跃筛选会话
	BackendReady    bool    `json:"backendReady"`          // 是否配置了后端
	LastAdminID     string  `json:"lastAdminId,omitempty"` // 最近使用的管理员
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		Database:       "disabled",
		FilterSessions: h.sessions.count(),
		BackendReady:   h.panels != nil,
	}

	if h.logs != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		resp.Database = "ok"
		if err := h.logs.Ping(ctx); err != nil {
			resp.Database = "error"
		}
	}
	if h.master != nil {
		if age, ok := h.master.Age(); ok {
			resp.MasterDataCache = true
			resp.MasterDataAge = age.Seconds()
		}
	}
	if h.state != nil {
		resp.LastAdminID = h.state.LastAdminID()
	}

	success(c, http.StatusOK, resp)
}
