package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// GetMasterData 返回缓存的主数据（统一格式）
// GET /api/master-data
func (h *Handler) GetMasterData(c *gin.Context) {
	if h.master == nil {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "master data source not configured")
		return
	}
	data, err := h.master.MasterData(c.Request.Context())
	if err != nil {
		h.logger.Warn("master data unavailable", "error", err)
		failErr(c, err)
		return
	}

	out := *data
	if len(out.Semesters) == 0 {
		out.Semesters = model.DefaultSemesters()
	}
	success(c, http.StatusOK, out)
}

// InvalidateMasterData 丢弃主数据缓存，下次请求重新拉取
// POST /api/master-data/invalidate
func (h *Handler) InvalidateMasterData(c *gin.Context) {
	if h.master != nil {
		h.master.Invalidate()
	}
	success(c, http.StatusOK, gin.H{"invalidated": true})
}
