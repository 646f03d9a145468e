package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// PanelAutomationRequest 面板自动化请求
type PanelAutomationRequest struct {
	School    string         `json:"school" binding:"required"`
	Programme string         `json:"programme" binding:"required"`
	Year      string         `json:"year" binding:"required"`
	Semester  string         `json:"semester"`
	Options   map[string]any `json:"options"`
}

// AutoAssignPanels 透传到后端的自动分配
// POST /api/panels/auto-assign
func (h *Handler) AutoAssignPanels(c *gin.Context) {
	if h.panels == nil {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "backend not configured")
		return
	}
	h.panelAutomation(c, h.panels.AutoAssignPanels)
}

// AutoCreatePanels 透传到后端的自动创建
// POST /api/panels/auto-create
func (h *Handler) AutoCreatePanels(c *gin.Context) {
	if h.panels == nil {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "backend not configured")
		return
	}
	h.panelAutomation(c, h.panels.AutoCreatePanels)
}

type panelCall func(ctx context.Context, academic model.AcademicContext, options map[string]any) (map[string]any, error)

func (h *Handler) panelAutomation(c *gin.Context, call panelCall) {
	var req PanelAutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	academic := model.AcademicContext{
		School:    req.School,
		Programme: req.Programme,
		Year:      req.Year,
		Semester:  req.Semester,
	}
	out, err := call(c.Request.Context(), academic, req.Options)
	if err != nil {
		h.logger.Warn("panel automation failed", "path", c.FullPath(), "error", err)
		failErr(c, err)
		return
	}
	success(c, http.StatusOK, out)
}
