package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/purposesproject7/vista-sub001/internal/filter"
	"github.com/purposesproject7/vista-sub001/internal/model"
)

// CreateFilterRequest 创建筛选会话
type CreateFilterRequest struct {
	Fields  int    `json:"fields" binding:"omitempty,oneof=3 4"`
	AdminID string `json:"adminId"`
	Restore bool   `json:"restore"` // 恢复该管理员上次的选择
}

// SetFieldRequest 设置字段；value 为空表示清空
type SetFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

// FilterView 会话视图
type FilterView struct {
	ID        string       `json:"id"`
	AdminID   string       `json:"adminId,omitempty"`
	LoadError string       `json:"loadError,omitempty"`
	State     filter.State `json:"state"`
}

// CreateFilter 新建级联筛选会话并加载主数据
// POST /api/filters
func (h *Handler) CreateFilter(c *gin.Context) {
	var req CreateFilterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
	}
	n := req.Fields
	if n == 0 {
		n = h.defaultFields
	}

	adminID := req.AdminID
	var provider filter.MasterDataProvider
	if h.master != nil {
		provider = h.master
	}
	resolver, err := filter.New(filter.Options{
		Fields: model.ContextFieldOrder[:n],
		Master: provider,
		OnComplete: func(ctx model.AcademicContext) {
			if adminID == "" || h.state == nil {
				return
			}
			if err := h.state.SetContext(adminID, ctx); err != nil {
				h.logger.Warn("save admin context failed", "admin", adminID, "error", err)
			}
		},
	})
	if err != nil {
		failErr(c, err)
		return
	}

	sess := &filterSession{id: uuid.NewString(), adminID: adminID, resolver: resolver}
	logger := h.logger.With("filter", sess.id)
	sess.unsubscribe = resolver.Subscribe(func(evt filter.Event) {
		logger.Debug("filter event", "type", evt.Type, "field", evt.Field, "complete", evt.Complete)
	})

	if err := resolver.Load(c.Request.Context()); err != nil {
		// 主数据不可用时会话仍然可用，只是可选项为空
		sess.loadErr = err.Error()
		logger.Warn("filter master data load failed", "error", err)
	} else if req.Restore && adminID != "" && h.state != nil {
		if saved, ok, err := h.state.Context(adminID); err == nil && ok {
			if err := resolver.Restore(saved); err != nil {
				logger.Debug("saved context partially restored", "error", err)
			}
		}
	}

	h.sessions.put(sess)
	success(c, http.StatusCreated, viewOf(sess))
}

// GetFilter 会话当前状态
// GET /api/filters/:id
func (h *Handler) GetFilter(c *gin.Context) {
	sess, err := h.sessions.get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, http.StatusOK, viewOf(sess))
}

// SetFilterField 设置或清空一个字段，下游字段随之清空
// PATCH /api/filters/:id
func (h *Handler) SetFilterField(c *gin.Context) {
	sess, err := h.sessions.get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}

	var req SetFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if err := sess.resolver.SetField(model.ContextField(req.Field), req.Value); err != nil {
		failErr(c, err)
		return
	}
	success(c, http.StatusOK, viewOf(sess))
}

// ResetFilter 清空所有字段
// POST /api/filters/:id/reset
func (h *Handler) ResetFilter(c *gin.Context) {
	sess, err := h.sessions.get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if err := sess.resolver.Reset(); err != nil {
		failErr(c, err)
		return
	}
	success(c, http.StatusOK, viewOf(sess))
}

// CloseFilter 关闭会话
// DELETE /api/filters/:id
func (h *Handler) CloseFilter(c *gin.Context) {
	if !h.sessions.delete(c.Param("id")) {
		failErr(c, errSessionNotFound)
		return
	}
	success(c, http.StatusOK, gin.H{"closed": true})
}

func viewOf(sess *filterSession) FilterView {
	return FilterView{
		ID:        sess.id,
		AdminID:   sess.adminID,
		LoadError: sess.loadErr,
		State:     sess.resolver.Snapshot(),
	}
}
