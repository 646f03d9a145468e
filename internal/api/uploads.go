package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/purposesproject7/vista-sub001/internal/importer"
	"github.com/purposesproject7/vista-sub001/internal/ingest"
	"github.com/purposesproject7/vista-sub001/internal/model"
	"github.com/purposesproject7/vista-sub001/internal/store"
)

// multipart 额外开销
const formOverhead = 1 << 20

// PrepareUpload 上传表格并返回预览批次
// POST /api/uploads/:entity (multipart: file, school, programme, year, semester, adminId)
func (h *Handler) PrepareUpload(c *gin.Context) {
	if h.uploads == nil {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "uploads are not enabled")
		return
	}

	// 超出上限太多的请求直接截断；正常超限由 ValidateFile 报告
	if limit := h.uploads.FileRules().MaxBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*limit+formOverhead)
	}

	opts := importer.PrepareOptions{
		Entity: c.Param("entity"),
		Context: model.AcademicContext{
			School:    c.PostForm("school"),
			Programme: c.PostForm("programme"),
			Year:      c.PostForm("year"),
			Semester:  c.PostForm("semester"),
		},
		AdminID: c.PostForm("adminId"),
	}

	fh, err := c.FormFile("file")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, codeBadRequest, "unable to read uploaded file")
			return
		}
		defer f.Close()
		opts.File = &ingest.FileInfo{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
		}
		opts.Reader = f
	case errors.Is(err, http.ErrMissingFile):
		// 交给 ValidateFile 报告 "No file selected"
	default:
		fail(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}

	batch, err := h.uploads.Prepare(c.Request.Context(), opts)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, http.StatusOK, batch)
}

// GetBatch 批次状态
// GET /api/batches/:id
func (h *Handler) GetBatch(c *gin.Context) {
	if h.uploads == nil {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "uploads are not enabled")
		return
	}
	batch, err := h.uploads.Get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, http.StatusOK, batch)
}

// SubmitBatch 提交批次，以 SSE 推送进度
// POST /api/batches/:id/submit?policy=valid_only|all_or_nothing
func (h *Handler) SubmitBatch(c *gin.Context) {
	if h.uploads == nil {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "uploads are not enabled")
		return
	}

	policy := h.defaultPolicy
	if raw := c.Query("policy"); raw != "" {
		p, err := importer.ParsePolicy(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		policy = p
	}

	progressChan, err := h.uploads.Submit(c.Request.Context(), c.Param("id"), policy)
	if err != nil {
		failErr(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fail(c, http.StatusInternalServerError, codeInternal, "streaming not supported")
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	done := c.Request.Context().Done()
	for event := range progressChan {
		select {
		case <-done:
			// 客户端已断开；提交在后台继续，结果见 GET /batches/:id
			continue
		default:
		}
		eventData, err := sonic.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// ListUploads 最近的上传记录
// GET /api/uploads?entity=&limit=
func (h *Handler) ListUploads(c *gin.Context) {
	if h.logs == nil {
		success(c, http.StatusOK, []store.UploadLog{})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.logs.ListUploadLogs(c.Request.Context(), store.ListFilter{
		Entity: c.Query("entity"),
		Limit:  limit,
	})
	if err != nil {
		h.logger.Error("list upload logs failed", "error", err)
		failErr(c, err)
		return
	}
	success(c, http.StatusOK, logs)
}
