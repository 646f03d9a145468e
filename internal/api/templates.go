package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/purposesproject7/vista-sub001/internal/ingest"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DownloadTemplate 下载实体的上传模板
// GET /api/templates/:entity
func (h *Handler) DownloadTemplate(c *gin.Context) {
	schema, ok := ingest.Lookup(c.Param("entity"))
	if !ok {
		fail(c, http.StatusNotFound, codeNotFound, fmt.Sprintf("no template for %q", c.Param("entity")))
		return
	}

	var buf bytes.Buffer
	if err := ingest.WriteTemplate(&buf, schema); err != nil {
		h.logger.Error("generate template failed", "entity", schema.Entity, "error", err)
		fail(c, http.StatusInternalServerError, codeInternal, "failed to generate template")
		return
	}

	c.Header("Content-Disposition", contentDisposition(ingest.TemplateFileName(schema)))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// contentDisposition 同时给出 ASCII 文件名与 RFC 5987 编码文件名
func contentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", name, url.PathEscape(name))
}
