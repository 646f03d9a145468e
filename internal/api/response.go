package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/purposesproject7/vista-sub001/internal/backend"
	"github.com/purposesproject7/vista-sub001/internal/filter"
	"github.com/purposesproject7/vista-sub001/internal/importer"
	"github.com/purposesproject7/vista-sub001/internal/model"
)

// 错误码
const (
	codeBadRequest   = "bad_request"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeBackend      = "backend_error"
	codeUnavailable  = "unavailable"
	codeInternal     = "internal_error"
	codeInvalidInput = "invalid_input"
)

func success(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, model.Ok(payload))
}

func fail(c *gin.Context, status int, code, message string) {
	env := model.Fail[any](message)
	env.Error.Code = code
	c.AbortWithStatusJSON(status, env)
}

// failErr 按错误类型选择状态码
func failErr(c *gin.Context, err error) {
	status, code := classify(err)
	fail(c, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, importer.ErrBatchNotFound), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, importer.ErrUnknownEntity):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, importer.ErrBatchNotReady):
		return http.StatusConflict, codeConflict
	case errors.Is(err, filter.ErrUnknownField),
		errors.Is(err, filter.ErrPrefixUnset),
		errors.Is(err, filter.ErrUnknownOption):
		return http.StatusUnprocessableEntity, codeInvalidInput
	case errors.Is(err, filter.ErrClosed):
		return http.StatusGone, codeNotFound
	case errors.Is(err, backend.ErrNotConfigured):
		return http.StatusServiceUnavailable, codeUnavailable
	}

	var be *backend.Error
	if errors.As(err, &be) {
		return http.StatusBadGateway, codeBackend
	}
	return http.StatusInternalServerError, codeInternal
}
