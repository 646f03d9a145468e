package backend

import (
	"errors"
	"fmt"
)

// ErrNotConfigured 未配置后端地址
var ErrNotConfigured = errors.New("backend base url not configured")

// Error 后端调用失败：网络错误（Status 为 0）或后端明确拒绝
type Error struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status == 0:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf 提取后端状态码，非 *Error 返回 0
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}
