package model

// ErrorInfo 统一错误信息
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Envelope 统一响应外壳，各接口的历史返回格式都先转换成它
type Envelope[T any] struct {
	OK      bool       `json:"ok"`
	Payload T          `json:"payload"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// Ok 成功响应
func Ok[T any](payload T) Envelope[T] {
	return Envelope[T]{OK: true, Payload: payload}
}

// Fail 失败响应
func Fail[T any](message string) Envelope[T] {
	return Envelope[T]{OK: false, Error: &ErrorInfo{Message: message}}
}
