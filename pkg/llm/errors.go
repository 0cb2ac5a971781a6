package llm

import (
	"fmt"
	"net/http"
)

// StatusError 模型服务返回了非 2xx 状态码
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("模型服务返回状态码 %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("模型服务返回状态码 %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Retryable 限流、超时和服务端错误可以重试，其余 4xx 重试也不会成功
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}
