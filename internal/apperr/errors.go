package apperr

import (
	"errors"
	"fmt"
)

// 基础错误类型，调用方通过 errors.Is 判断类别
var (
	ErrInvalidInput          = errors.New("输入参数无效")
	ErrUnsupportedFormat     = errors.New("不支持的文件格式")
	ErrFileNotFound          = errors.New("文件不存在")
	ErrExtraction            = errors.New("文档文本提取失败")
	ErrTransport             = errors.New("模型服务调用失败")
	ErrSchemaValidation      = errors.New("模型输出不符合约定的JSON结构")
	ErrStore                 = errors.New("会话存储操作失败")
	ErrSessionNotFound       = errors.New("会话不存在")
	ErrSessionBusy           = errors.New("会话正在处理其他请求")
	ErrSessionAlreadyStarted = errors.New("会话已开始面试")
	ErrInterviewConcluded    = errors.New("面试轮次已用完")
)

// Error 包含操作上下文的业务错误
type Error struct {
	Op      string
	BaseErr error
	Detail  string
	Err     error // 底层原因，可为空
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 同时暴露基础错误和底层原因
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Err}
}

func InvalidInput(op, detail string) error {
	return &Error{Op: op, BaseErr: ErrInvalidInput, Detail: detail}
}

func UnsupportedFormat(op, detail string) error {
	return &Error{Op: op, BaseErr: ErrUnsupportedFormat, Detail: detail}
}

func FileNotFound(op, path string) error {
	return &Error{Op: op, BaseErr: ErrFileNotFound, Detail: path}
}

func Extraction(op, detail string, err error) error {
	return &Error{Op: op, BaseErr: ErrExtraction, Detail: detail, Err: err}
}

// Store 包装持久化错误。持久化错误必须向上传递，不能被吞掉。
func Store(op string, err error) error {
	return &Error{Op: op, BaseErr: ErrStore, Err: err}
}

func SessionNotFound(op, sessionID string) error {
	return &Error{Op: op, BaseErr: ErrSessionNotFound, Detail: "session_id=" + sessionID}
}

func SessionBusy(op, sessionID string, err error) error {
	return &Error{Op: op, BaseErr: ErrSessionBusy, Detail: "session_id=" + sessionID, Err: err}
}

func SessionAlreadyStarted(op, sessionID string) error {
	return &Error{Op: op, BaseErr: ErrSessionAlreadyStarted, Detail: "session_id=" + sessionID}
}

func InterviewConcluded(op, sessionID string, turns int) error {
	return &Error{Op: op, BaseErr: ErrInterviewConcluded, Detail: fmt.Sprintf("session_id=%s, 已进行%d轮", sessionID, turns)}
}

// TransportError 表示模型服务不可达、返回错误状态或超时。
// Retryable 为 true 时调用方可以重试同一请求。
type TransportError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s (操作:%s", ErrTransport, e.Op)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(", 状态码:%d", e.StatusCode)
	}
	msg += ")"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// SchemaValidationError 表示模型返回的文本无法解析为约定的结构。
// Raw 保存原始输出，便于排查。
type SchemaValidationError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrSchemaValidation, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrSchemaValidation, e.Reason)
}

func (e *SchemaValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSchemaValidation}
	}
	return []error{ErrSchemaValidation, e.Err}
}

// IsRetryable 判断错误链中是否存在可重试的传输错误
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}
