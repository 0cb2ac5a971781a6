package tracing

import (
	"errors"

	"interview-coach/internal/apperr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 定义错误类型，便于分类和过滤
type ErrorType string

const (
	// ErrorTypeHTTP HTTP错误
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeDB 数据库错误
	ErrorTypeDB ErrorType = "db"
	// ErrorTypeRedis Redis错误
	ErrorTypeRedis ErrorType = "redis"
	// ErrorTypeRabbitMQ RabbitMQ错误
	ErrorTypeRabbitMQ ErrorType = "rabbitmq"
	// ErrorTypeLLM 模型服务错误
	ErrorTypeLLM ErrorType = "llm"
	// ErrorTypeSchema 模型输出结构错误
	ErrorTypeSchema ErrorType = "schema_validation"
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConflict 会话状态冲突
	ErrorTypeConflict ErrorType = "conflict"
)

// RecordError 记录错误，添加统一的错误类型和详情
func RecordError(span trace.Span, err error, errorType ErrorType) {
	RecordErrorWithInfo(span, err, errorType)
}

// RecordErrorWithInfo 记录错误并添加额外信息
func RecordErrorWithInfo(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// ClassifyError 根据业务错误类别选择 ErrorType
func ClassifyError(err error) ErrorType {
	var te *apperr.TransportError
	switch {
	case errors.As(err, &te):
		return ErrorTypeLLM
	case errors.Is(err, apperr.ErrSchemaValidation):
		return ErrorTypeSchema
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrUnsupportedFormat), errors.Is(err, apperr.ErrFileNotFound):
		return ErrorTypeValidation
	case errors.Is(err, apperr.ErrSessionBusy), errors.Is(err, apperr.ErrSessionAlreadyStarted), errors.Is(err, apperr.ErrInterviewConcluded):
		return ErrorTypeConflict
	case errors.Is(err, apperr.ErrStore), errors.Is(err, apperr.ErrSessionNotFound):
		return ErrorTypeDB
	default:
		return ErrorTypeInternal
	}
}

// RecordAppError 按业务错误类别记录错误
func RecordAppError(span trace.Span, err error) {
	if err == nil {
		return
	}
	var attrs []attribute.KeyValue
	var te *apperr.TransportError
	if errors.As(err, &te) {
		attrs = append(attrs,
			attribute.Bool("llm.retryable", te.Retryable),
			attribute.Int("llm.status_code", te.StatusCode),
		)
	}
	RecordErrorWithInfo(span, err, ClassifyError(err), attrs...)
}

// RecordHTTPError 专门记录HTTP错误
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	if span == nil || err == nil {
		return
	}

	var errorCategory string
	switch {
	case statusCode >= 400 && statusCode < 500:
		errorCategory = "client_error"
	case statusCode >= 500:
		errorCategory = "server_error"
	default:
		errorCategory = "unknown"
	}

	RecordErrorWithInfo(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", errorCategory),
	)
}

// RecordRabbitMQNack 记录RabbitMQ消息被拒绝的错误
func RecordRabbitMQNack(span trace.Span, messageID string, reason string) {
	if span == nil {
		return
	}

	errMsg := "message not acknowledged by broker"
	if reason != "" {
		errMsg = reason
	}

	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("error.message", errMsg),
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.error_type", "nack"),
		attribute.Bool("messaging.rabbitmq.confirmed", false),
	)
	span.SetStatus(codes.Error, errMsg)
}
