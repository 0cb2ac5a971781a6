package handler

import (
	"context"
	"errors"

	"interview-coach/internal/apperr"
	"interview-coach/internal/logger"
	"interview-coach/internal/tracing"
	"interview-coach/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"
)

// 响应中的 error_type 取值
const (
	ErrorTypeInvalidInput      = "invalid_input"
	ErrorTypeUnsupportedFormat = "unsupported_format"
	ErrorTypeNotFound          = "not_found"
	ErrorTypeConflict          = "conflict"
	ErrorTypeExtraction        = "extraction"
	ErrorTypeSchemaValidation  = "schema_validation"
	ErrorTypeTransport         = "transport"
	ErrorTypeStore             = "store"
	ErrorTypeInternal          = "internal"
)

// DegradedTurnMessage 降级回复时返回给调用方的说明
const DegradedTurnMessage = "interviewer temporarily unavailable, please retry"

// classify 把业务错误映射为 HTTP 状态码和 error_type
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return consts.StatusBadRequest, ErrorTypeInvalidInput
	case errors.Is(err, apperr.ErrUnsupportedFormat):
		return consts.StatusBadRequest, ErrorTypeUnsupportedFormat
	case errors.Is(err, apperr.ErrSessionNotFound), errors.Is(err, apperr.ErrFileNotFound):
		return consts.StatusNotFound, ErrorTypeNotFound
	case errors.Is(err, apperr.ErrSessionBusy),
		errors.Is(err, apperr.ErrSessionAlreadyStarted),
		errors.Is(err, apperr.ErrInterviewConcluded):
		return consts.StatusConflict, ErrorTypeConflict
	case errors.Is(err, apperr.ErrExtraction):
		return consts.StatusUnprocessableEntity, ErrorTypeExtraction
	case errors.Is(err, apperr.ErrSchemaValidation):
		return consts.StatusBadGateway, ErrorTypeSchemaValidation
	case errors.Is(err, apperr.ErrTransport):
		return consts.StatusServiceUnavailable, ErrorTypeTransport
	case errors.Is(err, apperr.ErrStore):
		return consts.StatusInternalServerError, ErrorTypeStore
	default:
		return consts.StatusInternalServerError, ErrorTypeInternal
	}
}

func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status, errType := classify(err)
	resp := types.ErrorResponse{Error: err.Error(), ErrorType: errType}

	var sve *apperr.SchemaValidationError
	if errors.As(err, &sve) {
		resp.Raw = tracing.TruncateString(sve.Raw, 2000)
	}

	ev := logger.Ctx(ctx).Warn()
	if status >= consts.StatusInternalServerError {
		ev = logger.Ctx(ctx).Error()
		tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	}
	ev.Err(err).Int("status", status).Str("error_type", errType).Str("path", string(c.Path())).Msg("请求处理失败")

	c.JSON(status, resp)
}
