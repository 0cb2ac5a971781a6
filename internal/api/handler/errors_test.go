package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"interview-coach/internal/apperr"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		typ    string
	}{
		{apperr.InvalidInput("op", "empty"), 400, ErrorTypeInvalidInput},
		{fmt.Errorf("wrap: %w", apperr.ErrSessionNotFound), 404, ErrorTypeNotFound},
		{apperr.SessionBusy("op", "s1", nil), 409, ErrorTypeConflict},
		{&apperr.SchemaValidationError{Reason: "bad"}, 502, ErrorTypeSchemaValidation},
		{&apperr.TransportError{Op: "complete"}, 503, ErrorTypeTransport},
		{apperr.Store("op", errors.New("disk")), 500, ErrorTypeStore},
		{errors.New("other"), 500, ErrorTypeInternal},
	}
	for _, tt := range tests {
		status, typ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.typ, typ, tt.err.Error())
	}
}

func TestWriteErrorMarksServerErrorsOnSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	for _, err := range []error{
		apperr.InvalidInput("op", "empty"),
		apperr.Store("op", errors.New("disk I/O error")),
	} {
		ctx, span := tp.Tracer("test").Start(context.Background(), "request")
		writeError(ctx, app.NewContext(0), err)
		span.End()
	}

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Unset, ended[0].Status().Code, "4xx 不标记为错误")

	assert.Equal(t, codes.Error, ended[1].Status().Code)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[1].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.EqualValues(t, 500, attrs["http.status_code"].AsInt64())
	assert.Equal(t, "server_error", attrs["error.category"].AsString())
	assert.Equal(t, "http", attrs["error.type"].AsString())
}
