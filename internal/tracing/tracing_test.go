package tracing

import (
	"context"
	"fmt"
	"testing"

	"interview-coach/internal/apperr"
	"interview-coach/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc...xyz", TruncateString("abcdefghijklmnopqrstuvwxyz", 9))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestSafeAttributeValueMasksSensitiveNames(t *testing.T) {
	assert.Equal(t, "13*******78", SafeAttributeValue("candidate.phone", "13812345678", 100))
	assert.Equal(t, "plain", SafeAttributeValue("session.name", "plain", 100))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTypeLLM, ClassifyError(fmt.Errorf("x: %w", &apperr.TransportError{Op: "complete"})))
	assert.Equal(t, ErrorTypeSchema, ClassifyError(&apperr.SchemaValidationError{Reason: "bad"}))
	assert.Equal(t, ErrorTypeValidation, ClassifyError(apperr.InvalidInput("op", "empty")))
	assert.Equal(t, ErrorTypeConflict, ClassifyError(apperr.SessionBusy("op", "s1", nil)))
	assert.Equal(t, ErrorTypeDB, ClassifyError(apperr.Store("op", fmt.Errorf("disk full"))))
	assert.Equal(t, ErrorTypeInternal, ClassifyError(fmt.Errorf("other")))
}

func TestRecordAppErrorSetsAttributes(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	_, span := tp.Tracer("test").Start(context.Background(), "turn")
	RecordAppError(span, &apperr.TransportError{Op: "complete", StatusCode: 503, Retryable: true})
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, string(ErrorTypeLLM), attrs["error.type"].AsString())
	assert.True(t, attrs["llm.retryable"].AsBool())
	assert.EqualValues(t, 503, attrs["llm.status_code"].AsInt64())
}

func TestInitProviderWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
