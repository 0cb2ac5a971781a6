package completion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"interview-coach/internal/apperr"
	"interview-coach/internal/config"
	"interview-coach/internal/metrics"
	"interview-coach/pkg/llm"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingModel 在 context 结束前一直阻塞
type blockingModel struct{}

func (blockingModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

// ctxAwareModel 调用时 context 已取消就返回错误
type ctxAwareModel struct{}

func (ctxAwareModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema.AssistantMessage("still answered", nil), nil
}

func (ctxAwareModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func msgs() []*schema.Message {
	return []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("hi")}
}

func TestCompletePassesOptions(t *testing.T) {
	mock := llm.NewMockChatClient("  Tell me about yourself.  ", nil)
	c := NewChatClient(mock, "test-model", time.Second, metrics.New())

	out, err := c.Complete(context.Background(), msgs(), Options{MaxTokens: 1024, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Tell me about yourself.", out)

	call := mock.LastCall()
	require.NotNil(t, call)
	require.NotNil(t, call.Options.MaxTokens)
	assert.Equal(t, 1024, *call.Options.MaxTokens)
	require.NotNil(t, call.Options.Temperature)
	assert.InDelta(t, 0.7, *call.Options.Temperature, 1e-6)
	assert.Len(t, call.Messages, 2)
}

func TestCompleteEmptyReplyIsTransportError(t *testing.T) {
	c := NewChatClient(llm.NewMockChatClient("   ", nil), "m", 0, nil)

	_, err := c.Complete(context.Background(), msgs(), Options{})
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Retryable)
	assert.ErrorIs(t, err, apperr.ErrTransport)
}

func TestCompleteStatusErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		mock := llm.NewMockChatClient("", &llm.StatusError{StatusCode: tc.status})
		c := NewChatClient(mock, "m", 0, nil)

		_, err := c.Complete(context.Background(), msgs(), Options{})
		var te *apperr.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, tc.status, te.StatusCode)
		assert.Equal(t, tc.retryable, te.Retryable, "status %d", tc.status)
	}
}

func TestCompleteTimeoutIsRetryable(t *testing.T) {
	c := NewChatClient(blockingModel{}, "m", 50*time.Millisecond, nil)

	start := time.Now()
	_, err := c.Complete(context.Background(), msgs(), Options{})
	assert.Less(t, time.Since(start), 2*time.Second)

	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Retryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompleteIgnoresCallerCancellation(t *testing.T) {
	c := NewChatClient(ctxAwareModel{}, "m", time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := c.Complete(ctx, msgs(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "still answered", out)
}

func TestNewFromConfigAgainstHTTPServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"message":{"role":"assistant","content":"Welcome!"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Completion.APIKey = "k"
	cfg.Completion.BaseURL = srv.URL + "/"
	cfg.Completion.Model = "m"
	cfg.Completion.MaxRetries = 2
	cfg.Completion.Timeout = "5s"

	c, err := NewFromConfig(cfg, "", nil)
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), msgs(), Options{MaxTokens: 16})
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", out)

	cfg.Completion.APIKey = "wrong"
	bad, err := NewFromConfig(cfg, "", nil)
	require.NoError(t, err)
	before := hits.Load()
	_, err = bad.Complete(context.Background(), msgs(), Options{})
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.False(t, te.Retryable)
	assert.Equal(t, before+1, hits.Load(), "401 不应重试")
}

func TestNewFromConfigRequiresAPIKey(t *testing.T) {
	_, err := NewFromConfig(&config.Config{}, "m", nil)
	assert.Error(t, err)
}
