package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-coach/pkg/llm"
)

func TestTokenBucketAllowRespectsCapacity(t *testing.T) {
	tb := NewTokenBucket(60, 2)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "桶已空")
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&llm.StatusError{StatusCode: 429}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &llm.StatusError{StatusCode: 502})))
	assert.False(t, IsRetryable(&llm.StatusError{StatusCode: 400}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsRetryable(errors.New("invalid request")))
	assert.False(t, IsRetryable(nil))
}

func TestRateLimitedModelRetriesTransientErrors(t *testing.T) {
	mock := llm.NewMockChatClientSequential([]llm.MockResponse{
		{Error: &llm.StatusError{StatusCode: 503}},
		{Content: "ok"},
	})
	limited := NewLLMWithRateLimit(mock, 6000, 2, time.Millisecond)

	out, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Content)
	assert.Equal(t, 2, mock.CallCount())
}

func TestRateLimitedModelDoesNotRetryClientErrors(t *testing.T) {
	mock := llm.NewMockChatClientSequential([]llm.MockResponse{
		{Error: &llm.StatusError{StatusCode: 401}},
		{Content: "never"},
	})
	limited := NewLLMWithRateLimit(mock, 6000, 3, time.Millisecond)

	_, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRateLimitedModelStopsAfterMaxRetries(t *testing.T) {
	mock := llm.NewMockChatClient("", &llm.StatusError{StatusCode: 500})
	limited := NewLLMWithRateLimit(mock, 6000, 2, time.Millisecond)

	_, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, 3, mock.CallCount(), "首次调用加两次重试")
}
