package ratelimit

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedLLMModel 对LLM模型的调用进行限流和重试的代理
type RateLimitedLLMModel struct {
	original    model.BaseChatModel
	rateLimiter *TokenBucket
}

var _ model.BaseChatModel = (*RateLimitedLLMModel)(nil)

// NewRateLimitedLLMModel 创建一个新的限流LLM模型代理
func NewRateLimitedLLMModel(original model.BaseChatModel, qpm int) *RateLimitedLLMModel {
	return &RateLimitedLLMModel{
		original:    original,
		rateLimiter: NewTokenBucket(qpm, qpm/2), // 容量设为QPM的一半，允许一定的突发流量
	}
}

// WithRetryPolicy 设置重试策略
func (rl *RateLimitedLLMModel) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedLLMModel {
	rl.rateLimiter.WithRetryPolicy(waitTime, maxRetries)
	return rl
}

// Generate 代理Generate方法，增加限流和重试逻辑
func (rl *RateLimitedLLMModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var genErr error
		response, genErr = rl.original.Generate(ctx, messages, options...)
		return genErr
	})
	return response, err
}

// Stream 代理Stream方法，只对建立流的过程重试
func (rl *RateLimitedLLMModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var stream *schema.StreamReader[*schema.Message]
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})
	return stream, err
}

// NewLLMWithRateLimit 根据模型 QPM 配置创建带限流的模型。
// qpm 已由调用方按模型解析，<=0 时使用默认值 30。
func NewLLMWithRateLimit(original model.BaseChatModel, qpm int, maxRetries int, retryWaitTime time.Duration) model.BaseChatModel {
	if qpm <= 0 {
		qpm = 30
	}
	if retryWaitTime <= 0 {
		retryWaitTime = time.Second
	}

	limitedModel := NewRateLimitedLLMModel(original, qpm)
	limitedModel.WithRetryPolicy(retryWaitTime, maxRetries)
	return limitedModel
}
