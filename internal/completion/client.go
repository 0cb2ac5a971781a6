// Package completion 封装面试和评估使用的对话补全调用。
// 调用方只拿到回复文本或 *apperr.TransportError，不接触具体模型服务的协议。
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interview-coach/internal/apperr"
	"interview-coach/internal/config"
	"interview-coach/internal/logger"
	"interview-coach/internal/metrics"
	"interview-coach/internal/tracing"
	"interview-coach/pkg/llm"
	"interview-coach/pkg/ratelimit"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("interview-coach/completion")

// Options 单次调用参数
type Options struct {
	MaxTokens   int
	Temperature float32
	// JSONMode 请求服务端只输出 JSON 对象
	JSONMode bool
}

// Client 对话补全客户端
type Client interface {
	Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error)
}

// ChatClient 基于 eino BaseChatModel 的实现
type ChatClient struct {
	model     model.BaseChatModel
	modelName string
	timeout   time.Duration
	metrics   *metrics.Metrics
}

var _ Client = (*ChatClient)(nil)

// NewChatClient timeout<=0 时不设置整体超时
func NewChatClient(m model.BaseChatModel, modelName string, timeout time.Duration, mx *metrics.Metrics) *ChatClient {
	return &ChatClient{model: m, modelName: modelName, timeout: timeout, metrics: mx}
}

// NewFromConfig 按配置创建带限流和重试的客户端。modelName 为空时使用 completion.model。
func NewFromConfig(cfg *config.Config, modelName string, mx *metrics.Metrics) (*ChatClient, error) {
	if modelName == "" {
		modelName = cfg.Completion.Model
	}
	base, err := llm.NewOpenAIChatModel(llm.OpenAIConfig{
		APIKey:    cfg.Completion.APIKey,
		BaseURL:   cfg.Completion.BaseURL,
		ModelName: modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("创建模型客户端失败: %w", err)
	}

	limited := ratelimit.NewLLMWithRateLimit(
		base,
		cfg.QPMForModel(modelName),
		cfg.Completion.MaxRetries,
		time.Duration(cfg.Completion.RetryWaitSeconds)*time.Second,
	)
	timeout := config.GetDuration(cfg.Completion.Timeout, 60*time.Second)

	logger.Info().Str("model", modelName).Dur("timeout", timeout).Int("qpm", cfg.QPMForModel(modelName)).Msg("对话补全客户端已就绪")
	return NewChatClient(limited, modelName, timeout, mx), nil
}

// Complete 发送消息并返回回复文本。
// 请求方断开不会中断正在进行的调用，调用只受超时约束。
func (c *ChatClient) Complete(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	const op = "completion.Complete"

	callCtx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, c.timeout)
		defer cancel()
	}

	callCtx, span := tracer.Start(callCtx, "Completion.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.modelName),
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.max_tokens", opts.MaxTokens),
		attribute.Bool("llm.json_mode", opts.JSONMode),
	)

	modelOpts := []model.Option{model.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	if opts.JSONMode {
		modelOpts = append(modelOpts, llm.WithJSONMode())
	}

	start := time.Now()
	resp, err := c.model.Generate(callCtx, messages, modelOpts...)
	elapsed := time.Since(start)

	if err != nil {
		te := toTransportError(op, err)
		c.metrics.ObserveCompletion(c.modelName, metrics.OutcomeError, elapsed)
		tracing.RecordAppError(span, te)
		logger.Ctx(ctx).Warn().Err(err).Str("model", c.modelName).Dur("elapsed", elapsed).
			Bool("retryable", te.Retryable).Msg("模型调用失败")
		return "", te
	}

	content := ""
	if resp != nil {
		content = strings.TrimSpace(resp.Content)
	}
	if content == "" {
		te := &apperr.TransportError{Op: op, Retryable: true, Detail: "模型返回了空内容"}
		c.metrics.ObserveCompletion(c.modelName, metrics.OutcomeError, elapsed)
		tracing.RecordAppError(span, te)
		return "", te
	}

	c.metrics.ObserveCompletion(c.modelName, metrics.OutcomeOK, elapsed)
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		usage := resp.ResponseMeta.Usage
		c.metrics.AddCompletionTokens(c.modelName, usage.PromptTokens, usage.CompletionTokens)
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", usage.PromptTokens),
			attribute.Int("llm.completion_tokens", usage.CompletionTokens),
		)
	}
	return content, nil
}

// toTransportError 把模型调用的各种失败统一成 TransportError
func toTransportError(op string, err error) *apperr.TransportError {
	var te *apperr.TransportError
	if errors.As(err, &te) {
		return te
	}

	out := &apperr.TransportError{Op: op, Err: err}
	var se *llm.StatusError
	switch {
	case errors.As(err, &se):
		out.StatusCode = se.StatusCode
		out.Retryable = se.Retryable()
	case errors.Is(err, context.DeadlineExceeded):
		out.Retryable = true
		out.Detail = "调用超时"
	default:
		out.Retryable = ratelimit.IsRetryable(err)
	}
	return out
}
