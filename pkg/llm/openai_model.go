package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/openai/openai-go/v2/shared/constant"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL Nebius AI Studio 的 OpenAI 兼容地址
	DefaultBaseURL   = "https://api.studio.nebius.ai/v1/"
	DefaultModelName = "meta-llama/Meta-Llama-3.1-8B-Instruct-fast"
)

// OpenAIConfig OpenAI 兼容模型的连接参数
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	ModelName string
	// 单次 HTTP 请求超时，0 表示不设置，由调用方的 context 控制
	RequestTimeout time.Duration
	// SDK 内置重试次数。默认 0，重试交给 pkg/ratelimit 统一处理。
	MaxRetries int
}

// openAIOptions 该实现特有的调用参数
type openAIOptions struct {
	jsonMode bool
}

// WithJSONMode 要求服务端返回 JSON 对象 (response_format=json_object)，
// 不支持该参数的服务端会忽略它
func WithJSONMode() model.Option {
	return model.WrapImplSpecificOptFn(func(o *openAIOptions) {
		o.jsonMode = true
	})
}

// OpenAIChatModel 基于 openai-go 实现 eino 的 model.BaseChatModel，
// 可对接任意 OpenAI 兼容的 chat/completions 服务
type OpenAIChatModel struct {
	client    openai.Client
	modelName string
}

var _ model.BaseChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel 创建模型客户端
func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	baseURL := cfg.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	modelName := cfg.ModelName
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModelName
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}

	log.Info().Str("base_url", baseURL).Str("model", modelName).Msg("初始化 OpenAI 兼容模型客户端")

	return &OpenAIChatModel{
		client:    openai.NewClient(opts...),
		modelName: modelName,
	}, nil
}

// ModelName 返回实际请求的模型名
func (m *OpenAIChatModel) ModelName() string {
	return m.modelName
}

// Generate 发送一次非流式请求，返回第一条候选回复
func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("模型返回了空的 choices")
	}

	choice := resp.Choices[0]
	out := schema.AssistantMessage(choice.Message.Content, nil)
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(choice.FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	return out, nil
}

// Stream 以流的形式返回增量内容。调用方负责关闭返回的 StreamReader。
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	sr, sw := schema.Pipe[*schema.Message](8)

	go func() {
		defer sw.Close()
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(delta.Content, nil), nil); closed {
				return
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			sw.Send(nil, convertError(err))
		}
	}()

	return sr, nil
}

func (m *OpenAIChatModel) buildParams(input []*schema.Message, opts ...model.Option) (openai.ChatCompletionNewParams, error) {
	if len(input) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("消息列表不能为空")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for i, msg := range input {
		converted, err := toOpenAIMessage(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("第 %d 条消息转换失败: %w", i, err)
		}
		messages = append(messages, converted)
	}

	common := model.GetCommonOptions(&model.Options{Model: &m.modelName}, opts...)
	specific := model.GetImplSpecificOptions(&openAIOptions{}, opts...)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(*common.Model),
		Messages: messages,
	}
	if common.Temperature != nil {
		params.Temperature = openai.Float(float64(*common.Temperature))
	}
	if common.MaxTokens != nil && *common.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(*common.MaxTokens))
	}
	if common.TopP != nil {
		params.TopP = openai.Float(float64(*common.TopP))
	}
	if len(common.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: common.Stop}
	}
	if specific.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: constant.JSONObject("").Default()},
		}
	}
	return params, nil
}

func toOpenAIMessage(msg *schema.Message) (openai.ChatCompletionMessageParamUnion, error) {
	if msg == nil {
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("消息为 nil")
	}
	switch msg.Role {
	case schema.System:
		return openai.SystemMessage(msg.Content), nil
	case schema.User:
		return openai.UserMessage(msg.Content), nil
	case schema.Assistant:
		return openai.AssistantMessage(msg.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("不支持的消息角色: %s", msg.Role)
	}
}

// convertError 把 SDK 的 HTTP 错误转换为带状态码的 StatusError
func convertError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Message, Err: err}
	}
	return err
}
