package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

// MockResponse 定义了 MockChatClient 的单次预期响应
type MockResponse struct {
	Content string
	Error   error
}

// MockCall 记录一次调用收到的消息和参数
type MockCall struct {
	Messages []*schema.Message
	Options  *model.Options
}

// MockChatClient 用于测试的 model.BaseChatModel 模拟实现，并发安全
type MockChatClient struct {
	mu sync.Mutex

	// 固定响应
	ExpectedResponse string
	ExpectedError    error

	// 顺序响应
	SequentialResponses []MockResponse
	ResponseIndex       int
	IsSequential        bool

	// 每次调用前执行，可用于模拟慢速模型或检查并发
	BeforeGenerate func(ctx context.Context)

	calls []MockCall
}

var _ model.BaseChatModel = (*MockChatClient)(nil)

// NewMockChatClient 创建一个返回固定响应的 MockChatClient
func NewMockChatClient(expectedResponse string, expectedError error) *MockChatClient {
	return &MockChatClient{
		ExpectedResponse: expectedResponse,
		ExpectedError:    expectedError,
	}
}

// NewMockChatClientSequential 创建一个按顺序返回不同响应的 MockChatClient
func NewMockChatClientSequential(responses []MockResponse) *MockChatClient {
	if len(responses) == 0 {
		log.Warn().Msg("[MockChatClient] 未配置任何响应，所有调用都将返回错误")
		responses = []MockResponse{{Error: errors.New("mock client has no responses configured")}}
	}
	return &MockChatClient{
		SequentialResponses: responses,
		IsSequential:        true,
	}
}

// Generate 记录收到的消息并返回预设响应
func (m *MockChatClient) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if m.BeforeGenerate != nil {
		m.BeforeGenerate(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	received := make([]*schema.Message, len(input))
	for i, msg := range input {
		c := *msg
		received[i] = &c
	}
	m.calls = append(m.calls, MockCall{
		Messages: received,
		Options:  model.GetCommonOptions(&model.Options{}, opts...),
	})
	log.Debug().Int("messages", len(input)).Msg("[MockChatClient] 收到 Generate 请求")

	if m.IsSequential {
		if m.ResponseIndex >= len(m.SequentialResponses) {
			return nil, errors.New("mock client has run out of sequential responses")
		}
		resp := m.SequentialResponses[m.ResponseIndex]
		m.ResponseIndex++
		if resp.Error != nil {
			return nil, resp.Error
		}
		return schema.AssistantMessage(resp.Content, nil), nil
	}

	if m.ExpectedError != nil {
		return nil, m.ExpectedError
	}
	return schema.AssistantMessage(m.ExpectedResponse, nil), nil
}

// Stream 把 Generate 的结果作为单个分片返回
func (m *MockChatClient) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls 返回所有调用记录的副本
func (m *MockChatClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCall 返回最后一次调用，没有调用时返回 nil
func (m *MockChatClient) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// CallCount 返回 Generate 被调用的次数
func (m *MockChatClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
