// Package interview 负责面试对话：开场、逐轮继续，并在每一轮从已保存的历史重建模型上下文。
package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"interview-coach/internal/apperr"
	"interview-coach/internal/completion"
	"interview-coach/internal/config"
	"interview-coach/internal/constants"
	"interview-coach/internal/logger"
	"interview-coach/internal/metrics"
	"interview-coach/internal/outbox"
	"interview-coach/internal/store"
	"interview-coach/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("interview-coach/interview")

// DefaultFallbackMessage 模型调用失败时返回给候选人的文本
const DefaultFallbackMessage = "Sorry, I am unable to process your request."

const (
	phaseStart    = "start"
	phaseContinue = "continue"
)

// Config 面试流程参数
type Config struct {
	DurationMinutes int
	// MaxUserTurns 候选人最多回答的轮数，0 表示不限制
	MaxUserTurns int
	// ContextTokenBudget 上下文估算 token 上限，0 表示不截断
	ContextTokenBudget int
	MaxTokens          int
	Temperature        float32
	FallbackMessage    string
}

// ConfigFromApp 从应用配置中取面试相关的参数
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		DurationMinutes:    cfg.Interview.DurationMinutes,
		MaxUserTurns:       cfg.Interview.MaxUserTurns,
		ContextTokenBudget: cfg.Interview.ContextTokenBudget,
		MaxTokens:          cfg.Completion.MaxTokens,
		Temperature:        float32(cfg.Completion.Temperature),
		FallbackMessage:    cfg.Completion.FallbackMessage,
	}
}

// StartRequest 开始面试。SessionID 为空时新建会话。
type StartRequest struct {
	UserID         string
	SessionID      string
	SessionName    string
	JobDescription string
	ResumeText     string
}

// ContinueRequest 候选人的一次回答
type ContinueRequest struct {
	SessionID string
	Message   string
}

// TurnResult 一轮对话的结果。Degraded 为 true 时 Reply 是兜底文本，同时会返回错误。
type TurnResult struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Degraded  bool   `json:"degraded"`
	// Turn 本轮是候选人的第几次回答，开场为 0
	Turn int `json:"turn"`
	// Concluding 本轮是最后一轮，模型被要求结束面试
	Concluding bool `json:"concluding"`
}

// Service 面试编排服务。自身不缓存对话，每轮都从存储回放历史。
type Service struct {
	store   store.Store
	client  completion.Client
	locker  Locker
	events  outbox.Recorder
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

// Option 配置 Service 的可选依赖
type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithEvents(r outbox.Recorder) Option {
	return func(s *Service) { s.events = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService 未提供 Locker 时使用只有进程内锁的 SessionLocker
func NewService(st store.Store, client completion.Client, cfg Config, opts ...Option) *Service {
	if cfg.DurationMinutes <= 0 {
		cfg.DurationMinutes = DefaultDurationMinutes
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	s := &Service{
		store:  st,
		client: client,
		cfg:    cfg,
		events: outbox.NopRecorder{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = NewSessionLocker(0, 0, nil)
	}
	return s
}

// StartInterview 保存开场消息并取得面试官的第一条回复。
// 模型调用失败时返回兜底回复和错误，开场消息保留。
func (s *Service) StartInterview(ctx context.Context, req StartRequest) (*TurnResult, error) {
	const op = "interview.StartInterview"

	jd := strings.TrimSpace(req.JobDescription)
	resume := strings.TrimSpace(req.ResumeText)
	userID := strings.TrimSpace(req.UserID)
	sessionID := strings.TrimSpace(req.SessionID)
	switch {
	case jd == "":
		return nil, apperr.InvalidInput(op, "job_description 不能为空")
	case resume == "":
		return nil, apperr.InvalidInput(op, "resume 不能为空")
	case sessionID == "" && userID == "":
		return nil, apperr.InvalidInput(op, "未指定会话时 user_id 不能为空")
	}

	ctx, span := tracer.Start(ctx, "Interview.Start")
	defer span.End()
	span.SetAttributes(
		attribute.Int("interview.jd_length", len(jd)),
		attribute.String("interview.resume_preview", tracing.SafeResumeContent(resume)),
	)

	var sess *store.Session
	var err error
	if sessionID == "" {
		name := strings.TrimSpace(req.SessionName)
		if name == "" {
			name = "Interview " + s.now().Format("2006-01-02 15:04")
		}
		sess, err = s.store.CreateSession(ctx, userID, name)
	} else {
		sess, err = s.store.GetSession(ctx, sessionID)
	}
	if err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))
	log := logger.Ctx(ctx).With().Str("session_id", sess.ID).Logger()

	unlock, err := s.locker.Lock(ctx, sess.ID)
	if err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}
	defer unlock()

	existing, err := s.store.ListMessages(ctx, sess.ID)
	if err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}
	if len(existing) > 0 {
		err := apperr.SessionAlreadyStarted(op, sess.ID)
		tracing.RecordAppError(span, err)
		return nil, err
	}

	framing, err := s.store.AppendMessage(ctx, sess.ID, store.RoleUser, store.KindFraming, FramingContent(jd, resume))
	if err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}

	result := &TurnResult{SessionID: sess.ID}
	reply, err := s.complete(ctx, SystemPrompt(s.cfg.DurationMinutes, false), []store.Message{*framing})
	if err != nil {
		tracing.RecordAppError(span, err)
		log.Warn().Err(err).Msg("开场模型调用失败，返回兜底回复")
		s.metrics.ObserveTurn(phaseStart, metrics.OutcomeDegraded)
		s.recordEvent(ctx, sess.ID, constants.EventInterviewTurnFailed, map[string]any{"turn": 0, "error": err.Error()})
		result.Reply = s.cfg.FallbackMessage
		result.Degraded = true
		return result, err
	}

	if _, err := s.store.AppendMessage(ctx, sess.ID, store.RoleAssistant, store.KindTurn, reply); err != nil {
		tracing.RecordAppError(span, err)
		s.metrics.ObserveTurn(phaseStart, metrics.OutcomeError)
		return nil, err
	}

	s.metrics.ObserveTurn(phaseStart, metrics.OutcomeOK)
	s.recordEvent(ctx, sess.ID, constants.EventInterviewStarted, map[string]any{"user_id": sess.UserID, "session_name": sess.Name})
	log.Info().Int("reply_chars", len(reply)).Msg("面试已开始")

	result.Reply = reply
	return result, nil
}

// ContinueInterview 先保存候选人的回答，再回放全部历史请求下一条回复。
// 模型调用失败时候选人的回答不会回滚。
func (s *Service) ContinueInterview(ctx context.Context, req ContinueRequest) (*TurnResult, error) {
	const op = "interview.ContinueInterview"

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, apperr.InvalidInput(op, "session_id 不能为空")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.InvalidInput(op, "message 不能为空")
	}

	ctx, span := tracer.Start(ctx, "Interview.Continue")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("interview.message_preview", tracing.SafeMessageContent(req.Message)),
	)
	log := logger.Ctx(ctx).With().Str("session_id", sessionID).Logger()

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}
	defer unlock()

	history, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}
	if len(history) == 0 {
		err := apperr.InvalidInput(op, "会话尚未开始面试: session_id="+sessionID)
		tracing.RecordAppError(span, err)
		return nil, err
	}

	answered := countUserTurns(history)
	if s.cfg.MaxUserTurns > 0 && answered >= s.cfg.MaxUserTurns {
		err := apperr.InterviewConcluded(op, sessionID, answered)
		tracing.RecordAppError(span, err)
		return nil, err
	}

	userMsg, err := s.store.AppendMessage(ctx, sessionID, store.RoleUser, store.KindTurn, req.Message)
	if err != nil {
		tracing.RecordAppError(span, err)
		return nil, err
	}
	history = append(history, *userMsg)

	turn := answered + 1
	concluding := s.cfg.MaxUserTurns > 0 && turn == s.cfg.MaxUserTurns
	span.SetAttributes(attribute.Int("interview.turn", turn), attribute.Bool("interview.concluding", concluding))

	result := &TurnResult{SessionID: sessionID, Turn: turn, Concluding: concluding}
	reply, err := s.complete(ctx, SystemPrompt(s.cfg.DurationMinutes, concluding), history)
	if err != nil {
		tracing.RecordAppError(span, err)
		log.Warn().Err(err).Int("turn", turn).Msg("模型调用失败，候选人回答已保存，返回兜底回复")
		s.metrics.ObserveTurn(phaseContinue, metrics.OutcomeDegraded)
		s.recordEvent(ctx, sessionID, constants.EventInterviewTurnFailed, map[string]any{"turn": turn, "error": err.Error()})
		result.Reply = s.cfg.FallbackMessage
		result.Degraded = true
		return result, err
	}

	if _, err := s.store.AppendMessage(ctx, sessionID, store.RoleAssistant, store.KindTurn, reply); err != nil {
		tracing.RecordAppError(span, err)
		s.metrics.ObserveTurn(phaseContinue, metrics.OutcomeError)
		return nil, err
	}

	s.metrics.ObserveTurn(phaseContinue, metrics.OutcomeOK)
	s.recordEvent(ctx, sessionID, constants.EventInterviewTurnCompleted, map[string]any{"turn": turn, "concluding": concluding})
	log.Debug().Int("turn", turn).Int("reply_chars", len(reply)).Msg("面试轮次完成")

	result.Reply = reply
	return result, nil
}

// complete 回放历史构造上下文并调用模型
func (s *Service) complete(ctx context.Context, systemPrompt string, history []store.Message) (string, error) {
	history, dropped := TruncateHistory(systemPrompt, history, s.cfg.ContextTokenBudget)
	if dropped > 0 {
		logger.Ctx(ctx).Info().Int("dropped_messages", dropped).Int("budget", s.cfg.ContextTokenBudget).
			Msg("上下文超出预算，已丢弃最早的轮次")
	}

	window := BuildWindow(systemPrompt, history)
	reply, err := s.client.Complete(ctx, window, completion.Options{
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("请求面试官回复失败: %w", err)
	}
	return reply, nil
}

// recordEvent 事件写入失败不影响本轮结果，只记录日志
func (s *Service) recordEvent(ctx context.Context, sessionID, eventType string, data map[string]any) {
	if err := s.events.Record(ctx, sessionID, eventType, data); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Str("event", eventType).Msg("记录面试事件失败")
	}
}

func countUserTurns(history []store.Message) int {
	n := 0
	for _, m := range history {
		if m.Role == store.RoleUser && m.Kind == store.KindTurn {
			n++
		}
	}
	return n
}
