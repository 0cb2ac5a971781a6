package evaluation

import (
	"context"
	"errors"
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

var tracer = otel.Tracer("interview-coach/evaluation")

// DefaultMaxTokens 未配置时的输出上限
const DefaultMaxTokens = 1024

// Config 评估调用参数。Temperature 原样传给模型，0 是合法取值，默认值由配置加载时补齐。
type Config struct {
	MaxTokens   int
	Temperature float32
	JSONMode    bool
}

// ConfigFromApp 从应用配置中取评估参数
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		MaxTokens:   cfg.Evaluation.MaxTokens,
		Temperature: float32(cfg.Evaluation.Temperature),
		JSONMode:    cfg.Evaluation.JSONMode,
	}
}

// Aggregator 生成用户的表现报告
type Aggregator struct {
	store   store.Store
	client  completion.Client
	events  outbox.Recorder
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

type Option func(*Aggregator)

func WithEvents(r outbox.Recorder) Option {
	return func(a *Aggregator) { a.events = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func NewAggregator(st store.Store, client completion.Client, cfg Config, opts ...Option) *Aggregator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	a := &Aggregator{
		store:  st,
		client: client,
		cfg:    cfg,
		events: outbox.NopRecorder{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeReport 读取用户全部会话，调用一次模型评分并严格校验输出。
// 传输失败返回 *apperr.TransportError，输出不合规返回 *apperr.SchemaValidationError。
func (a *Aggregator) ComputeReport(ctx context.Context, userID string) (*EvaluationReport, error) {
	const op = "evaluation.ComputeReport"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.InvalidInput(op, "user_id 不能为空")
	}

	ctx, span := tracer.Start(ctx, "Evaluation.ComputeReport")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))
	log := logger.Ctx(ctx).With().Str("user_id", userID).Logger()

	histories, err := a.loadHistories(ctx, userID)
	if err != nil {
		tracing.RecordAppError(span, err)
		a.metrics.ObserveReport(metrics.OutcomeError)
		return nil, err
	}
	span.SetAttributes(attribute.Int("evaluation.sessions", len(histories)))

	report := &EvaluationReport{
		UserID:      userID,
		Sessions:    []SessionScores{},
		GeneratedAt: a.now().UTC(),
	}
	if len(histories) == 0 {
		log.Debug().Msg("用户没有会话，返回空报告")
		a.metrics.ObserveReport(metrics.OutcomeOK)
		return report, nil
	}

	known := make(map[string]string, len(histories))
	for _, h := range histories {
		known[h.Session.ID] = h.Session.Name
	}

	transcript := RenderTranscript(histories)
	span.SetAttributes(attribute.Int("evaluation.transcript_length", len(transcript)))

	raw, err := a.client.Complete(ctx, BuildPrompt(transcript), completion.Options{
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		JSONMode:    a.cfg.JSONMode,
	})
	if err != nil {
		tracing.RecordAppError(span, err)
		a.metrics.ObserveReport(metrics.OutcomeError)
		log.Warn().Err(err).Msg("评估模型调用失败")
		return nil, fmt.Errorf("请求表现评估失败: %w", err)
	}

	parsed, err := ParseReport(raw, known)
	if err != nil {
		tracing.RecordAppError(span, err)
		a.metrics.ObserveReport(metrics.OutcomeInvalid)
		var sve *apperr.SchemaValidationError
		if errors.As(err, &sve) {
			log.Warn().Str("reason", sve.Reason).Str("raw", tracing.TruncateString(raw, 500)).Msg("评估输出不符合要求")
		}
		return nil, err
	}

	report.Sessions = parsed.Sessions
	report.Overall = parsed.Overall
	report.Summary = parsed.Summary

	a.metrics.ObserveReport(metrics.OutcomeOK)
	if err := a.events.Record(ctx, userID, constants.EventReportGenerated, map[string]any{
		"sessions": len(report.Sessions),
		"overall":  report.Overall,
	}); err != nil {
		log.Warn().Err(err).Msg("记录报告事件失败")
	}
	log.Info().Int("sessions", len(report.Sessions)).Msg("表现报告已生成")
	return report, nil
}

// loadHistories 会话按最新在前，消息按时间先后
func (a *Aggregator) loadHistories(ctx context.Context, userID string) ([]SessionHistory, error) {
	sessions, err := a.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	histories := make([]SessionHistory, 0, len(sessions))
	for _, s := range sessions {
		msgs, err := a.store.ListMessages(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		histories = append(histories, SessionHistory{Session: s, Messages: msgs})
	}
	return histories, nil
}
