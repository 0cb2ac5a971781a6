package outbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	"interview-coach/internal/logger"
	"interview-coach/internal/metrics"
	"interview-coach/internal/storage/models"
	"interview-coach/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	defaultMaxRetries      = 5
)

// Publisher 把一条消息投递到交换机，storage.RabbitMQ 实现了该接口
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// RelayConfig 中继参数，零值字段使用默认值
type RelayConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
	// LockRows 为 true 时用 FOR UPDATE SKIP LOCKED 取批次，多实例可并行运行。SQLite 不支持该语法。
	LockRows bool
}

// MessageRelay 轮询 outbox 表并把待发布的事件投递到消息队列
type MessageRelay struct {
	db        *gorm.DB
	publisher Publisher
	cfg       RelayConfig
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMessageRelay 创建中继
func NewMessageRelay(db *gorm.DB, publisher Publisher, cfg RelayConfig, mx *metrics.Metrics) *MessageRelay {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = defaultPollingInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &MessageRelay{
		db:        db,
		publisher: publisher,
		cfg:       cfg,
		metrics:   mx,
		tracer:    otel.Tracer("interview-coach/outbox"),
		done:      make(chan struct{}),
	}
}

// Start 在后台开始轮询，直到 Stop 被调用或 ctx 结束
func (r *MessageRelay) Start(ctx context.Context) {
	logger.Info().Dur("interval", r.cfg.PollingInterval).Int("batch", r.cfg.BatchSize).Msg("outbox 中继启动")
	ticker := time.NewTicker(r.cfg.PollingInterval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				logger.Info().Msg("outbox 中继已停止")
				return
			case <-ctx.Done():
				logger.Info().Msg("outbox 中继随上下文结束")
				return
			case <-ticker.C:
				if _, err := r.ProcessPending(ctx); err != nil {
					logger.Error().Err(err).Msg("处理 outbox 消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

// ProcessPending 处理一批待发布消息，返回本批处理的条数。
// 更新状态失败时整个事务回滚，这批消息会在下一次轮询中重新处理。
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	var messages []models.OutboxMessage

	// 空轮询不创建 span
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer tx.Rollback()

	query := tx
	if r.cfg.LockRows {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	err := query.Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Order("id asc").
		Limit(r.cfg.BatchSize).
		Find(&messages).Error
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	logger.Debug().Int("count", len(messages)).Msg("取到待发布的 outbox 消息")

	for i := range messages {
		msg := &messages[i]
		pubCtx, pubSpan := r.tracer.Start(ctx, "outbox.Publish",
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				attribute.String("messaging.destination.name", msg.TargetExchange),
				attribute.String("messaging.rabbitmq.routing_key", msg.TargetRoutingKey),
			),
		)
		err := r.publisher.PublishMessage(pubCtx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if err != nil {
			tracing.RecordRabbitMQNack(pubSpan, strconv.FormatUint(msg.ID, 10), err.Error())
		}
		pubSpan.End()

		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= r.cfg.MaxRetries {
				msg.Status = models.OutboxStatusFailed
				r.metrics.ObserveOutboxPublish(metrics.OutcomeError)
			}
			logger.Warn().Err(err).Uint64("id", msg.ID).Str("aggregate_id", msg.AggregateID).
				Int("retry", msg.RetryCount).Msg("发布 outbox 消息失败")
		} else {
			now := time.Now().UTC()
			msg.Status = models.OutboxStatusPublished
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
			r.metrics.ObserveOutboxPublish(metrics.OutcomeOK)
		}

		if err := tx.Save(msg).Error; err != nil {
			logger.Error().Err(err).Uint64("id", msg.ID).Msg("更新 outbox 消息状态失败")
			return 0, err
		}
	}

	return len(messages), tx.Commit().Error
}
