// Package outbox 实现事务性发件箱：业务代码把事件写入 outbox 表，
// 由 MessageRelay 异步投递到 RabbitMQ。
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"interview-coach/internal/storage/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder 记录一条待发布事件
type Recorder interface {
	Record(ctx context.Context, aggregateID, eventType string, payload any) error
}

// Event 投递到消息队列的事件信封
type Event struct {
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Data        any       `json:"data,omitempty"`
}

// GormRecorder 把事件写入 outbox_messages，事件类型同时作为路由键
type GormRecorder struct {
	db       *gorm.DB
	exchange string
}

var _ Recorder = (*GormRecorder)(nil)

func NewGormRecorder(db *gorm.DB, exchange string) *GormRecorder {
	return &GormRecorder{db: db, exchange: exchange}
}

func (r *GormRecorder) Record(ctx context.Context, aggregateID, eventType string, payload any) error {
	now := time.Now().UTC()
	body, err := json.Marshal(Event{Type: eventType, AggregateID: aggregateID, OccurredAt: now, Data: payload})
	if err != nil {
		return fmt.Errorf("序列化事件 %s 失败: %w", eventType, err)
	}

	msg := models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          datatypes.JSON(body),
		TargetExchange:   r.exchange,
		TargetRoutingKey: eventType,
		Status:           models.OutboxStatusPending,
		CreatedAt:        now,
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("写入 outbox 失败: %w", err)
	}
	return nil
}

// NopRecorder 未启用事件时使用
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, string, string, any) error { return nil }
