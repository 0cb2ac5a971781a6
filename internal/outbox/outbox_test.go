package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"interview-coach/internal/constants"
	"interview-coach/internal/storage"
	"interview-coach/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"
)

type published struct {
	exchange, routingKey string
	body                 []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []published
}

func (p *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{exchange, routingKey, body})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB()
}

func TestRecorderWritesPendingEvent(t *testing.T) {
	db := newDB(t)
	rec := NewGormRecorder(db, "interview.events")

	require.NoError(t, rec.Record(context.Background(), "s1", constants.EventInterviewStarted, map[string]any{"user_id": "u1"}))

	var rows []models.OutboxMessage
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, models.OutboxStatusPending, rows[0].Status)
	assert.Equal(t, "interview.events", rows[0].TargetExchange)
	assert.Equal(t, constants.EventInterviewStarted, rows[0].TargetRoutingKey)

	var ev Event
	require.NoError(t, json.Unmarshal(rows[0].Payload, &ev))
	assert.Equal(t, "s1", ev.AggregateID)
	assert.Equal(t, constants.EventInterviewStarted, ev.Type)
}

func TestRelayPublishesPending(t *testing.T) {
	db := newDB(t)
	rec := NewGormRecorder(db, "ex")
	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, "s1", constants.EventInterviewStarted, nil))
	require.NoError(t, rec.Record(ctx, "s1", constants.EventInterviewTurnCompleted, nil))

	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, RelayConfig{}, nil)

	n, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, constants.EventInterviewStarted, pub.sent[0].routingKey)
	assert.Equal(t, constants.EventInterviewTurnCompleted, pub.sent[1].routingKey)

	var pending int64
	require.NoError(t, db.Model(&models.OutboxMessage{}).Where("status = ?", models.OutboxStatusPending).Count(&pending).Error)
	assert.Zero(t, pending)

	n, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayMarksFailedAfterMaxRetries(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	require.NoError(t, NewGormRecorder(db, "ex").Record(ctx, "s1", constants.EventReportGenerated, nil))

	relay := NewMessageRelay(db, &fakePublisher{err: errors.New("channel closed")}, RelayConfig{MaxRetries: 2}, nil)

	_, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	var msg models.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)

	_, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.OutboxStatusFailed, msg.Status)
	assert.Equal(t, "channel closed", msg.ErrorMessage)
}

func TestRelayMarksPublishSpanAsNack(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	require.NoError(t, NewGormRecorder(db, "ex").Record(ctx, "s1", constants.EventInterviewTurnFailed, nil))

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	relay := NewMessageRelay(db, &fakePublisher{err: errors.New("channel closed")}, RelayConfig{}, nil)
	relay.tracer = tp.Tracer("test")

	_, err := relay.ProcessPending(ctx)
	require.NoError(t, err)

	var msg models.OutboxMessage
	require.NoError(t, db.First(&msg).Error)

	var publish sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "outbox.Publish" {
			publish = s
		}
	}
	require.NotNil(t, publish)
	assert.Equal(t, codes.Error, publish.Status().Code)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range publish.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "nack", attrs["messaging.error_type"].AsString())
	assert.Equal(t, "channel closed", attrs["error.message"].AsString())
	assert.Equal(t, strconv.FormatUint(msg.ID, 10), attrs["messaging.message_id"].AsString())
	assert.Equal(t, constants.EventInterviewTurnFailed, attrs["messaging.rabbitmq.routing_key"].AsString())
}

func TestRelayStartStop(t *testing.T) {
	db := newDB(t)
	require.NoError(t, NewGormRecorder(db, "ex").Record(context.Background(), "s1", constants.EventInterviewStarted, nil))

	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, RelayConfig{PollingInterval: 10 * time.Millisecond}, nil)
	relay.Start(context.Background())

	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	relay.Stop()
	relay.Stop()
}
