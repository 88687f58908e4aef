// Package event publishes order lifecycle events to Kafka. The publisher is
// an optional dependency: the service runs without a broker, and publish
// failures are logged, never propagated into the lifecycle operation.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kvelder/shopcore/internal/order"
)

// Event type names carried in the envelope.
const (
	TypeOrderConfirmed     = "OrderConfirmed"
	TypeOrderCanceled      = "OrderCanceled"
	TypeOrderDeleted       = "OrderDeleted"
	TypeOrderStatusChanged = "OrderStatusChanged"
)

// Envelope wraps every published event with identity and provenance.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	OrderID    string          `json:"order_id"`
	Payload    json.RawMessage `json:"payload"`
}

// OrderPayload carries the order state for confirmed/canceled/deleted events.
type OrderPayload struct {
	OrderID string       `json:"order_id"`
	UserID  string       `json:"user_id"`
	Status  string       `json:"status"`
	Items   []order.Item `json:"items"`
	Total   string       `json:"total"`
}

// StatusChangedPayload carries a staff status transition.
type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

var _ order.Notifier = (*Publisher)(nil)

// Publisher writes lifecycle envelopes to one Kafka topic, keyed by order id
// so per-order ordering is preserved.
type Publisher struct {
	writer *kafka.Writer
	name   string
	lg     *zap.Logger
}

// NewPublisher creates a Publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic, producerName string, lg *zap.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		name: producerName,
		lg:   lg,
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, eventType, orderID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.lg.Warn("event payload marshal failed",
			zap.String("event_type", eventType), zap.Error(err))
		return
	}
	env := Envelope{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Producer:   p.name,
		OrderID:    orderID,
		Payload:    raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.lg.Warn("event envelope marshal failed",
			zap.String("event_type", eventType), zap.Error(err))
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: value,
	})
	if err != nil {
		p.lg.Warn("event publish failed",
			zap.String("event_type", eventType),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

func orderPayload(o *order.Order) OrderPayload {
	return OrderPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status,
		Items:   o.Items,
		Total:   o.Total.String(),
	}
}

func (p *Publisher) OrderConfirmed(ctx context.Context, o *order.Order) {
	p.publish(ctx, TypeOrderConfirmed, o.ID, orderPayload(o))
}

func (p *Publisher) OrderCanceled(ctx context.Context, o *order.Order) {
	p.publish(ctx, TypeOrderCanceled, o.ID, orderPayload(o))
}

func (p *Publisher) OrderDeleted(ctx context.Context, o *order.Order) {
	p.publish(ctx, TypeOrderDeleted, o.ID, orderPayload(o))
}

func (p *Publisher) OrderStatusChanged(ctx context.Context, o *order.Order, from, to string) {
	p.publish(ctx, TypeOrderStatusChanged, o.ID, StatusChangedPayload{
		OrderID: o.ID,
		From:    from,
		To:      to,
	})
}
