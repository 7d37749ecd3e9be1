package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/internal/repository/publisher"
)

var _ publisher.EventPublisher = (*EventPublisher)(nil)

const (
	ExchangeName = "drone.events"
	QueueName    = "drone_events"
)

// Envelope types.
const (
	TypeRecord      = "record"
	TypeRegionAlert = "region_alert"
	TypeDeviceEvent = "device_event"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type EventPublisher struct {
	ch amqpChannel
}

func NewEventPublisher(conn *amqp.Connection) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &EventPublisher{ch: ch}, nil
}

// Envelope is the message body on the exchange.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type recordMessage struct {
	DeviceID   string  `json:"device_id,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ReceivedAt int64   `json:"received_at"`
}

type eventMessage struct {
	Topic      string `json:"topic"`
	Payload    string `json:"payload"`
	ReceivedAt int64  `json:"received_at"`
}

func (p *EventPublisher) PublishAlert(ctx context.Context, alert *domain.RegionAlert) error {
	return p.publish(ctx, TypeRegionAlert, alert)
}

func (p *EventPublisher) PublishRecord(ctx context.Context, entry *domain.RecordEntry) error {
	return p.publish(ctx, TypeRecord, recordMessage{
		DeviceID:   entry.DeviceID,
		Latitude:   entry.Latitude,
		Longitude:  entry.Longitude,
		ReceivedAt: entry.ReceivedAt.Unix(),
	})
}

func (p *EventPublisher) PublishEvent(ctx context.Context, ev *domain.DeviceEvent) error {
	return p.publish(ctx, TypeDeviceEvent, eventMessage{
		Topic:      ev.Topic,
		Payload:    string(ev.Payload),
		ReceivedAt: ev.ReceivedAt.Unix(),
	})
}

func (p *EventPublisher) publish(ctx context.Context, typ string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	body, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        typ,
		Timestamp:   time.Now(),
		Body:        body,
	})
}
