// Package events delivers outbox events to consumers outside the service.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"cityzen/config"
	"cityzen/logx"
	"cityzen/models"
)

// Publisher sends one event. Implementations must be safe for sequential reuse.
type Publisher interface {
	Publish(ctx context.Context, e models.OutboxEvent) error
	Close() error
}

// Envelope is the wire form of an event.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

func envelope(e models.OutboxEvent) Envelope {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return Envelope{
		ID:            e.ID,
		Type:          e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    e.CreatedAt,
		Payload:       payload,
	}
}

// KafkaPublisher writes events to one topic, keyed by aggregate so events for
// the same complaint or citizen stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  max(cfg.Retries, 1),
		BatchTimeout: time.Duration(cfg.WriteMS) * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}
	return &KafkaPublisher{writer: w, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e models.OutboxEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("producer not initialized")
	}
	msg, err := message(p.topic, e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func message(topic string, e models.OutboxEvent) (kafka.Message, error) {
	value, err := json.Marshal(envelope(e))
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(e.AggregateType + ":" + e.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(e.ID)},
			{Key: "event-type", Value: []byte(e.EventType)},
		},
		Time: e.CreatedAt,
	}, nil
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	log logx.Logger
}

func NewLogPublisher(log logx.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, e models.OutboxEvent) error {
	p.log.Info(ctx, "event_published", e.EventType,
		slog.String("event_id", e.ID),
		slog.String("aggregate", e.AggregateType+":"+e.AggregateID),
		slog.String("payload", string(e.Payload)))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
