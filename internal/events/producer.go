// Package events streams transaction lifecycle changes to Kafka so
// downstream consumers (analytics, notifications) can react without
// touching the ledger.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ticketly/internal/models"
)

// TransactionEvent is the wire payload for a lifecycle change.
type TransactionEvent struct {
	TransactionID string                   `json:"transaction_id"`
	UserID        string                   `json:"user_id"`
	EventID       string                   `json:"event_id"`
	Status        models.TransactionStatus `json:"status"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// Publisher is what the transaction service depends on; failures are
// logged by callers and never roll back a committed transition.
type Publisher interface {
	PublishTransactionEvent(ctx context.Context, event TransactionEvent) error
	Close() error
}

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

func (p *Producer) PublishTransactionEvent(ctx context.Context, event TransactionEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: msgBytes,
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher is used when Kafka is disabled in config.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransactionEvent(context.Context, TransactionEvent) error { return nil }
func (NoopPublisher) Close() error                                                    { return nil }
