package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"zero-trust-session-core/internal/telemetry"
)

// kafkaWriter is the part of *kafka.Writer the producer uses.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer writes events as JSON to a Kafka topic, keyed by user id so one
// user's events stay ordered within a partition.
type KafkaProducer struct {
	writer kafkaWriter
}

// NewKafkaProducer returns a producer for topic, or nil when brokers or topic is empty.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// Emit writes event. A nil producer or event is a no-op.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg := kafka.Message{Value: payload, Time: event.CreatedAt}
	if event.UserID != "" {
		msg.Key = []byte(event.UserID)
	}
	return p.writer.WriteMessages(writeCtx, msg)
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
