// Package events publishes engine events (completed scans, executed trades,
// portfolio resets) to subscribers outside the process.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is the envelope written to every sink.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Publisher delivers events. Implementations must not block the caller
// for long and never fail the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any)
}

// Fanout publishes to every non-nil publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, eventType string, data any) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, eventType, data)
		}
	}
}

// KafkaWriter is the subset of *kafka.Writer the publisher uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by event type.
type KafkaPublisher struct {
	writer KafkaWriter
	now    func() time.Time
}

// NewKafkaWriter creates an async batching writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

// NewKafkaPublisher wraps writer.
func NewKafkaPublisher(writer KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Timestamp: p.now().UTC(), Data: data})
	if err != nil {
		slog.Warn("event marshal failed", "type", eventType, "err", err)
		return
	}
	// Key ensures per-type partition ordering.
	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(eventType), Value: payload})
	if err != nil {
		slog.Error("kafka write error", "type", eventType, "err", err)
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
