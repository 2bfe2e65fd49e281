// Package events publishes collection events to Kafka so that downstream
// consumers (the ClickHouse ingester among them) know which files changed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/storage"
)

// Event types.
const (
	SymbolSaved   = "symbol.saved"
	TaskCompleted = "task.completed"
	TaskFailed    = "task.failed"
)

// Event is the JSON payload of every message.
type Event struct {
	Type     string    `json:"type"`
	TaskID   string    `json:"task_id,omitempty"`
	Exchange string    `json:"exchange,omitempty"`
	Interval string    `json:"interval,omitempty"`
	Location string    `json:"location,omitempty"`
	Symbol   string    `json:"symbol,omitempty"`
	Key      string    `json:"key,omitempty"`
	Rows     int       `json:"rows,omitempty"`
	From     time.Time `json:"from,omitzero"`
	To       time.Time `json:"to,omitzero"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// messageWriter is the subset of *kafka.Writer the Sender uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sender publishes events to a Kafka topic.
type Sender struct {
	writer messageWriter
	logger logrus.FieldLogger
}

// NewSender creates a new Kafka sender
func NewSender(writer messageWriter, logger logrus.FieldLogger) *Sender {
	return &Sender{writer: writer, logger: logger}
}

// NewWriter builds an async writer for broker/topic.
func NewWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Compression:  kafka.Zstd,
	}
}

// Send sends raw bytes to Kafka
func (s *Sender) Send(ctx context.Context, key, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.writer.WriteMessages(writeCtx, kafka.Message{Key: key, Value: data})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// Publish serializes e as JSON keyed by symbol, or by task id for task events.
func (s *Sender) Publish(ctx context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("serialize failed: %w", err)
	}
	key := e.Symbol
	if key == "" {
		key = e.TaskID
	}
	return s.Send(ctx, []byte(key), data)
}

// SavedHook publishes a symbol.saved event after every file write. base
// carries the task, exchange, interval and save location of the writes.
func SavedHook(pub Publisher, base Event) storage.Hook {
	return func(ctx context.Context, saved storage.SavedBatch) error {
		e := base
		e.Type = SymbolSaved
		e.Symbol = saved.Symbol
		e.Key = saved.Key
		e.Rows = len(saved.Candles)
		if n := len(saved.Candles); n > 0 {
			e.From = saved.Candles[0].Date
			e.To = saved.Candles[n-1].Date
		}
		return pub.Publish(ctx, e)
	}
}
