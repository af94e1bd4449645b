// Package audit mirrors runtime events onto a Kafka topic so the ops
// console can account for usage. The mirror is advisory: publish
// failures are logged and never affect the session.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/agentdeck/agentdeck/internal/bus"
)

// writer is the subset of kafka.Writer the mirror uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror publishes bus events as JSON records keyed by session id.
type Mirror struct {
	writer  writer
	topic   string
	timeout time.Duration
}

// NewMirror creates a mirror writing to the given brokers and topic.
func NewMirror(brokers, topic string) *Mirror {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Mirror{writer: w, topic: topic, timeout: 10 * time.Second}
}

// Attach subscribes the mirror to the event types worth auditing.
func (m *Mirror) Attach(events *bus.EventBus) {
	for _, eventType := range []string{
		bus.EventMessageAppended,
		bus.EventJobProgress,
		bus.EventChannelState,
	} {
		events.Subscribe(eventType, func(ev *bus.Event) {
			m.publish(ev)
		})
	}
}

func (m *Mirror) publish(ev *bus.Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("audit event encode failed", "event_type", ev.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
		Time:  ev.Timestamp,
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("audit publish failed", "topic", m.topic, "event_type", ev.Type, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (m *Mirror) Close() error {
	return m.writer.Close()
}
