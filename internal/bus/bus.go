// Package bus provides the async event bus that decouples the session
// runtime from its consumers (renderers, audit mirror).
package bus

import (
	"context"
	"sync"
	"time"
)

// Event type constants.
const (
	EventMessageAppended = "message_appended"
	EventJobProgress     = "job_progress"
	EventStreamChunk     = "stream_chunk"
	EventChannelState    = "channel_state"
)

// Event is a single runtime event published on the bus.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	Progress  int            `json:"progress,omitempty"`
	Message   string         `json:"message,omitempty"`
	Connected bool           `json:"connected,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type subscriber struct {
	fn func(*Event)
}

// EventBus fans runtime events out to per-type subscribers.
type EventBus struct {
	events chan *Event
	subs   map[string][]*subscriber
	mu     sync.RWMutex
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan *Event, 100),
		subs:   make(map[string][]*subscriber),
	}
}

// Publish enqueues an event. It never blocks the publisher: if the bus
// buffer is full the event is dropped, since every consumer is advisory
// (display or audit, never control flow).
func (b *EventBus) Publish(ev *Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.events <- ev:
	default:
	}
}

// Subscribe registers a callback for one event type and returns a
// cancel function that removes it again, so short-lived consumers
// (a session view's controller, a renderer) can detach on teardown.
func (b *EventBus) Subscribe(eventType string, callback func(*Event)) func() {
	sub := &subscriber{fn: callback}

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s == sub {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Dispatch runs the event dispatcher until the context is cancelled.
// This should be run as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.mu.RLock()
			subs := make([]*subscriber, len(b.subs[ev.Type]))
			copy(subs, b.subs[ev.Type])
			b.mu.RUnlock()

			for _, sub := range subs {
				sub.fn(ev)
			}
		}
	}
}

// Pending returns the number of queued events.
func (b *EventBus) Pending() int {
	return len(b.events)
}
