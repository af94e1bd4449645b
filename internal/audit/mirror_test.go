package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/agentdeck/agentdeck/internal/bus"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func (f *fakeWriter) messages() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kafka.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestMirrorPublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	m := &Mirror{writer: w, topic: "audit", timeout: time.Second}

	m.publish(&bus.Event{
		Type:      bus.EventMessageAppended,
		SessionID: "sess-1",
		Role:      "user",
		Content:   "hi",
		Timestamp: time.Now(),
	})

	msgs := w.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(msgs))
	}
	if string(msgs[0].Key) != "sess-1" {
		t.Fatalf("records must be keyed by session id, got %q", msgs[0].Key)
	}
	var decoded bus.Event
	if err := json.Unmarshal(msgs[0].Value, &decoded); err != nil {
		t.Fatalf("record value is not valid JSON: %v", err)
	}
	if decoded.Type != bus.EventMessageAppended || decoded.Content != "hi" {
		t.Fatalf("unexpected record %+v", decoded)
	}
}

func TestMirrorSwallowsWriteFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	m := &Mirror{writer: w, topic: "audit", timeout: time.Second}

	// Must not panic or propagate.
	m.publish(&bus.Event{Type: bus.EventJobProgress, SessionID: "s"})
}

func TestMirrorAttachSubscribes(t *testing.T) {
	w := &fakeWriter{}
	m := &Mirror{writer: w, topic: "audit", timeout: time.Second}

	events := bus.NewEventBus()
	m.Attach(events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go events.Dispatch(ctx)

	events.Publish(&bus.Event{Type: bus.EventMessageAppended, SessionID: "s1"})
	events.Publish(&bus.Event{Type: bus.EventStreamChunk, SessionID: "s1"}) // not audited

	deadline := time.After(time.Second)
	for len(w.messages()) < 1 {
		select {
		case <-deadline:
			t.Fatalf("audited event never published")
		case <-time.After(10 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(w.messages()); got != 1 {
		t.Fatalf("stream chunks must not be audited, got %d records", got)
	}
}
