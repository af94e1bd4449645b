// Package channel maintains the persistent duplex connection to the
// console backend and dispatches inbound push frames.
package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/bus"
)

// Inbound frame types.
const (
	FrameJobProgress = "job_progress"
	FrameStreamChunk = "stream_chunk"
	FrameConnected   = "connected"
)

// Default reconnect backoff bounds.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Frame is a structured message on the duplex channel. Inbound frames
// are discriminated by Type; outbound frames are arbitrary caller JSON.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Progress  int    `json:"progress,omitempty"`
	Message   string `json:"message,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Options configures a Manager.
type Options struct {
	URL           string
	Header        http.Header
	AutoReconnect bool
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

// Manager owns one websocket connection for a session view: it dials,
// reads inbound frames onto the event bus, and schedules reconnects
// with capped exponential backoff after every close.
type Manager struct {
	opts   Options
	events *bus.EventBus

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	attempt   int
	timer     *time.Timer
	closed    bool
}

// NewManager creates a channel manager publishing inbound frames to the
// given bus.
func NewManager(opts Options, events *bus.EventBus) *Manager {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	return &Manager{opts: opts, events: events}
}

// Connect dials the channel endpoint. On success the reconnect attempt
// counter resets to zero and a reader goroutine takes over the socket.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, m.opts.URL, m.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		slog.Warn("channel dial failed", "url", m.opts.URL, "error", err)
		m.scheduleReconnect()
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.connected = true
	m.attempt = 0
	m.mu.Unlock()

	slog.Info("channel connected", "url", m.opts.URL)
	m.events.Publish(&bus.Event{Type: bus.EventChannelState, Connected: true})

	go m.readLoop(conn)
	return nil
}

// Connected reports whether the channel is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Attempt returns the current reconnect attempt counter.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Send writes a frame best-effort: when the channel is not connected
// the call is a silent no-op. Callers needing guaranteed delivery use
// the request/response or job paths instead.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn, connected := m.conn, m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		return nil
	}
	return conn.WriteJSON(v)
}

// Reconnect forces a close-then-dial cycle immediately, resetting
// backoff state and bypassing any scheduled delay.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.attempt = 0
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return m.Connect(ctx)
}

// Close tears the channel down and cancels any pending reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// readLoop drains inbound frames until the connection drops. Transport
// errors take the same close path as a remote close.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn)
			return
		}
		m.dispatch(data)
	}
}

// dispatch parses one inbound frame and publishes it on the bus.
// Malformed frames are dropped silently; they must never take the
// manager down.
func (m *Manager) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		slog.Debug("dropping malformed channel frame", "bytes", len(data))
		return
	}

	switch frame.Type {
	case FrameJobProgress:
		m.events.Publish(&bus.Event{
			Type:      bus.EventJobProgress,
			SessionID: frame.SessionID,
			JobID:     frame.JobID,
			Progress:  frame.Progress,
			Message:   frame.Message,
		})
	case FrameStreamChunk:
		m.events.Publish(&bus.Event{
			Type:      bus.EventStreamChunk,
			SessionID: frame.SessionID,
			Content:   frame.Content,
		})
	case FrameConnected:
		slog.Debug("channel handshake acknowledged", "session_id", frame.SessionID)
	default:
		slog.Debug("dropping unknown channel frame", "frame_type", frame.Type)
	}
}

func (m *Manager) handleClose(conn *websocket.Conn) {
	conn.Close()

	m.mu.Lock()
	active := m.conn == conn
	if active {
		m.conn = nil
		m.connected = false
	}
	closed := m.closed
	m.mu.Unlock()

	// A superseded connection (replaced by a manual Reconnect) closing
	// must not disturb the live one: no disconnect event, no backoff.
	if !active {
		return
	}

	m.events.Publish(&bus.Event{Type: bus.EventChannelState, Connected: false})

	if !closed && m.opts.AutoReconnect {
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next dial and bumps
// the attempt counter. The counter only resets on a successful open or
// an explicit Reconnect.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed || !m.opts.AutoReconnect || m.timer != nil {
		m.mu.Unlock()
		return
	}
	delay := backoffDelay(m.attempt, m.opts.BackoffBase, m.opts.BackoffMax)
	m.attempt++
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.timer = nil
		closed := m.closed
		m.mu.Unlock()
		if !closed {
			m.Connect(context.Background())
		}
	})
	m.mu.Unlock()

	slog.Info("channel reconnect scheduled", "delay", delay)
}

// backoffDelay computes min(base * 2^attempt, max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
