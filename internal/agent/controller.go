// Package agent implements the session controller that turns a user
// chat action into a request against an agent backend, over either the
// synchronous call path or the polled job path.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/internal/backend"
	"github.com/agentdeck/agentdeck/internal/bus"
	"github.com/agentdeck/agentdeck/internal/jobs"
	"github.com/agentdeck/agentdeck/internal/session"
)

// ErrSendInFlight reports that a send was attempted while a previous
// one had not resolved. Callers serialize sends on Loading().
var ErrSendInFlight = errors.New("a send is already in flight")

const genericSendError = "the agent backend could not be reached"

// Backend is the request/response surface the controller needs.
type Backend interface {
	SendChat(ctx context.Context, agent string, req backend.ChatRequest) (*backend.ChatResponse, error)
	CreateJob(ctx context.Context, agent string, req backend.ChatRequest) (string, error)
	FetchSession(ctx context.Context, sessionID string) ([]session.Message, error)
}

// JobRunner drives an async job to a terminal outcome.
type JobRunner interface {
	Poll(ctx context.Context, jobID string, onProgress jobs.ProgressFunc) (*backend.ChatResponse, error)
}

// Options configures a Controller.
type Options struct {
	Backend      Backend
	Poller       JobRunner
	Events       *bus.EventBus // optional
	AgentID      string
	SessionID    string // generated when empty
	WorkspaceID  string
	DeliveryMode string // "sync" (default) or "async"
}

// Controller owns the message log for one session view and orchestrates
// message delivery. One controller instance per view, torn down with
// the view; the log is not mutated by any other component.
type Controller struct {
	backend      Backend
	poller       JobRunner
	events       *bus.EventBus
	agentID      string
	sessionID    string
	workspaceID  string
	deliveryMode string

	log         *session.Log
	inFlight    atomic.Bool
	restore     sync.Once
	unsubscribe func()

	mu          sync.Mutex
	errMsg      string
	progress    int
	progressMsg string
	stream      strings.Builder
}

// NewController creates a controller for one session view.
func NewController(opts Options) *Controller {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	c := &Controller{
		backend:      opts.Backend,
		poller:       opts.Poller,
		events:       opts.Events,
		agentID:      opts.AgentID,
		sessionID:    opts.SessionID,
		workspaceID:  opts.WorkspaceID,
		deliveryMode: opts.DeliveryMode,
		log:          session.NewLog(),
	}
	if c.events != nil {
		c.unsubscribe = c.events.Subscribe(bus.EventStreamChunk, func(ev *bus.Event) {
			if ev.SessionID == "" || ev.SessionID == c.sessionID {
				c.appendStream(ev.Content)
			}
		})
	}
	return c
}

// Close detaches the controller from the event bus. Call on view
// teardown; a closed controller no longer accumulates stream chunks.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Restore performs the one-time session restoration. Front ends call
// it when the session view mounts so existing history renders before
// the first send; SendMessage also triggers it as a fallback. Repeated
// calls are no-ops.
func (c *Controller) Restore(ctx context.Context) {
	c.restoreSession(ctx)
}

// SessionID returns the id of the session this controller owns.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Messages returns a snapshot of the message log.
func (c *Controller) Messages() []session.Message {
	return c.log.Snapshot()
}

// Loading reports whether a send is in flight.
func (c *Controller) Loading() bool {
	return c.inFlight.Load()
}

// Err returns the current surfaced error string, empty when none.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Progress returns the last observed job progress and message.
func (c *Controller) Progress() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress, c.progressMsg
}

// StreamContent returns the streamed content accumulated during the
// current send. It is scratch state, reset on every send.
func (c *Controller) StreamContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.String()
}

// SendMessage appends the user message to the log, then delivers it via
// the configured mode. The user message is in the log before any
// network call starts; the assistant message is appended only after a
// successful terminal result. The loading flag is cleared on every
// path out of this call.
func (c *Controller) SendMessage(ctx context.Context, content string, metadata map[string]any) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrSendInFlight
	}
	defer c.inFlight.Store(false)

	c.restoreSession(ctx)

	c.mu.Lock()
	c.errMsg = ""
	c.progress = 0
	c.progressMsg = ""
	c.stream.Reset()
	c.mu.Unlock()

	userMsg := session.Message{Role: session.RoleUser, Content: content, Metadata: metadata}
	c.log.Append(userMsg)
	c.publishAppend(userMsg)

	req := backend.ChatRequest{
		Message:     content,
		SessionID:   c.sessionID,
		Metadata:    metadata,
		WorkspaceID: c.workspaceID,
	}

	var resp *backend.ChatResponse
	var err error
	if c.deliveryMode == "async" {
		resp, err = c.sendAsync(ctx, req)
	} else {
		resp, err = c.backend.SendChat(ctx, c.agentID, req)
	}
	if err != nil {
		msg := userError(err)
		c.mu.Lock()
		c.errMsg = msg
		c.mu.Unlock()
		slog.Warn("send failed", "session_id", c.sessionID, "agent", c.agentID, "error", err)
		return err
	}

	assistantMsg := session.Message{
		Role:        session.RoleAssistant,
		Content:     resp.Content,
		Attachments: resp.Attachments,
		Metadata:    resp.Metadata,
	}
	c.log.Append(assistantMsg)
	c.publishAppend(assistantMsg)
	return nil
}

func (c *Controller) sendAsync(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	jobID, err := c.backend.CreateJob(ctx, c.agentID, req)
	if err != nil {
		return nil, err
	}
	slog.Debug("job created", "session_id", c.sessionID, "job_id", jobID)
	return c.poller.Poll(ctx, jobID, func(progress int, message string) {
		c.mu.Lock()
		c.progress = progress
		c.progressMsg = message
		c.mu.Unlock()
		if c.events != nil {
			c.events.Publish(&bus.Event{
				Type:      bus.EventJobProgress,
				SessionID: c.sessionID,
				JobID:     jobID,
				Progress:  progress,
				Message:   message,
			})
		}
	})
}

// LoadSession replaces the in-memory log with the stored history for
// the given session id. On failure the log is left untouched and the
// error is surfaced through the same channel as send failures.
func (c *Controller) LoadSession(ctx context.Context, id string) error {
	msgs, err := c.backend.FetchSession(ctx, id)
	if err != nil {
		c.mu.Lock()
		c.errMsg = userError(err)
		c.mu.Unlock()
		return fmt.Errorf("load session %s: %w", id, err)
	}
	c.sessionID = id
	c.log.Replace(msgs)
	return nil
}

// ClearMessages empties the in-memory log only; durable storage is not
// affected.
func (c *Controller) ClearMessages() {
	c.log.Clear()
}

// restoreSession fetches existing history for this session exactly
// once. Absence means a new session. Any other failure is swallowed
// and the session is marked restored regardless, so the caller never
// blocks on restoration.
func (c *Controller) restoreSession(ctx context.Context) {
	c.restore.Do(func() {
		msgs, err := c.backend.FetchSession(ctx, c.sessionID)
		if err != nil {
			if !errors.Is(err, backend.ErrSessionNotFound) {
				slog.Debug("session restore skipped", "session_id", c.sessionID, "error", err)
			}
			return
		}
		if len(msgs) > 0 {
			c.log.Replace(msgs)
		}
	})
}

func (c *Controller) appendStream(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream.WriteString(chunk)
}

func (c *Controller) publishAppend(msg session.Message) {
	if c.events == nil {
		return
	}
	c.events.Publish(&bus.Event{
		Type:      bus.EventMessageAppended,
		SessionID: c.sessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		Metadata:  msg.Metadata,
	})
}

// userError maps a failure to the single human-readable string the UI
// shows: the server-supplied message when the backend answered, the
// poller's own wording for job failures and timeouts, and a generic
// fallback for transport errors.
func userError(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if errors.Is(err, jobs.ErrJobTimeout) {
		return "the agent took too long to respond; try again"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "the request was cancelled"
	}
	if msg := err.Error(); strings.HasPrefix(msg, "job ") || strings.HasPrefix(msg, "job failed") {
		return msg
	}
	return genericSendError
}
