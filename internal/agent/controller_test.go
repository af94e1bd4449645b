package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/internal/backend"
	"github.com/agentdeck/agentdeck/internal/bus"
	"github.com/agentdeck/agentdeck/internal/jobs"
	"github.com/agentdeck/agentdeck/internal/session"
)

// fakeBackend scripts the backend surface for controller tests.
type fakeBackend struct {
	sendResp    *backend.ChatResponse
	sendErr     error
	jobID       string
	jobErr      error
	history     []session.Message
	historyErr  error
	sendCalls   int
	createCalls int
	fetchCalls  int
}

func (f *fakeBackend) SendChat(ctx context.Context, agent string, req backend.ChatRequest) (*backend.ChatResponse, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendResp, nil
}

func (f *fakeBackend) CreateJob(ctx context.Context, agent string, req backend.ChatRequest) (string, error) {
	f.createCalls++
	if f.jobErr != nil {
		return "", f.jobErr
	}
	return f.jobID, nil
}

func (f *fakeBackend) FetchSession(ctx context.Context, sessionID string) ([]session.Message, error) {
	f.fetchCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

type fakePoller struct {
	resp     *backend.ChatResponse
	err      error
	progress []int
}

func (f *fakePoller) Poll(ctx context.Context, jobID string, onProgress jobs.ProgressFunc) (*backend.ChatResponse, error) {
	for _, p := range f.progress {
		if onProgress != nil {
			onProgress(p, "working")
		}
	}
	return f.resp, f.err
}

func newSyncController(b *fakeBackend) *Controller {
	return NewController(Options{
		Backend:      b,
		AgentID:      "support-bot",
		SessionID:    "sess-1",
		DeliveryMode: "sync",
	})
}

func TestSendMessageSync(t *testing.T) {
	b := &fakeBackend{
		historyErr: backend.ErrSessionNotFound,
		sendResp:   &backend.ChatResponse{Content: "hello back"},
	}
	c := newSyncController(b)

	if err := c.SendMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(msgs))
	}
	if msgs[0].Role != session.RoleUser || msgs[0].Content != "hi" {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	if msgs[1].Role != session.RoleAssistant || msgs[1].Content != "hello back" {
		t.Fatalf("unexpected second message %+v", msgs[1])
	}
	if c.Err() != "" {
		t.Fatalf("expected no error, got %q", c.Err())
	}
	if c.Loading() {
		t.Fatalf("loading flag must clear after send")
	}
}

func TestSendMessageSyncFailure(t *testing.T) {
	b := &fakeBackend{
		historyErr: backend.ErrSessionNotFound,
		sendErr:    &backend.APIError{StatusCode: 500, Message: "agent is overloaded"},
	}
	c := newSyncController(b)

	if err := c.SendMessage(context.Background(), "hi", nil); err == nil {
		t.Fatalf("expected send error")
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Role != session.RoleUser || msgs[0].Content != "hi" {
		t.Fatalf("failed send must leave only the user message, got %+v", msgs)
	}
	if c.Err() != "agent is overloaded" {
		t.Fatalf("expected server error surfaced, got %q", c.Err())
	}
	if c.Loading() {
		t.Fatalf("loading flag must clear after a failed send")
	}
}

func TestSendMessageTransportFailureGenericError(t *testing.T) {
	b := &fakeBackend{
		historyErr: backend.ErrSessionNotFound,
		sendErr:    errors.New("dial tcp: connection refused"),
	}
	c := newSyncController(b)

	c.SendMessage(context.Background(), "hi", nil)
	if c.Err() != genericSendError {
		t.Fatalf("transport failures surface the generic string, got %q", c.Err())
	}
}

func TestSendMessageAsync(t *testing.T) {
	b := &fakeBackend{historyErr: backend.ErrSessionNotFound, jobID: "job-9"}
	p := &fakePoller{
		resp:     &backend.ChatResponse{Content: "async answer"},
		progress: []int{30, 60, 100},
	}
	c := NewController(Options{
		Backend:      b,
		Poller:       p,
		AgentID:      "support-bot",
		SessionID:    "sess-2",
		DeliveryMode: "async",
	})

	if err := c.SendMessage(context.Background(), "do it", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if b.createCalls != 1 || b.sendCalls != 0 {
		t.Fatalf("async mode must create a job, not call the sync path")
	}
	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Content != "async answer" {
		t.Fatalf("unexpected log %+v", msgs)
	}
	progress, note := c.Progress()
	if progress != 100 || note != "working" {
		t.Fatalf("expected final progress observed, got %d %q", progress, note)
	}
}

func TestSendMessageAsyncPollerFailure(t *testing.T) {
	b := &fakeBackend{historyErr: backend.ErrSessionNotFound, jobID: "job-10"}
	p := &fakePoller{err: errors.New("job failed: out of quota")}
	c := NewController(Options{
		Backend:      b,
		Poller:       p,
		SessionID:    "sess-3",
		DeliveryMode: "async",
	})

	if err := c.SendMessage(context.Background(), "do it", nil); err == nil {
		t.Fatalf("expected error from poller")
	}
	if len(c.Messages()) != 1 {
		t.Fatalf("poller failure must not append an assistant message")
	}
	if c.Err() != "job failed: out of quota" {
		t.Fatalf("expected job error surfaced, got %q", c.Err())
	}
}

func TestSendMessageInFlightRejected(t *testing.T) {
	b := &fakeBackend{historyErr: backend.ErrSessionNotFound}
	c := newSyncController(b)
	c.inFlight.Store(true)

	if err := c.SendMessage(context.Background(), "hi", nil); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
	if c.log.Len() != 0 {
		t.Fatalf("rejected send must not touch the log")
	}
}

func TestRestoreAtMount(t *testing.T) {
	b := &fakeBackend{
		history:  []session.Message{{Role: session.RoleAssistant, Content: "welcome back"}},
		sendResp: &backend.ChatResponse{Content: "ok"},
	}
	c := newSyncController(b)

	c.Restore(context.Background())

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Content != "welcome back" {
		t.Fatalf("history must render before any send, got %+v", msgs)
	}
	if b.fetchCalls != 1 {
		t.Fatalf("mount restore must fetch once, got %d", b.fetchCalls)
	}

	c.SendMessage(context.Background(), "hi", nil)
	if b.fetchCalls != 1 {
		t.Fatalf("send after mount restore must not refetch, got %d", b.fetchCalls)
	}
}

func TestRestoreOnce(t *testing.T) {
	b := &fakeBackend{
		history:  []session.Message{{Role: session.RoleAssistant, Content: "welcome back"}},
		sendResp: &backend.ChatResponse{Content: "ok"},
	}
	c := newSyncController(b)

	c.SendMessage(context.Background(), "first", nil)
	c.SendMessage(context.Background(), "second", nil)

	if b.fetchCalls != 1 {
		t.Fatalf("restore must fetch exactly once, got %d", b.fetchCalls)
	}
	msgs := c.Messages()
	if msgs[0].Content != "welcome back" {
		t.Fatalf("restored history must precede new messages, got %+v", msgs[0])
	}
}

func TestRestoreNotFoundIsNewSession(t *testing.T) {
	b := &fakeBackend{
		historyErr: backend.ErrSessionNotFound,
		sendResp:   &backend.ChatResponse{Content: "ok"},
	}
	c := newSyncController(b)

	if err := c.SendMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("missing history must not fail the send: %v", err)
	}
	if c.Err() != "" {
		t.Fatalf("missing history is not an error, got %q", c.Err())
	}
}

func TestRestoreFailureSwallowed(t *testing.T) {
	b := &fakeBackend{
		historyErr: errors.New("backend down"),
		sendResp:   &backend.ChatResponse{Content: "ok"},
	}
	c := newSyncController(b)

	if err := c.SendMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("restore failure must be swallowed: %v", err)
	}
	b.historyErr = nil
	c.SendMessage(context.Background(), "again", nil)
	if b.fetchCalls != 1 {
		t.Fatalf("restore must not retrigger after a failure, got %d fetches", b.fetchCalls)
	}
}

func TestLoadSession(t *testing.T) {
	b := &fakeBackend{
		history: []session.Message{
			{Role: session.RoleUser, Content: "old question"},
			{Role: session.RoleAssistant, Content: "old answer"},
		},
	}
	c := newSyncController(b)

	if err := c.LoadSession(context.Background(), "sess-other"); err != nil {
		t.Fatalf("load session: %v", err)
	}
	if c.SessionID() != "sess-other" {
		t.Fatalf("load must adopt the session id, got %q", c.SessionID())
	}
	if got := c.Messages(); len(got) != 2 || got[1].Content != "old answer" {
		t.Fatalf("unexpected loaded log %+v", got)
	}
}

func TestLoadSessionFailure(t *testing.T) {
	b := &fakeBackend{historyErr: errors.New("boom")}
	c := newSyncController(b)
	c.log.Append(session.Message{Role: session.RoleUser, Content: "keep me"})

	if err := c.LoadSession(context.Background(), "sess-x"); err == nil {
		t.Fatalf("expected load failure")
	}
	if c.Err() == "" {
		t.Fatalf("load failure must surface an error string")
	}
	if got := c.Messages(); len(got) != 1 || got[0].Content != "keep me" {
		t.Fatalf("failed load must leave the log untouched, got %+v", got)
	}
}

func TestClearMessages(t *testing.T) {
	b := &fakeBackend{historyErr: backend.ErrSessionNotFound, sendResp: &backend.ChatResponse{Content: "ok"}}
	c := newSyncController(b)
	c.SendMessage(context.Background(), "hi", nil)

	c.ClearMessages()
	if c.log.Len() != 0 {
		t.Fatalf("clear must empty the log")
	}
}

func TestCloseDetachesFromBus(t *testing.T) {
	events := bus.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go events.Dispatch(ctx)

	b := &fakeBackend{historyErr: backend.ErrSessionNotFound}
	c := NewController(Options{
		Backend:   b,
		Events:    events,
		SessionID: "sess-closed",
	})

	events.Publish(&bus.Event{Type: bus.EventStreamChunk, SessionID: "sess-closed", Content: "live "})
	deadline := time.Now().Add(time.Second)
	for c.StreamContent() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("stream chunk never reached the controller")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Close()
	events.Publish(&bus.Event{Type: bus.EventStreamChunk, SessionID: "sess-closed", Content: "stale"})
	time.Sleep(50 * time.Millisecond)
	if got := c.StreamContent(); got != "live " {
		t.Fatalf("closed controller must not accumulate chunks, got %q", got)
	}
}

func TestSendResetsScratchState(t *testing.T) {
	b := &fakeBackend{historyErr: backend.ErrSessionNotFound, sendResp: &backend.ChatResponse{Content: "ok"}}
	c := newSyncController(b)
	c.appendStream("stale chunk")
	c.mu.Lock()
	c.errMsg = "stale error"
	c.progress = 80
	c.mu.Unlock()

	if err := c.SendMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.StreamContent() != "" {
		t.Fatalf("stream scratch must reset on send")
	}
	if c.Err() != "" {
		t.Fatalf("previous error must clear on send")
	}
	if progress, _ := c.Progress(); progress != 0 {
		t.Fatalf("previous progress must clear on send")
	}
}
