package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret-token", 5*time.Second)
}

func TestSendChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/agents/support-bot/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Errorf("sync send must not set stream")
		}
		if req.Message != "hi" || req.SessionID != "s1" {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(ChatResponse{Content: "hello"})
	})

	resp, err := c.SendChat(context.Background(), "support-bot", ChatRequest{Message: "hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSendChatServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"detail": map[string]any{"error": "model unavailable"},
		})
	})

	_, err := c.SendChat(context.Background(), "a", ChatRequest{Message: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "model unavailable" {
		t.Fatalf("unexpected APIError %+v", apiErr)
	}
}

func TestSendChatErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.SendChat(context.Background(), "a", ChatRequest{Message: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Error() == "" {
		t.Fatalf("APIError must fall back to a generic message")
	}
}

func TestCreateJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Errorf("job creation must set stream")
		}
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-42"})
	})

	jobID, err := c.CreateJob(context.Background(), "a", ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if jobID != "job-42" {
		t.Fatalf("unexpected job id %q", jobID)
	}
}

func TestJobStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/job-42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Job{
			JobID:           "job-42",
			Status:          JobRunning,
			Progress:        55,
			ProgressMessage: "generating",
		})
	})

	job, err := c.JobStatus(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if job.Status != JobRunning || job.Progress != 55 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Terminal() {
		t.Fatalf("running job must not be terminal")
	}
}

func TestFetchSessionNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.FetchSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestFetchSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"role": "user", "content": "q"},
				{"role": "assistant", "content": "a"},
			},
		})
	})

	msgs, err := c.FetchSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("fetch session: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "a" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestJobTerminalStates(t *testing.T) {
	for _, status := range []string{JobCompleted, JobFailed, JobCancelled} {
		if !(&Job{Status: status}).Terminal() {
			t.Fatalf("%s must be terminal", status)
		}
	}
	for _, status := range []string{JobPending, JobRunning, JobStreaming} {
		if (&Job{Status: status}).Terminal() {
			t.Fatalf("%s must not be terminal", status)
		}
	}
}
