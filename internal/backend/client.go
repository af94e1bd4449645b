// Package backend implements the HTTP client for the console backend:
// synchronous chat, job creation and polling, and session history.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/session"
)

// ErrSessionNotFound reports that a session has no stored history yet.
// Callers treat it as "new session", not a failure.
var ErrSessionNotFound = errors.New("session not found")

// APIError is a structured failure returned by the backend. Message is
// the server-supplied error string from the response body when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// Client talks to one console backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a backend client. A zero timeout keeps the
// http.Client default of no per-request timeout; callers bound requests
// with contexts instead.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SendChat issues one synchronous chat request against an agent.
func (c *Client) SendChat(ctx context.Context, agent string, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	var resp ChatResponse
	if err := c.post(ctx, fmt.Sprintf("/api/agents/%s/chat", agent), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateJob issues the same chat request with streaming enabled and
// returns the identifier of the created job.
func (c *Client) CreateJob(ctx context.Context, agent string, req ChatRequest) (string, error) {
	req.Stream = true
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.post(ctx, fmt.Sprintf("/api/agents/%s/chat", agent), req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("backend returned no job id")
	}
	return resp.JobID, nil
}

// JobStatus fetches the current state of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.get(ctx, "/api/jobs/"+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// FetchSession loads the full stored history of a session. A 404 maps
// to ErrSessionNotFound.
func (c *Client) FetchSession(ctx context.Context, sessionID string) ([]session.Message, error) {
	var resp struct {
		Messages []session.Message `json:"messages"`
	}
	if err := c.get(ctx, "/api/sessions/"+sessionID, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return resp.Messages, nil
}

// Health checks backend reachability. Only the response status matters.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the server error string from a failure body of
// the shape {"detail":{"error":"..."}}. Returns "" when absent.
func errorMessage(body io.Reader) string {
	var parsed struct {
		Detail struct {
			Error string `json:"error"`
		} `json:"detail"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return ""
	}
	return parsed.Detail.Error
}
