package backend

import (
	"github.com/agentdeck/agentdeck/internal/session"
)

// Job status values. A job advances monotonically and is forgotten once
// a terminal status is observed.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobStreaming = "streaming"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// ChatRequest is the payload for both the synchronous send and the
// job-creation call. Stream selects the async path server-side.
type ChatRequest struct {
	Message     string         `json:"message"`
	SessionID   string         `json:"session_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// ChatResponse is the agent's answer to one send.
type ChatResponse struct {
	Content     string            `json:"content"`
	Attachments []session.FileRef `json:"attachments,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// Job is the polled state of an asynchronous chat request.
type Job struct {
	JobID           string        `json:"job_id"`
	Status          string        `json:"status"`
	Progress        int           `json:"progress"`
	ProgressMessage string        `json:"progress_message,omitempty"`
	Result          *ChatResponse `json:"result,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}
