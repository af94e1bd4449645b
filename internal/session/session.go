// Package session provides the conversation message model and the
// append-only message log owned by the agent session controller.
package session

import (
	"sync"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Well-known metadata keys. Metadata is an open bag; these are the keys
// the runtime itself reads.
const (
	MetaKeyPhase      = "phase"
	MetaKeyFiles      = "files"
	MetaKeySlug       = "slug"
	MetaKeyValidation = "validation"

	// PhaseGenerated marks an assistant message that carries a
	// generated-files bundle in its metadata.
	PhaseGenerated = "generated"
)

// FileRef is an opaque handle to server-held file content. The runtime
// never interprets the bytes behind it.
type FileRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Message is a single chat message. Messages are immutable once
// appended; metadata is set at append time.
type Message struct {
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	Attachments []FileRef      `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
}

// Log is the ordered, append-only message log for one session view.
// Insertion order is meaningful: artifact extraction scans latest-first.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

// NewLog creates an empty message log.
func NewLog() *Log {
	return &Log{messages: []Message{}}
}

// Append adds a message to the log, stamping it if the caller did not.
func (l *Log) Append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	l.messages = append(l.messages, msg)
}

// Replace swaps the full log content, used when loading a stored session.
func (l *Log) Replace(msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = make([]Message, len(msgs))
	copy(l.messages, msgs)
}

// Snapshot returns a copy of the current log.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Message, len(l.messages))
	copy(result, l.messages)
	return result
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Clear removes all messages. Durable storage is not touched.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = []Message{}
}
