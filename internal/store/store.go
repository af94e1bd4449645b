// Package store keeps local copies of session transcripts in SQLite.
// The backend remains authoritative; this cache exists so the CLI can
// list and export sessions offline.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentdeck/agentdeck/internal/session"
)

// Store is a SQLite-backed transcript cache.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at dbPath, migrating the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		agent      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		attachments TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession replaces the stored transcript for a session.
func (s *Store) SaveSession(id, agent string, msgs []session.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.Exec(`
		INSERT INTO sessions (id, agent, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET agent = excluded.agent, updated_at = excluded.updated_at`,
		id, agent, now, now); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	for _, msg := range msgs {
		attachments, metadata := encodeJSON(msg.Attachments), encodeJSON(msg.Metadata)
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (session_id, role, content, attachments, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, msg.Role, msg.Content, attachments, metadata, ts); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// LoadSession returns the stored transcript for a session, oldest first.
// A session with no rows yields an empty slice and ok == false.
func (s *Store) LoadSession(id string) ([]session.Message, bool, error) {
	rows, err := s.db.Query(`
		SELECT role, content, attachments, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, false, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []session.Message
	for rows.Next() {
		var msg session.Message
		var attachments, metadata string
		if err := rows.Scan(&msg.Role, &msg.Content, &attachments, &metadata, &msg.Timestamp); err != nil {
			return nil, false, fmt.Errorf("scan message: %w", err)
		}
		if attachments != "" {
			json.Unmarshal([]byte(attachments), &msg.Attachments)
		}
		if metadata != "" {
			json.Unmarshal([]byte(metadata), &msg.Metadata)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("read messages: %w", err)
	}
	return msgs, len(msgs) > 0, nil
}

// SessionInfo describes one stored session.
type SessionInfo struct {
	ID        string
	Agent     string
	Messages  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListSessions returns all stored sessions, most recently updated first.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.agent, s.created_at, s.updated_at, COUNT(m.id)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Agent, &info.CreatedAt, &info.UpdatedAt, &info.Messages); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteSession removes a stored session and its messages.
func (s *Store) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	// The messages FK cascade requires foreign_keys=1; delete explicitly
	// as well so older databases stay consistent.
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func encodeJSON(v any) string {
	switch val := v.(type) {
	case []session.FileRef:
		if len(val) == 0 {
			return ""
		}
	case map[string]any:
		if len(val) == 0 {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
