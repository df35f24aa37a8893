// Package store persists session state, message history, and uploaded
// attachments in SQLite. Session state is a single JSON blob per
// session; the message log and attachments are append-only.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shopagent/internal/dialog"
	"shopagent/internal/logging"
)

// LocalStore is the SQLite-backed store. A single connection guarded by
// a mutex keeps writes serialized; per-session turn ordering is the
// server's job, not the store's.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Message is one logged conversation message. CreatedAt carries the
// SQLite timestamp text as stored.
type Message struct {
	ID           int64  `json:"id"`
	SessionID    string `json:"session_id"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	AttachmentID string `json:"attachment_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// NewLocalStore opens (or creates) the SQLite database at the given
// path and brings the schema up to date.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("store ready at %s", path)
	return s, nil
}

func (s *LocalStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id           TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			bytes        BLOB NOT NULL,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_session ON attachments(session_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// LoadSession returns the persisted state for a session, or a fresh
// empty state when the session is unknown.
func (s *LocalStore) LoadSession(sessionID string) (*dialog.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob string
	err := s.db.QueryRow(`SELECT state FROM sessions WHERE session_id = ?`, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		logging.SessionDebug("new session %s", sessionID)
		return dialog.NewSessionState(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	state, err := dialog.UnmarshalSessionState([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return state, nil
}

// SaveSession writes the end-of-turn state snapshot.
func (s *LocalStore) SaveSession(state *dialog.SessionState) error {
	blob, err := state.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", state.SessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO sessions (session_id, state, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = CURRENT_TIMESTAMP`,
		state.SessionID, string(blob))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	logging.SessionDebug("saved session %s turn=%d", state.SessionID, state.TurnCount)
	return nil
}

// AppendMessage logs one conversation message. attachmentID links the
// message to an uploaded attachment and may be empty.
func (s *LocalStore) AppendMessage(sessionID, role, content, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if attachmentID == "" {
		_, err = s.db.Exec(`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
			sessionID, role, content)
	} else {
		_, err = s.db.Exec(`INSERT INTO messages (session_id, role, content, attachment_id) VALUES (?, ?, ?, ?)`,
			sessionID, role, content, attachmentID)
	}
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Messages returns the session's message log, oldest first. limit <= 0
// returns everything.
func (s *LocalStore) Messages(sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, session_id, role, content, COALESCE(attachment_id, ''), created_at FROM messages
		WHERE session_id = ? ORDER BY id`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.AttachmentID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveAttachment stores uploaded image bytes and returns the generated
// attachment id.
func (s *LocalStore) SaveAttachment(sessionID, contentType string, data []byte) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO attachments (id, session_id, content_type, bytes) VALUES (?, ?, ?, ?)`,
		id, sessionID, contentType, data)
	if err != nil {
		return "", fmt.Errorf("failed to save attachment: %w", err)
	}
	logging.StoreDebug("attachment %s saved for session %s (%d bytes)", id, sessionID, len(data))
	return id, nil
}

// Attachment returns stored attachment bytes and content type by id.
func (s *LocalStore) Attachment(id string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	var contentType string
	err := s.db.QueryRow(`SELECT bytes, content_type FROM attachments WHERE id = ?`, id).
		Scan(&data, &contentType)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load attachment %s: %w", id, err)
	}
	return data, contentType, nil
}

// Close closes the database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
