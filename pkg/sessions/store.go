package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/duetboard/duetboard/pkg/observability"
	"github.com/duetboard/duetboard/pkg/webhooks"
)

// ErrSessionNotFound is returned when a session id does not exist
var ErrSessionNotFound = errors.New("session not found")

// Trigger is the webhook dispatch surface the store depends on. The
// payload is an opaque JSON-serializable map; the store never sees
// delivery state.
type Trigger interface {
	TriggerEvent(event webhooks.EventType, data map[string]interface{})
}

// Open opens (or creates) the SQLite database at path
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite tolerates a single writer; cap the pool accordingly
	db.SetMaxOpenConns(1)
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	status        TEXT NOT NULL,
	manager_model TEXT NOT NULL DEFAULT '',
	worker_model  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// Store persists sessions and messages and fires webhook events on
// lifecycle transitions
type Store struct {
	db      *sql.DB
	trigger Trigger
	metrics *observability.Metrics
}

// NewStore creates the schema and returns a session store. trigger and
// metrics may be nil.
func NewStore(db *sql.DB, trigger Trigger, metrics *observability.Metrics) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	store := &Store{db: db, trigger: trigger, metrics: metrics}
	if metrics != nil {
		if count, err := store.CountSessions(context.Background()); err == nil {
			metrics.SessionsTotal.Set(float64(count))
		}
	}
	return store, nil
}

func (s *Store) fire(event webhooks.EventType, data map[string]interface{}) {
	if s.trigger != nil {
		s.trigger.TriggerEvent(event, data)
	}
}

// CreateSession stores a new active session and fires session.created
func (s *Store) CreateSession(ctx context.Context, title, managerModel, workerModel string) (*Session, error) {
	if title == "" {
		return nil, fmt.Errorf("session title is required")
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.New().String(),
		Title:        title,
		Status:       StatusActive,
		ManagerModel: managerModel,
		WorkerModel:  workerModel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, status, manager_model, worker_model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Title, string(session.Status),
		session.ManagerModel, session.WorkerModel, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsTotal.Inc()
	}
	s.fire(webhooks.EventSessionCreated, map[string]interface{}{
		"session_id":    session.ID,
		"title":         session.Title,
		"status":        string(session.Status),
		"manager_model": session.ManagerModel,
		"worker_model":  session.WorkerModel,
	})
	return session, nil
}

// UpdateSessionStatus transitions a session and fires session.completed or
// session.failed for terminal transitions
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status Status) (*Session, error) {
	if err := status.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrSessionNotFound
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusCompleted:
		s.fire(webhooks.EventSessionCompleted, sessionPayload(session))
	case StatusFailed:
		s.fire(webhooks.EventSessionFailed, sessionPayload(session))
	}
	return session, nil
}

func sessionPayload(session *Session) map[string]interface{} {
	return map[string]interface{}{
		"session_id": session.ID,
		"title":      session.Title,
		"status":     string(session.Status),
	}
}

// GetSession retrieves a session by id
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, manager_model, worker_model, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return session, nil
}

// ListSessions returns up to limit sessions, most recently updated first
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, manager_model, worker_model, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// AppendMessage adds a transcript entry and fires message.created
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	message := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, string(message.Role), message.Content, message.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if s.metrics != nil {
		s.metrics.MessagesStored.Inc()
	}
	s.fire(webhooks.EventMessageCreated, map[string]interface{}{
		"message_id": message.ID,
		"session_id": message.SessionID,
		"role":       string(message.Role),
	})
	return message, nil
}

// ListMessages returns a session's transcript in chronological order
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = Role(role)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// CountSessions returns the total number of stored sessions
func (s *Store) CountSessions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var status string
	err := row.Scan(
		&session.ID, &session.Title, &status,
		&session.ManagerModel, &session.WorkerModel,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.Status = Status(status)
	return &session, nil
}
