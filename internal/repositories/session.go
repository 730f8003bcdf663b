package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/stemx/internal/models"
)

// SessionStore implements [SessionRepository] over SQLite.
type SessionStore struct {
	db    *sql.DB
	clock Clock
}

// NewSessionStore creates a SessionStore on the given database connection,
// creating the sessions table if needed. A nil clock defaults to
// [SystemClock].
func NewSessionStore(db *sql.DB, clock Clock) (*SessionStore, error) {
	if clock == nil {
		clock = SystemClock
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		kind TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate sessions schema: %w", err)
	}

	return &SessionStore{db: db, clock: clock}, nil
}

// Get retrieves the persisted session for a kind. Entries older than the
// kind's maximum age are deleted and reported as absent. A missing entry
// returns (nil, nil).
func (s *SessionStore) Get(kind models.JobKind) (*models.PersistedSession, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM sessions WHERE kind = ?`, kind.String()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var session models.PersistedSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		// A corrupt payload is unrecoverable; drop it.
		_ = s.Clear(kind)
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if session.Expired(s.clock.Now()) {
		if err := s.Clear(kind); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &session, nil
}

// Set stores the snapshot for a kind, stamping SavedAt. Last write wins.
func (s *SessionStore) Set(kind models.JobKind, session *models.PersistedSession) error {
	session.Kind = kind
	session.SavedAt = s.clock.Now()

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (kind, payload, saved_at) VALUES (?, ?, ?)`,
		kind.String(), string(payload), session.SavedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Clear removes the persisted session for a kind.
func (s *SessionStore) Clear(kind models.JobKind) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE kind = ?`, kind.String()); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
