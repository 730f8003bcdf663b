// package repositories provides persistence layer implementations.
//
// The session repository keeps one durable snapshot per job kind so a
// process restart can resume an in-flight or completed job without
// re-submitting. Writes are last-write-wins; there is no cross-process
// locking, so callers must treat a restored snapshot as potentially stale
// relative to the live backend.
package repositories

import (
	"time"

	"github.com/desertthunder/stemx/internal/models"
)

// Clock abstracts time.Now so max-age eviction is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall-clock [Clock] used outside tests.
var SystemClock Clock = systemClock{}

// SessionRepository defines access to persisted job sessions, keyed by job
// kind. Get discards entries older than the kind's maximum age.
type SessionRepository interface {
	Get(kind models.JobKind) (*models.PersistedSession, error)
	Set(kind models.JobKind, session *models.PersistedSession) error
	Clear(kind models.JobKind) error
}

type nullRepository struct{}

func (nullRepository) Get(models.JobKind) (*models.PersistedSession, error) { return nil, nil }
func (nullRepository) Set(models.JobKind, *models.PersistedSession) error   { return nil }
func (nullRepository) Clear(models.JobKind) error                           { return nil }

// NullSessions discards every snapshot. Used when the session database is
// unavailable so jobs still run, just without resume.
var NullSessions SessionRepository = nullRepository{}
