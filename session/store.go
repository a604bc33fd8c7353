package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned by Create when the ID is already in use.
	ErrExists = errors.New("session already exists")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store persists sessions by ID. Implementations return copies from Get and
// copy on Create/Update, so callers may mutate what they hold freely.
// Delete is idempotent.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// FindExpired returns the IDs of sessions whose last activity is more
	// than idle before now.
	FindExpired(ctx context.Context, idle time.Duration, now time.Time) ([]string, error)
	// DeleteIfIdle removes the session only if its last activity is still
	// before cutoff, checked atomically with the delete. It reports whether
	// anything was removed.
	DeleteIfIdle(ctx context.Context, id string, cutoff time.Time) (bool, error)
	CountByState(ctx context.Context) (map[State]int, error)
	Clear(ctx context.Context) error
}
