package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session is absent, expired or idle.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps every backend failure. Callers must treat it
	// as "cannot authenticate".
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
	// ErrInvalidAttrs is returned when Create is called without an owner.
	ErrInvalidAttrs = errors.New("session attrs invalid")
)

// Store is the session persistence contract shared by the Redis and
// in-memory implementations.
type Store interface {
	// Create stores a new session and evicts the owner's oldest sessions
	// beyond the concurrent limit. Evicted ids are returned.
	Create(ctx context.Context, attrs Attrs) (*Session, []string, error)
	// Get returns the session or ErrNotFound. Expired sessions are
	// destroyed as a side effect.
	Get(ctx context.Context, id string) (*Session, error)
	// Touch advances lastActivity. It returns false, and destroys the
	// session, once the idle timeout has been reached.
	Touch(ctx context.Context, id string) (bool, error)
	// SetMFAVerified flips the session flag if the session still exists.
	SetMFAVerified(ctx context.Context, id string, verified bool) (bool, error)
	// Destroy removes the session. Missing sessions are not an error.
	Destroy(ctx context.Context, id string) error
	// DestroyAllForUser removes every session of userID and returns how
	// many existed.
	DestroyAllForUser(ctx context.Context, userID string) (int, error)
	// ListForUser returns live sessions ordered by CreatedAt.
	ListForUser(ctx context.Context, userID string) ([]*Session, error)
	// Ping checks backend reachability.
	Ping(ctx context.Context) (time.Duration, error)
}
