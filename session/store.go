package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no live record exists for a token.
var ErrNotFound = errors.New("session record not found")

// ErrUnavailable wraps backend failures and timeouts. Callers must treat an
// unavailable store as a rejection, never as an authenticated session.
var ErrUnavailable = errors.New("session store unavailable")

// Store is the key-value contract the Manager drives. Implementations must
// make each operation atomic with respect to a single token; no ordering is
// guaranteed across different tokens. Backends own physical reclamation of
// expired entries, but readers of a fetched record must still check its
// expiry fields — physical presence alone proves nothing.
//
// One Store is selected at startup and shared for the process lifetime;
// Close releases whatever the backend holds.
type Store interface {
	// Put writes the record under its token with the given TTL, replacing
	// any previous value atomically.
	Put(ctx context.Context, record *Record, ttl time.Duration) error

	// Get returns the record for token, or ErrNotFound.
	Get(ctx context.Context, token string) (*Record, error)

	// Delete removes the record for token. Deleting an absent token is not
	// an error.
	Delete(ctx context.Context, token string) error

	// ListBySubject returns every live record owned by subjectID.
	ListBySubject(ctx context.Context, subjectID string) ([]*Record, error)

	// RefreshTTL resets the physical TTL for token without rewriting the
	// payload. Refreshing an absent token returns ErrNotFound.
	RefreshTTL(ctx context.Context, token string, ttl time.Duration) error

	Close() error
}
