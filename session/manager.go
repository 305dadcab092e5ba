package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mwfields/authcore/internal"
)

// ErrExpired is returned when a record exists but is past its idle timeout
// or absolute ceiling. Outer layers collapse it with ErrNotFound before
// anything reaches a caller.
var ErrExpired = errors.New("session expired")

// ErrBindingMismatch is returned by ValidateBound when a configured binding
// attribute does not match the presented value.
var ErrBindingMismatch = errors.New("session binding mismatch")

// Config sets the expiry policy and token shape for a Manager.
type Config struct {
	// IdleTimeout is the sliding window: a session untouched for longer is
	// rejected on its next validation.
	IdleTimeout time.Duration

	// MaxLifetime is the absolute ceiling measured from creation. Activity
	// never extends a session past it.
	MaxLifetime time.Duration

	// TokenEntropyBits sizes new tokens; values below 128 are raised to 128.
	TokenEntropyBits int

	// BindingAttributes lists attribute keys checked by ValidateBound.
	// Binding is best-effort and off by default: descriptors like client
	// address churn legitimately, so mismatches reject the request without
	// revoking the session.
	BindingAttributes []string
}

// Manager owns every session record mutation. It enforces both expiry
// bounds on each validation, regenerates tokens on re-authentication, and
// treats any store failure as a rejection.
type Manager struct {
	store Store
	cfg   Config

	now      func() time.Time
	newToken func(entropyBits int) (string, error)
}

// NewManager validates cfg and returns a Manager over store.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.IdleTimeout <= 0 {
		return nil, errors.New("idle timeout must be positive")
	}
	if cfg.MaxLifetime < cfg.IdleTimeout {
		return nil, errors.New("max lifetime must be >= idle timeout")
	}
	if cfg.TokenEntropyBits < internal.MinTokenEntropyBits {
		cfg.TokenEntropyBits = internal.MinTokenEntropyBits
	}

	return &Manager{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		newToken: internal.NewToken,
	}, nil
}

// Create issues a fresh token for subjectID and writes its record. When the
// caller presented a pre-existing token on this authentication (priorToken),
// that token is deleted first so an attacker-chosen identifier can never
// survive a privilege change. If the deletion cannot be confirmed the whole
// creation fails rather than leaving the old token live.
func (m *Manager) Create(ctx context.Context, subjectID string, attributes map[string]string, priorToken string) (*Record, error) {
	if priorToken != "" {
		if err := m.store.Delete(ctx, priorToken); err != nil {
			return nil, fmt.Errorf("revoking prior session: %w", err)
		}
	}

	token, err := m.newToken(m.cfg.TokenEntropyBits)
	if err != nil {
		return nil, err
	}

	now := m.now()
	record := &Record{
		Token:             token,
		SubjectID:         subjectID,
		CreatedAt:         now.Unix(),
		LastActiveAt:      now.Unix(),
		AbsoluteExpiresAt: now.Add(m.cfg.MaxLifetime).Unix(),
	}
	if len(attributes) > 0 {
		record.Attributes = make(map[string]string, len(attributes))
		for k, v := range attributes {
			record.Attributes[k] = v
		}
	}

	if err := m.store.Put(ctx, record, m.ttlFor(record, now)); err != nil {
		return nil, err
	}

	return record.Clone(), nil
}

// Validate fetches the record for token and applies the expiry policy as of
// now: absent records reject with ErrNotFound; records past either bound
// are deleted and reject with ErrExpired; live records get their sliding
// window renewed and are returned. Store failures reject — an indeterminate
// session is never treated as authenticated.
func (m *Manager) Validate(ctx context.Context, token string) (*Record, error) {
	record, err := m.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrCorruptRecord) {
			// Schema-mismatched payloads are dead on arrival.
			if delErr := m.store.Delete(ctx, token); delErr != nil {
				return nil, delErr
			}
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := m.now()
	if now.Unix() > record.AbsoluteExpiresAt {
		if err := m.store.Delete(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	if now.Unix()-record.LastActiveAt > int64(m.cfg.IdleTimeout/time.Second) {
		if err := m.store.Delete(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	record.LastActiveAt = now.Unix()
	if err := m.store.Put(ctx, record, m.ttlFor(record, now)); err != nil {
		return nil, err
	}

	return record.Clone(), nil
}

// ValidateBound layers the optional attribute-binding check over Validate.
// presented supplies the caller-observed values for the configured binding
// keys; a key absent from the record is not checked.
func (m *Manager) ValidateBound(ctx context.Context, token string, presented map[string]string) (*Record, error) {
	record, err := m.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	for _, key := range m.cfg.BindingAttributes {
		bound, ok := record.Attributes[key]
		if !ok {
			continue
		}
		if presented[key] != bound {
			return nil, ErrBindingMismatch
		}
	}

	return record, nil
}

// Revoke deletes the record for token. Revoking an absent token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}

// RevokeAll deletes every session owned by subjectID except exceptToken
// (pass "" to revoke all). Deletions are per-token; a validate racing this
// call on a not-yet-deleted token may be accepted once more, after which the
// token is gone.
func (m *Manager) RevokeAll(ctx context.Context, subjectID string, exceptToken string) (int, error) {
	records, err := m.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, record := range records {
		if record.Token == exceptToken {
			continue
		}
		if err := m.store.Delete(ctx, record.Token); err != nil {
			return revoked, err
		}
		revoked++
	}

	return revoked, nil
}

// List returns the live sessions owned by subjectID.
func (m *Manager) List(ctx context.Context, subjectID string) ([]*Record, error) {
	return m.store.ListBySubject(ctx, subjectID)
}

// ttlFor bounds the physical TTL by both the sliding window and the time
// remaining until the absolute ceiling.
func (m *Manager) ttlFor(record *Record, now time.Time) time.Duration {
	ttl := m.cfg.IdleTimeout
	if remaining := record.ExpiresIn(now); remaining < ttl {
		ttl = remaining
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
