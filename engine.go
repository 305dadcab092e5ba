package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mwfields/authcore/internal"
	"github.com/mwfields/authcore/password"
	"github.com/mwfields/authcore/session"
)

// Engine is the authentication core. Construct one through the Builder,
// share it across requests, and Close it on shutdown.
type Engine struct {
	config    Config
	pool      *password.Pool
	sessions  *session.Manager
	store     session.Store
	creds     CredentialSource
	rateCheck RateCheck
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *slog.Logger

	// decoy is a full-cost record for a secret nobody knows. Unknown
	// identifiers are verified against it so the lookup miss costs the
	// same wall-clock time as a wrong secret on a real account.
	decoy string
}

// Login verifies req.Secret for req.Identifier and, on success, issues a
// fresh session token. The rate veto runs before any hashing; unknown
// identifiers and wrong secrets both pay full hashing cost and both come
// back as ErrInvalidCredentials. When the stored record is weaker than the
// live cost target the credential is rehashed opportunistically.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (string, *Identity, error) {
	if e == nil {
		return "", nil, ErrEngineNotReady
	}

	if e.rateCheck != nil {
		if err := e.rateCheck(ctx, req.Identifier); err != nil {
			e.metrics.Inc(MetricLoginRateVetoed)
			e.emit(ctx, AuditEvent{
				EventType: AuditLoginVetoed,
				Error:     err.Error(),
			})
			return "", nil, ErrRateExceeded
		}
	}

	subjectID, record, err := e.creds.Lookup(ctx, req.Identifier)
	known := err == nil
	if err != nil {
		if !errors.Is(err, ErrUnknownIdentity) {
			e.logger.Error("credential lookup failed", "error", err)
			e.metrics.Inc(MetricStoreError)
			return "", nil, ErrStoreUnavailable
		}
		record = e.decoy
	}

	outcome, err := e.pool.Verify(ctx, req.Secret, record)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrCapacity):
			e.metrics.Inc(MetricLoginHashSaturated)
			return "", nil, ErrHashCapacity
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return "", nil, err
		case errors.Is(err, password.ErrMalformedRecord):
			e.logger.Error("stored credential record unreadable", "subject", subjectID, "error", err)
			return "", nil, ErrInvalidCredentials
		default:
			return "", nil, err
		}
	}

	if !known || !outcome.Matched {
		e.metrics.Inc(MetricLoginFailure)
		e.emit(ctx, AuditEvent{EventType: AuditLoginFailure})
		return "", nil, ErrInvalidCredentials
	}

	if outcome.NeedsRehash && e.config.Password.UpgradeOnLogin {
		e.upgradeCredential(ctx, subjectID, req.Secret)
	}

	rec, err := e.sessions.Create(ctx, subjectID, req.Attributes, req.PriorToken)
	if err != nil {
		e.logger.Error("session creation failed", "subject", subjectID, "error", err)
		if errors.Is(err, ErrWeakRandomSource) {
			e.metrics.Inc(MetricEntropyFailure)
			return "", nil, ErrWeakRandomSource
		}
		e.metrics.Inc(MetricStoreError)
		if errors.Is(err, session.ErrUnavailable) {
			return "", nil, ErrStoreUnavailable
		}
		return "", nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emit(ctx, AuditEvent{
		EventType:          AuditSessionCreated,
		SubjectID:          subjectID,
		SessionFingerprint: internal.TokenFingerprint(rec.Token),
		Success:            true,
	})
	e.emit(ctx, AuditEvent{
		EventType:          AuditLoginSuccess,
		SubjectID:          subjectID,
		SessionFingerprint: internal.TokenFingerprint(rec.Token),
		Success:            true,
	})

	return rec.Token, &Identity{SubjectID: rec.SubjectID, Attributes: rec.Attributes}, nil
}

// Validate checks token against the session policy and renews its sliding
// window. Not-found, expired, and binding rejections all come back as
// ErrUnauthorized; a store failure comes back as ErrStoreUnavailable and is
// likewise never an authenticated result.
func (e *Engine) Validate(ctx context.Context, token string) (*Identity, error) {
	return e.validate(ctx, token, nil, false)
}

// ValidateBound is Validate plus the optional attribute-binding check, fed
// with the caller-observed values for the configured binding keys.
func (e *Engine) ValidateBound(ctx context.Context, token string, presented map[string]string) (*Identity, error) {
	return e.validate(ctx, token, presented, true)
}

func (e *Engine) validate(ctx context.Context, token string, presented map[string]string, bound bool) (*Identity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		e.metrics.Inc(MetricValidateRejected)
		return nil, ErrUnauthorized
	}

	var (
		rec *session.Record
		err error
	)
	if bound {
		rec, err = e.sessions.ValidateBound(ctx, token, presented)
	} else {
		rec, err = e.sessions.Validate(ctx, token)
	}
	if err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			e.logger.Error("session store unavailable during validation", "error", err)
			e.metrics.Inc(MetricStoreError)
			e.emit(ctx, AuditEvent{EventType: AuditStoreError, Error: err.Error()})
			return nil, ErrStoreUnavailable
		}

		e.metrics.Inc(MetricValidateRejected)
		e.emit(ctx, AuditEvent{
			EventType:          AuditSessionRejected,
			SessionFingerprint: internal.TokenFingerprint(token),
		})
		return nil, ErrUnauthorized
	}

	e.metrics.Inc(MetricValidateSuccess)
	return &Identity{SubjectID: rec.SubjectID, Attributes: rec.Attributes}, nil
}

// Logout revokes token. Revoking an absent token is not an error.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.sessions.Revoke(ctx, token); err != nil {
		e.logger.Error("session revocation failed", "error", err)
		e.metrics.Inc(MetricStoreError)
		return ErrStoreUnavailable
	}

	e.metrics.Inc(MetricSessionRevoked)
	e.emit(ctx, AuditEvent{
		EventType:          AuditSessionRevoked,
		SessionFingerprint: internal.TokenFingerprint(token),
		Success:            true,
	})
	return nil
}

// LogoutEverywhereElse revokes every session of subjectID except keepToken,
// for "log out other devices" and forced logout on compromise. Pass "" to
// revoke everything.
func (e *Engine) LogoutEverywhereElse(ctx context.Context, subjectID string, keepToken string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.sessions.RevokeAll(ctx, subjectID, keepToken)
	if err != nil {
		e.logger.Error("bulk revocation failed", "subject", subjectID, "error", err)
		e.metrics.Inc(MetricStoreError)
		return revoked, ErrStoreUnavailable
	}

	e.metrics.Inc(MetricRevokeAll)
	e.emit(ctx, AuditEvent{
		EventType: AuditSessionRevokeAll,
		SubjectID: subjectID,
		Success:   true,
	})
	return revoked, nil
}

// HashSecret produces a credential record for secret at the live cost
// target, on a pool slot. Registration and secret-change flows live outside
// the core and persist the returned record through their identity store.
func (e *Engine) HashSecret(ctx context.Context, secret string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	record, err := e.pool.Hash(ctx, secret)
	if err != nil {
		if errors.Is(err, password.ErrCapacity) {
			e.metrics.Inc(MetricLoginHashSaturated)
			return "", ErrHashCapacity
		}
		if errors.Is(err, ErrWeakRandomSource) {
			e.metrics.Inc(MetricEntropyFailure)
		}
		return "", err
	}
	return record, nil
}

// ChangeSecret re-verifies oldSecret, stores a record for newSecret, and
// revokes every other session of the subject. keepToken survives so the
// device performing the change stays logged in.
func (e *Engine) ChangeSecret(ctx context.Context, identifier, oldSecret, newSecret, keepToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	subjectID, record, err := e.creds.Lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUnknownIdentity) {
			// Same cost as a wrong secret on a known account.
			_, _ = e.pool.Verify(ctx, oldSecret, e.decoy)
			return ErrInvalidCredentials
		}
		e.logger.Error("credential lookup failed", "error", err)
		return ErrStoreUnavailable
	}

	outcome, err := e.pool.Verify(ctx, oldSecret, record)
	if err != nil {
		if errors.Is(err, password.ErrCapacity) {
			return ErrHashCapacity
		}
		return err
	}
	if !outcome.Matched {
		e.metrics.Inc(MetricLoginFailure)
		return ErrInvalidCredentials
	}

	updated, err := e.pool.Hash(ctx, newSecret)
	if err != nil {
		return err
	}
	if err := e.creds.UpdateCredential(ctx, subjectID, updated); err != nil {
		e.logger.Error("credential update failed", "subject", subjectID, "error", err)
		return ErrStoreUnavailable
	}

	if _, err := e.LogoutEverywhereElse(ctx, subjectID, keepToken); err != nil {
		return err
	}
	return nil
}

// SessionInfo is the admin-facing view of one live session.
type SessionInfo struct {
	Fingerprint  string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
	Attributes   map[string]string
}

// ActiveSessions lists a subject's live sessions by fingerprint. Raw tokens
// stay inside the core.
func (e *Engine) ActiveSessions(ctx context.Context, subjectID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.sessions.List(ctx, subjectID)
	if err != nil {
		e.metrics.Inc(MetricStoreError)
		return nil, ErrStoreUnavailable
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, SessionInfo{
			Fingerprint:  internal.TokenFingerprint(rec.Token),
			CreatedAt:    time.Unix(rec.CreatedAt, 0),
			LastActiveAt: time.Unix(rec.LastActiveAt, 0),
			ExpiresAt:    time.Unix(rec.AbsoluteExpiresAt, 0),
			Attributes:   rec.Attributes,
		})
	}
	return infos, nil
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes the audit dispatcher and releases the session store.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.audit.Close()
	return e.store.Close()
}

func (e *Engine) upgradeCredential(ctx context.Context, subjectID, secret string) {
	upgraded, err := e.pool.Hash(ctx, secret)
	if err != nil {
		// Saturation or cancellation; the login itself still succeeds and
		// the next one gets another chance.
		return
	}

	if err := e.creds.UpdateCredential(ctx, subjectID, upgraded); err != nil {
		e.logger.Warn("credential rehash upgrade not persisted", "subject", subjectID, "error", err)
		return
	}

	e.metrics.Inc(MetricRehashUpgrade)
	e.emit(ctx, AuditEvent{
		EventType: AuditRehashUpgrade,
		SubjectID: subjectID,
		Success:   true,
	})
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	e.audit.Emit(ctx, event)
}
