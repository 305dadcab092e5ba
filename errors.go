package authcore

import (
	"errors"

	"github.com/mwfields/authcore/internal"
	"github.com/mwfields/authcore/password"
	"github.com/mwfields/authcore/session"
)

var (
	// ErrInvalidCredentials is the single failure Login reports for a wrong
	// secret, an unknown identifier, or an unreadable stored record. The
	// cases are indistinguishable to callers by both value and timing.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is the uniform session rejection: not-found, expired,
	// and binding failures all collapse into it before leaving the engine.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrWeakRandomSource aborts hashing and token generation when the
	// entropy source fails its checks.
	ErrWeakRandomSource = internal.ErrWeakRandomSource

	// ErrStoreUnavailable reports a session backend failure or timeout.
	// It always rejects; an indeterminate session is never authenticated.
	ErrStoreUnavailable = session.ErrUnavailable

	// ErrRateExceeded is returned when the configured pre-check veto
	// refuses to let an expensive hash run. The engine ships no throttling
	// of its own; see RateCheck.
	ErrRateExceeded = errors.New("rate exceeded")

	// ErrHashCapacity reports that every slot of the bounded hashing pool
	// is busy and the pool is configured to reject rather than queue.
	ErrHashCapacity = password.ErrCapacity

	// ErrUnknownIdentity is returned by CredentialSource implementations
	// when no record exists for an identifier. Login never surfaces it: the
	// engine verifies against a decoy record and reports
	// ErrInvalidCredentials in the same wall-clock envelope.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrEngineNotReady is returned when an Engine method is called before
	// a successful Build.
	ErrEngineNotReady = errors.New("engine not ready")
)
