package authcore

import "context"

// Identity is what a validated session exposes to request handling: the
// owning principal and the flat attributes attached at login. The session
// record and the store behind it are never exposed upward.
type Identity struct {
	SubjectID  string
	Attributes map[string]string
}

// CredentialSource adapts the external identity store. Implementations
// return the stored record for an identifier, or ErrUnknownIdentity; the
// engine handles unknown identifiers without a distinguishable timing or
// error signal.
//
// Records are the self-describing strings produced by Engine.HashSecret.
type CredentialSource interface {
	// Lookup resolves identifier to its principal and credential record.
	Lookup(ctx context.Context, identifier string) (subjectID string, record string, err error)

	// UpdateCredential replaces the stored record for subjectID. Called on
	// opportunistic rehash upgrades and secret changes.
	UpdateCredential(ctx context.Context, subjectID string, record string) error
}

// RateCheck is a pre-check veto consulted before any expensive hash runs.
// Returning a non-nil error rejects the attempt with ErrRateExceeded. The
// engine implements no throttling itself; wire an external limiter here.
type RateCheck func(ctx context.Context, identifier string) error

// LoginRequest carries everything Login needs beyond the secret itself.
type LoginRequest struct {
	// Identifier names the account being authenticated.
	Identifier string

	// Secret is the plaintext secret to verify.
	Secret string

	// Attributes are attached to the new session (role, device descriptor).
	Attributes map[string]string

	// PriorToken is the session token the caller presented before this
	// authentication, if any. It is revoked before the new token is issued
	// so a pre-seeded identifier cannot survive the privilege change.
	PriorToken string
}
