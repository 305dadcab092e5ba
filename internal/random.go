package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

// ErrWeakRandomSource signals that the process entropy source failed or
// produced output that cannot be trusted. Callers must abort token and salt
// generation instead of proceeding.
var ErrWeakRandomSource = errors.New("weak or unavailable random source")

// MinTokenEntropyBits is the floor for session token entropy.
const MinTokenEntropyBits = 128

// NewToken returns an opaque session token carrying at least entropyBits of
// CSPRNG entropy, encoded as unpadded base64url.
func NewToken(entropyBits int) (string, error) {
	if entropyBits < MinTokenEntropyBits {
		entropyBits = MinTokenEntropyBits
	}

	raw := make([]byte, (entropyBits+7)/8)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", errors.Join(ErrWeakRandomSource, err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewSalt returns n bytes of CSPRNG salt.
func NewSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Join(ErrWeakRandomSource, err)
	}
	return salt, nil
}

// CheckEntropy performs a point-in-time sanity check of the entropy source:
// two independent reads must succeed and produce distinct, non-zero output.
// It cannot prove the source is cryptographically secure, but it catches a
// stubbed or exhausted reader before any credential material depends on it.
func CheckEntropy() error {
	var a, b [32]byte

	if _, err := io.ReadFull(rand.Reader, a[:]); err != nil {
		return errors.Join(ErrWeakRandomSource, err)
	}
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return errors.Join(ErrWeakRandomSource, err)
	}

	var zero [32]byte
	if a == zero || b == zero || a == b {
		return ErrWeakRandomSource
	}

	return nil
}

// TokenFingerprint returns a short stable identifier for a token, safe to
// write to logs and audit events. The raw token never leaves the core.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
