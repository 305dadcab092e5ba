// Package middleware adapts the engine to net/http request handling.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mwfields/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by Guard.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok
}

// Options tunes token extraction and the optional binding check.
type Options struct {
	// CookieName is checked first when set. The cookie carrying the token
	// must be delivered Secure and HttpOnly; the core only consumes the
	// echoed value.
	CookieName string

	// DisableBearer turns off the Authorization: Bearer fallback.
	DisableBearer bool

	// BindingValues extracts the caller-observed values for the engine's
	// configured binding attributes. Leave nil unless binding is enabled.
	BindingValues func(r *http.Request) map[string]string
}

// Guard wraps handlers with session validation. Every rejection — missing
// token, unknown token, expired session, binding mismatch, unavailable
// store — produces the same 401 with no distinguishing detail, so sessions
// cannot be enumerated through the middleware. On success the identity is
// attached to the request context and nothing else crosses the boundary.
func Guard(engine *authcore.Engine, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := extractToken(r, opts)
			if !ok {
				unauthorized(w)
				return
			}

			var (
				id  *authcore.Identity
				err error
			)
			if opts.BindingValues != nil {
				id, err = engine.ValidateBound(r.Context(), token, opts.BindingValues(r))
			} else {
				id, err = engine.Validate(r.Context(), token)
			}
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func extractToken(r *http.Request, opts Options) (string, bool) {
	if opts.CookieName != "" {
		if cookie, err := r.Cookie(opts.CookieName); err == nil && cookie.Value != "" {
			return cookie.Value, true
		}
	}

	if !opts.DisableBearer {
		return bearerToken(r.Header.Get("Authorization"))
	}

	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
