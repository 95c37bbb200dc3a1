package auth

import (
	"context"
	"net/http"
)

// Identity is what a session remembers about the logged-in user.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// Sessions maps an HTTP request to the identity established at login.
//
// Implementations: CookieSessions (signed gorilla session cookie) and
// TokenSessions (JWT in an HttpOnly cookie). Handlers and middleware depend
// only on this interface, so tests can substitute an in-memory fake.
type Sessions interface {
	// Current returns the identity of the request, or false if anonymous.
	Current(r *http.Request) (Identity, bool)
	// Establish replaces whatever the request carried with id.
	Establish(w http.ResponseWriter, r *http.Request, id Identity) error
	// Clear forgets the identity. Clearing an anonymous request is not an error.
	Clear(w http.ResponseWriter, r *http.Request) error
}

// contextKey is unexported so only this package can set or read identities.
type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity LoadIdentity stored, or false for
// anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// IsAdmin reports whether the request context belongs to an admin session.
func IsAdmin(ctx context.Context) bool {
	id, ok := IdentityFromContext(ctx)
	return ok && id.IsAdmin
}
