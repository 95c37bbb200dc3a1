package auth

import (
	"net/http"
)

// LoadIdentity resolves the session once per request and stores the identity
// in the request context. Anonymous requests pass through unchanged.
//
// Handlers then call IdentityFromContext / IsAdmin instead of touching the
// session store directly.
func LoadIdentity(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := sessions.Current(r); ok {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminAPI guards JSON endpoints: anyone but an admin gets 403.
func RequireAdminAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"forbidden","message":"admin privileges required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdminRedirect guards page-flow actions: anyone but an admin is sent
// to the URL built by target, and the request is not processed.
func RequireAdminRedirect(target func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(r.Context()) {
				http.Redirect(w, r, target(r), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
