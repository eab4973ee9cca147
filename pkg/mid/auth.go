package mid

import (
	"context"
	"net/http"
)

// Role is the capability level granted to an API key. Editors may work the
// moderation queue and the content library; admins may additionally manage
// sources, quality settings, and other configuration.
type Role string

const (
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// KeyHeader is the request header carrying the API key.
const KeyHeader = "X-ASAP-Key"

type roleCtxKey struct{}

// RoleFrom returns the authenticated role stored on the request context.
func RoleFrom(ctx context.Context) (Role, bool) {
	r, ok := ctx.Value(roleCtxKey{}).(Role)
	return r, ok
}

// Auth returns middleware that resolves the API key to a role and rejects
// unknown keys. The 403 body is written by deny so the envelope matches
// the rest of the API.
func Auth(keys map[string]Role, deny http.HandlerFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := keys[r.Header.Get(KeyHeader)]
			if !ok {
				deny(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), roleCtxKey{}, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Allows reports whether the role satisfies the required capability.
// Admin implies editor.
func (r Role) Allows(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
