package httpx

import (
	"net/http"
	"strings"
)

// RequirePermissions blocks requests whose claims lack any of the
// listed permissions. Must run inside AuthnMiddleware.
func RequirePermissions(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			if err := claims.RequirePermissions(required...); err != nil {
				writePermissionError(w, required...)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole blocks requests whose claims hold none of the listed
// roles. Must run inside AuthnMiddleware.
func RequireAnyRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			if !claims.HasAnyRole(roles...) {
				writePermissionError(w, roles...)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750 error response for insufficient permissions.
func writePermissionError(w http.ResponseWriter, required ...string) {
	w.Header().Set("WWW-Authenticate",
		`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteError(w, http.StatusForbidden, "insufficient_scope",
		"caller lacks required permissions")
}
