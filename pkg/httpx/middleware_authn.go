package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/keyline/keyline/pkg/jwtx"
	"github.com/keyline/keyline/pkg/slogx"
)

// TokenValidator is the capability the authn middleware consumes:
// plain token string in, validated claims or a typed error out. The
// jwtx.TokenService satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (jwtx.Claims, error)
}

// AuthnMiddleware authenticates requests via Authorization: Bearer.
// Validated claims are attached to the request context. Failures map
// to status codes by error class: expiry and any other validation
// failure give 401, a key manager with no loaded material gives 503.
func AuthnMiddleware(v TokenValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.ValidateToken(raw)
			switch {
			case err == nil:
			case errors.Is(err, jwtx.ErrServiceUnavailable):
				log.Error("token validation unavailable", "err", err)
				WriteError(w, http.StatusServiceUnavailable,
					"temporarily_unavailable", "token validation unavailable")
				return
			case errors.Is(err, jwtx.ErrTokenExpired):
				writeBearerError(w, "token expired")
				return
			default:
				log.Warn("bearer token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	return token, token != ""
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate",
		`Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
