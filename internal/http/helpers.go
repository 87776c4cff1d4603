package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/keyline/keyline/pkg/httpx"
	"github.com/keyline/keyline/pkg/jwtx"
)

// bearerClaims validates the Authorization header on endpoints that
// authenticate conditionally instead of via middleware.
func bearerClaims(r *http.Request, v httpx.TokenValidator) (jwtx.Claims, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return jwtx.Claims{}, fmt.Errorf("%w: missing bearer token", jwtx.ErrTokenValidation)
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	return v.ValidateToken(token)
}
