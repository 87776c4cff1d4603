package http

import (
	"net/http"
	"strings"

	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/pkg/httpx"
	"github.com/keyline/keyline/pkg/slogx"
)

// RevokeHandler serves POST /v1/oauth2/revoke. The plain RFC 7009 form
// (token + token_type_hint) needs no authentication and always returns
// 200, even for unknown tokens, to block token scanning. The wider
// scopes (user_id, family_id) require a bearer token carrying the
// tokens:revoke permission.
type RevokeHandler struct {
	Sessions  *refresh.Manager
	Validator httpx.TokenValidator
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !acceptFormBody(w, r) {
		return
	}

	userID := strings.TrimSpace(r.Form.Get("user_id"))
	familyID := strings.TrimSpace(r.Form.Get("family_id"))
	if userID != "" || familyID != "" {
		h.handlePrivileged(w, r, userID, familyID)
		return
	}

	h.handleToken(w, r)
}

// handleToken is the RFC 7009 path.
func (h *RevokeHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token := r.Form.Get("token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	hint := r.Form.Get("token_type_hint")
	if hint == "" || hint == "refresh_token" {
		if err := h.Sessions.RevokePresentedToken(ctx, token); err != nil {
			// 200 regardless; just note it.
			log.Warn("token revocation no-op", "err", err)
		}
	}

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

// handlePrivileged revokes at user or family scope.
func (h *RevokeHandler) handlePrivileged(w http.ResponseWriter, r *http.Request, userID, familyID string) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, err := bearerClaims(r, h.Validator)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "scoped revocation requires authentication")
		return
	}
	if err := claims.RequirePermissions(PermTokensRevoke); err != nil {
		httpx.WriteError(w, http.StatusForbidden,
			"insufficient_scope", "caller lacks "+PermTokensRevoke)
		return
	}

	var revoked int
	switch {
	case userID != "":
		revoked, err = h.Sessions.RevokeAllUserTokens(ctx, userID, refresh.ReasonSecurityEvent)
	case familyID != "":
		revoked, err = h.Sessions.RevokeTokenFamily(ctx, familyID, refresh.ReasonFamilyRevoked)
	}
	if err != nil {
		log.Error("scoped revocation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "unable to process the request")
		return
	}

	log.Info("tokens revoked",
		"by", claims.Subject, "user_id", userID, "family_id", familyID, "count", revoked)
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}
