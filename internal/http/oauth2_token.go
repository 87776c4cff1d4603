package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/pkg/cryptox"
	"github.com/keyline/keyline/pkg/httpx"
	"github.com/keyline/keyline/pkg/slogx"
)

// TokenResponse is the RFC 6749 token endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// TokenHandler serves POST /v1/oauth2/token. Accepts
// application/x-www-form-urlencoded per RFC 6749; the supported grant
// is refresh_token.
type TokenHandler struct {
	Sessions *refresh.Manager
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !acceptFormBody(w, r) {
		return
	}

	switch r.Form.Get("grant_type") {
	case "refresh_token":
		h.handleRefreshGrant(w, r)
	default:
		httpx.WriteError(w, http.StatusBadRequest,
			"unsupported_grant_type", "only refresh_token is supported")
	}
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token := r.Form.Get("refresh_token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.Sessions.RefreshTokens(ctx, refresh.RefreshRequest{
		RefreshToken: token,
		DeviceID:     strings.TrimSpace(r.Form.Get("device_id")),
		Scopes:       httpx.ParseSpaceDelimitedFields(r.Form.Get("scope")),
	})
	if err != nil {
		if errors.Is(err, refresh.ErrScopeNotGranted) {
			httpx.WriteError(w, http.StatusBadRequest,
				"invalid_scope", "requested scope exceeds the original grant")
			return
		}
		// Redeem failures collapse into invalid_grant: the caller
		// learns the grant is dead, not why.
		if refresh.ErrIsRedeemFailure(err) {
			log.Warn("refresh grant rejected",
				"token_fp", cryptox.FingerprintToken(token), "err", err)
			httpx.WriteError(w, http.StatusBadRequest,
				"invalid_grant", "refresh token is invalid, expired, or revoked")
			return
		}
		log.Error("refresh grant failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "unable to process the request")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	})
}

// acceptFormBody enforces the form content type and parses the body,
// writing the error response itself on failure.
func acceptFormBody(w http.ResponseWriter, r *http.Request) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "content type must be application/x-www-form-urlencoded")
		return false
	}
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "malformed form body")
		return false
	}
	return true
}
