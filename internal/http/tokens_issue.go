package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/pkg/httpx"
	"github.com/keyline/keyline/pkg/jwtx"
	"github.com/keyline/keyline/pkg/slogx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// IssueRequest is the JSON body for POST /v1/tokens.
type IssueRequest struct {
	Type        string   `json:"type" validate:"required,oneof=access refresh email_verification password_reset"`
	Subject     string   `json:"subject" validate:"required"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`

	// TTLSeconds overrides the purpose default when positive.
	TTLSeconds int `json:"ttl_seconds,omitempty" validate:"omitempty,gt=0"`

	// Session metadata, only meaningful for refresh tokens.
	DeviceID  string `json:"device_id,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// IssueResponse carries the minted token.
type IssueResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenID   string    `json:"token_id,omitempty"`
}

// IssueHandler serves POST /v1/tokens: purpose-typed issuance for
// trusted callers. The router guards it with the tokens:issue
// permission.
type IssueHandler struct {
	Tokens   *jwtx.TokenService
	Sessions *refresh.Manager
}

func (h *IssueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second

	// Refresh tokens go through the manager so a record backs them.
	if jwtx.TokenType(req.Type) == jwtx.TokenTypeRefresh {
		token, rec, err := h.Sessions.CreateRefreshToken(ctx, refresh.CreateParams{
			UserID:      req.Subject,
			TenantID:    req.TenantID,
			Roles:       req.Roles,
			Permissions: req.Permissions,
			DeviceID:    req.DeviceID,
			IPAddress:   httpx.IPKeyExtractor(r),
			UserAgent:   req.UserAgent,
		})
		if err != nil {
			log.Error("refresh token issuance failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError,
				"server_error", "unable to issue token")
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, IssueResponse{
			Token:     token,
			TokenType: req.Type,
			ExpiresAt: rec.ExpiresAt,
			TokenID:   rec.TokenID,
		})
		return
	}

	token, claims, err := h.Tokens.IssueToken(jwtx.TokenType(req.Type), jwtx.IssueParams{
		Subject:     req.Subject,
		TenantID:    req.TenantID,
		Roles:       req.Roles,
		Permissions: req.Permissions,
		TTL:         ttl,
	})
	if err != nil {
		if errors.Is(err, jwtx.ErrInvalidTokenType) || errors.Is(err, jwtx.ErrTokenCreation) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "cannot issue this token")
			return
		}
		log.Error("token issuance failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "unable to issue token")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, IssueResponse{
		Token:     token,
		TokenType: req.Type,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}
