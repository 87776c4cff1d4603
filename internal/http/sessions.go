package http

import (
	"net/http"
	"time"

	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/pkg/httpx"
	"github.com/keyline/keyline/pkg/slogx"
)

// Session is the caller-facing view of one active refresh token record.
// The token itself is never echoed back.
type Session struct {
	TokenID   string    `json:"token_id"`
	FamilyID  string    `json:"family_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// SessionsListResponse is the GET /v1/sessions body.
type SessionsListResponse struct {
	Sessions []Session `json:"sessions"`
}

// SessionsHandler lets an authenticated user inspect and revoke their
// own refresh tokens.
type SessionsHandler struct {
	Sessions *refresh.Manager
}

// HandleList serves GET /v1/sessions: the caller's active refresh
// token records, oldest first.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "missing authentication")
		return
	}

	records, err := h.Sessions.ListUserSessions(ctx, userID)
	if err != nil {
		log.Error("session listing failed", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "unable to process the request")
		return
	}

	out := SessionsListResponse{Sessions: make([]Session, 0, len(records))}
	for _, rec := range records {
		out.Sessions = append(out.Sessions, Session{
			TokenID:   rec.TokenID,
			FamilyID:  rec.FamilyID,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
			DeviceID:  rec.DeviceID,
			IPAddress: rec.IPAddress,
			UserAgent: rec.UserAgent,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevokeAll serves DELETE /v1/sessions: revokes every active
// refresh token the caller holds, signing them out everywhere.
func (h *SessionsHandler) HandleRevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "missing authentication")
		return
	}

	revoked, err := h.Sessions.RevokeAllUserTokens(ctx, userID, refresh.ReasonUserRequested)
	if err != nil {
		log.Error("session revocation failed", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "unable to process the request")
		return
	}

	log.Info("user sessions revoked", "user_id", userID, "count", revoked)
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}
