package http

import (
	"net/http"

	"github.com/keyline/keyline/internal/introspect"
	"github.com/keyline/keyline/pkg/httpx"
)

// IntrospectHandler serves POST /v1/oauth2/introspect per RFC 7662.
// The service layer guarantees the response is always 200 with at
// minimum {"active": false}; this handler only rejects malformed
// transport-level requests.
type IntrospectHandler struct {
	Introspector *introspect.Service
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !acceptFormBody(w, r) {
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	resp := h.Introspector.Introspect(r.Context(), introspect.Request{
		Token:         token,
		TokenTypeHint: r.Form.Get("token_type_hint"),
	})
	httpx.WriteJSON(w, http.StatusOK, resp)
}
