// Package http wires the service's endpoints: the OAuth2 token,
// revocation, and introspection surface, authenticated issuance and
// session listing, and health probes.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/keyline/keyline/internal/introspect"
	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/pkg/httpx"
	"github.com/keyline/keyline/pkg/jwtx"
	"github.com/keyline/keyline/pkg/slogx"
)

// Permissions guarding the privileged endpoints.
const (
	PermTokensIssue  = "tokens:issue"
	PermTokensRevoke = "tokens:revoke"
)

// Router holds shared dependencies for the HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	tokens       *jwtx.TokenService
	sessions     *refresh.Manager
	introspector *introspect.Service

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

// NewRouter builds the router; call ApplyRoutes before serving.
func NewRouter(
	tokens *jwtx.TokenService,
	sessions *refresh.Manager,
	introspector *introspect.Service,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		tokens:       tokens,
		sessions:     sessions,
		introspector: introspector,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every endpoint with its middleware chain.
func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerTokens()
	r.registerSessions()
	r.registerSystem()
}

// ServeHTTP applies the global middleware chain around the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// Token grants carry credentials: strict per-IP limiting.
	tokenHandler := &TokenHandler{Sessions: r.sessions}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	revokeHandler := &RevokeHandler{Sessions: r.sessions, Validator: r.tokens}
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// Resource servers call introspection on their hot paths: lenient,
	// but still authenticated.
	introspectHandler := &IntrospectHandler{Introspector: r.introspector}
	r.Mux.Handle("POST /v1/oauth2/introspect",
		httpx.Chain(introspectHandler,
			httpx.AuthnMiddleware(r.tokens),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerTokens() {
	issueHandler := &IssueHandler{Tokens: r.tokens, Sessions: r.sessions}
	r.Mux.Handle("POST /v1/tokens",
		httpx.Chain(issueHandler,
			httpx.AuthnMiddleware(r.tokens),
			httpx.RequirePermissions(PermTokensIssue),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Sessions: r.sessions}
	r.Mux.Handle("GET /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.AuthnMiddleware(r.tokens),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleRevokeAll),
			httpx.AuthnMiddleware(r.tokens),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.sessions, r.tokens),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
