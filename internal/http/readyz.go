package http

import (
	"net/http"
	"time"

	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/pkg/httpx"
	"github.com/keyline/keyline/pkg/jwtx"
)

// ReadyzHandler answers readiness probes: the token store must respond
// to a ping and the signing ring must hold at least one key. A failed
// check returns 503 with status "degraded".
func ReadyzHandler(
	startTime time.Time,
	version string,
	sessions *refresh.Manager,
	tokens *jwtx.TokenService,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{
			Store:  "ok",
			Signer: "ok",
		}
		status := "ok"
		code := http.StatusOK

		if err := sessions.Ping(r.Context()); err != nil {
			checks.Store = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if tokens.Keys().Current() == nil {
			checks.Signer = "error: no signing keys loaded"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
