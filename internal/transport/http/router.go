// Package httptransport wires the OAuth endpoints onto a chi router. The
// handlers delegate to the service layer; transport concerns (parameter
// parsing, redirects, middleware) stay here.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grantor/pkg/platform/httputil"
	authmw "grantor/pkg/platform/middleware/auth"
	"grantor/pkg/platform/middleware/device"
	"grantor/pkg/platform/middleware/metadata"
	request "grantor/pkg/platform/middleware/request"
	"grantor/pkg/platform/middleware/requesttime"
)

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig carries the handler and optional extras for NewRouter.
type RouterConfig struct {
	OAuth *OAuthHandler

	// TokenValidator and Revocations guard /oauth/userinfo behind the
	// bearer middleware. The route is mounted only when a validator is
	// supplied, so tokens revoked by replay detection or RFC 7009 are
	// rejected at the edge.
	TokenValidator authmw.TokenValidator
	Revocations    authmw.RevocationChecker

	// HealthCheckers are polled by /healthz, keyed by dependency name.
	HealthCheckers map[string]HealthChecker

	// ExposeMetrics mounts /metrics with the default Prometheus registry.
	ExposeMetrics bool
}

// NewRouter wires all public endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)

	r.Route("/oauth", func(oauth chi.Router) {
		oauth.Get("/authorize", cfg.OAuth.HandleAuthorize)
		oauth.Post("/authorize", cfg.OAuth.HandleAuthorize)
		oauth.Post("/token", cfg.OAuth.HandleToken)
		oauth.Post("/revoke", cfg.OAuth.HandleRevoke)

		if cfg.TokenValidator != nil {
			oauth.Group(func(protected chi.Router) {
				protected.Use(authmw.RequireBearer(cfg.TokenValidator, cfg.Revocations, nil))
				protected.Get("/userinfo", handleUserInfo)
			})
		}
	})

	r.Get("/healthz", healthHandler(cfg.HealthCheckers))
	if cfg.ExposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

func healthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := map[string]string{}
		for name, checker := range checkers {
			if checker == nil {
				continue
			}
			if err := checker.Health(r.Context()); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"failed": failed,
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
