// Package router assembles the platform HTTP surface: the control REST API,
// the subscriber websocket endpoint, health and metrics.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stagewire/platform/internal/app/httpapi"
	"github.com/stagewire/platform/internal/config"
	"github.com/stagewire/platform/internal/control"
	"github.com/stagewire/platform/internal/httputil"
	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
	"github.com/stagewire/platform/internal/middleware"
	"github.com/stagewire/platform/internal/transport/ws"
)

// New wires the routes and middleware for the platform server.
func New(cfg *config.Config, log *logging.Logger, mets *metrics.Metrics, registry *control.Registry, gateway *control.Gateway, bus *control.Bus) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"service":   "stagewire",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Method(http.MethodGet, "/metrics", mets.Handler())

	// The websocket endpoint is mounted outside the instrumented group:
	// response-writer wrapping would break the connection hijack.
	wsHandler := ws.NewHandler(bus, log, cfg.WS, ws.WithHandlerMetrics(mets))
	r.Handle("/ws", wsHandler)

	var identityMW func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		identityMW = middleware.NewAuthMiddleware([]byte(cfg.Auth.Secret), log, nil).Handler
	}
	api := httpapi.NewHandler(registry, gateway, identityMW)

	r.Route("/api/v1/control", func(g chi.Router) {
		g.Use(middleware.LoggingMiddleware(log))
		g.Use(middleware.MetricsMiddleware(mets))
		if cfg.RateLimit.Enabled {
			limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
			limiter.StartCleanup(10 * time.Minute)
			g.Use(limiter.Handler)
		}
		g.Mount("/", api)
	})

	return r
}
