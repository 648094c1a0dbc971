// Package http wires the REST and WebSocket surface of the report service.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"reportgen/internal/config"
	"reportgen/internal/middleware"
	"reportgen/internal/websocket"
	"reportgen/pkg/contracts"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	Service        ReportService
	Hub            *websocket.Hub
	MetricsHandler http.Handler
	Config         *config.Config
	Logger         *slog.Logger
}

// NewRouter builds the full HTTP surface with the standard middleware chain.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	if deps.Config.Security.EnableCORS {
		r.Use(middleware.CORS(deps.Config.Security.AllowedOrigins))
	}
	if deps.Config.Security.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			deps.Config.Security.RateLimit.RPS,
			deps.Config.Security.RateLimit.Burst,
			logger)
		r.Use(limiter.Handler)
	}

	reports := NewReportsHandler(deps.Service, logger)
	r.Route("/api", func(api chi.Router) {
		api.Mount("/reports", reports.Routes())
		api.Mount("/users", reports.UserRoutes())
	})

	r.Get("/ws", websocket.ServeWS(deps.Hub, deps.Config.Security.AllowedOrigins, logger))

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]interface{}{
			"status":  "healthy",
			"service": "reportgen",
			"version": contracts.Version,
		})
	})

	return r
}
