package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autonoc/autonoc/internal/auth"
	"github.com/autonoc/autonoc/internal/config"
	"github.com/autonoc/autonoc/internal/middleware"
	"github.com/autonoc/autonoc/internal/probe"
	"github.com/autonoc/autonoc/internal/runner"
	"github.com/autonoc/autonoc/internal/sanitize"
	"github.com/autonoc/autonoc/internal/store"
)

// Pinger reports backend storage health. *store.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies carries the shared services the handlers need.
type Dependencies struct {
	Querier   store.Querier
	Auth      *auth.Service
	Runner    *runner.Runner
	Hub       *Hub
	Sanitizer *sanitize.Sanitizer
	Prober    *probe.Prober
	Pinger    Pinger
	Logger    *slog.Logger
}

// NewRouter creates and configures the API router
func NewRouter(cfg *config.Config, deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// CORS (if enabled)
	if cfg.CORS.Enabled {
		r.Use(middleware.CORS(
			cfg.CORS.AllowedOrigins,
			cfg.CORS.AllowedMethods,
			cfg.CORS.AllowedHeaders,
			cfg.CORS.MaxAgeSeconds,
		))
	}

	// Initialize handlers
	healthHandler := NewHealthHandler(deps.Pinger)
	systemHandler := NewSystemHandler(deps.Auth)
	runHandler := NewRunHandler(deps.Runner, deps.Querier, deps.Auth, deps.Hub)
	probeHandler := NewProbeHandler(deps.Prober)
	sanitizeHandler := NewSanitizeHandler(deps.Sanitizer)
	profileHandler := NewProfileHandler(deps.Querier, deps.Auth)

	// Public routes (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoint
		r.Post("/auth/login", systemHandler.Login)

		// Protected routes (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))

			// Diagnostic runs
			r.Route("/runs", func(r chi.Router) {
				r.Post("/", runHandler.Create)
				r.Get("/", runHandler.List)
				r.Get("/{id}", runHandler.Get)
				r.Get("/{id}/raw", runHandler.Raw)
				r.Get("/{id}/sanitized", runHandler.Sanitized)
				r.Get("/{id}/report", runHandler.Report)
				r.Get("/{id}/events", runHandler.Events)
			})

			// Connection profiles
			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", profileHandler.List)
				r.Post("/", profileHandler.Create)
				r.Get("/{id}", profileHandler.Get)
				r.Delete("/{id}", profileHandler.Delete)
			})

			// One-shot tools
			r.Post("/probe", probeHandler.Probe)
			r.Post("/sanitize", sanitizeHandler.Sanitize)
		})
	})

	return r
}
