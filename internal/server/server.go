// Package server provides the HTTP server setup for curator.
package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/curator/internal/api"
	"github.com/MikeSquared-Agency/curator/internal/config"
	"github.com/MikeSquared-Agency/curator/internal/middleware"
)

// Deps are the collaborators behind the HTTP routes. Hermes may be nil.
type Deps struct {
	DB      api.Pinger
	Hermes  api.Connection
	Jobs    api.Jobs
	Tenants api.TenantConfigStore
	Items   api.ItemReader
	Runs    api.RunReader
}

// Server holds the router and its configuration.
type Server struct {
	Router *chi.Mux
	Config *config.Config
	Logger *slog.Logger
}

// New creates a new Server with all routes configured.
func New(cfg *config.Config, d Deps, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))

	healthHandler := api.NewHealthHandler(d.DB, d.Hermes, cfg.JobRegistry, cfg.VectorBackend)
	syncHandler := api.NewSyncHandler(d.Jobs, cfg.IndexBatchSize)
	tenantHandler := api.NewTenantHandler(d.Tenants, d.Items, d.Runs)

	syncRL := middleware.NewRateLimiter(cfg.SyncRateLimit, cfg.RateWindow)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health (no rate limit)
		r.Get("/health", healthHandler.Health)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/config", tenantHandler.GetConfig)
			r.Put("/config", tenantHandler.PutConfig)

			r.Get("/items", tenantHandler.ListItems)
			r.Get("/stats", tenantHandler.Stats)
			r.Get("/runs", tenantHandler.Runs)

			r.Group(func(r chi.Router) {
				r.Use(syncRL.Middleware)
				r.Post("/sync", syncHandler.StartSync)
				r.Get("/sync", syncHandler.SyncStatus)
				r.Delete("/sync", syncHandler.StopSync)
				r.Post("/reindex", syncHandler.StartReindex)
				r.Get("/reindex", syncHandler.ReindexStatus)
				r.Post("/retry", syncHandler.Retry)
			})
		})
	})

	return &Server{
		Router: r,
		Config: cfg,
		Logger: logger,
	}
}
