package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/mediabot/internal/api/handler"
	mw "github.com/iconidentify/mediabot/internal/api/middleware"
	"github.com/iconidentify/mediabot/internal/metrics"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	healthHandler *handler.HealthHandler,
	collector *metrics.Collector,
	statusToken string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger, collector))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", healthHandler.Index)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	r.Group(func(r chi.Router) {
		r.Use(mw.TokenAuth(statusToken))
		r.Get("/status", healthHandler.Status)
		if collector != nil {
			r.Method(http.MethodGet, "/metrics", collector.Handler())
		}
	})

	return r
}
