package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/datamantri/internal/api/alerts"
	"github.com/good-yellow-bee/datamantri/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter(ctx context.Context) *chi.Mux {
	r := chi.NewRouter()

	evaluateLimiter := middleware.NewRateLimiter(ctx, s.config.EvaluateRateLimit, time.Minute)

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	alertHandler := alerts.NewHandler(s.storage.Alerts(), s.storage.AlertHistory(), s.runner, s.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", alertHandler.GetByID)
				r.Delete("/", alertHandler.Delete)
				r.Put("/active", alertHandler.SetActive)
				r.Get("/history", alertHandler.AlertHistory)
				r.With(middleware.RateLimitByIP(evaluateLimiter)).Post("/evaluate", alertHandler.Evaluate)
			})
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", alertHandler.History)
			r.Post("/{id}/resolve", alertHandler.Resolve)
		})
	})

	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
