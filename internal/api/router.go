// Package api assembles the HTTP surface of the render service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/typereel/internal/api/handler"
	"github.com/hszk-dev/typereel/internal/api/middleware"
)

// Handlers are the endpoints mounted by NewRouter. Optional handlers are
// left nil when their feature is disabled.
type Handlers struct {
	Render  *handler.RenderHandler
	Ready   *handler.ReadyHandler
	Prewarm *handler.PrewarmHandler
	Jobs    *handler.JobsHandler
}

// NewRouter builds the chi router with the standard middleware chain.
func NewRouter(logger *slog.Logger, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/", h.Render.Render)
	r.Get("/health", handler.Health)
	if h.Ready != nil {
		r.Get("/ready", h.Ready.Ready)
	}
	r.Handle("/metrics", promhttp.Handler())

	if h.Prewarm != nil {
		r.Post("/v1/prewarm", h.Prewarm.Prewarm)
	}
	if h.Jobs != nil {
		r.Get("/v1/jobs/{key}", h.Jobs.List)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.Error(w, http.StatusNotFound, "not found", r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.Error(w, http.StatusMethodNotAllowed, "method not allowed", r.Method)
	})

	return r
}
