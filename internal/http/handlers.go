package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dsjohal14/sqlpoll/internal/streamlite"
)

// Handler contains HTTP handlers for the API
type Handler struct {
	registry *streamlite.Registry
	logger   zerolog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(registry *streamlite.Registry, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   logger,
	}
}

// NewRouter mounts the API routes. gatherer backs /metrics; nil skips the route.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Routes
	r.Get("/health", h.HandleHealth)
	r.Get("/sources", h.HandleListSources)
	r.Get("/sources/{id}", h.HandleGetSource)
	r.Post("/sources/{id}/run", h.HandleRunSource)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Helper functions used across all handlers

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response with the given status code
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
