package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds component checks inside the health handler.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Update orchestration
		r.Route("/updates", func(r chi.Router) {
			r.Get("/active", s.handleActiveUpdates)
			r.Get("/history", s.handleUpdateHistory)
		})

		r.Route("/devices/{id}/update", func(r chi.Router) {
			r.Get("/check", s.handleCheckUpdate)
			r.Post("/", s.handlePerformUpdate)
			r.Delete("/", s.handleCancelUpdate)
		})

		// Firmware repository
		r.Route("/firmware", func(r chi.Router) {
			r.Get("/cache", s.handleFirmwareCacheStats)
			r.Delete("/cache", s.handleClearFirmwareCache)
			r.Get("/manufacturers", s.handleManufacturers)
		})

		// Datapoint descriptor management
		r.Route("/datapoints", func(r chi.Router) {
			r.Post("/", s.handleAddDescriptor)
			r.Get("/{dp}", s.handleGetDescriptor)
			r.Delete("/{dp}", s.handleRemoveDescriptor)
		})
	})

	return r
}

// handleHealth returns the server health status and component checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]string{}
	if s.mqtt != nil {
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			components["mqtt"] = err.Error()
		} else {
			components["mqtt"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"components": components,
	})
}
