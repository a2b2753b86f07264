package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/tutor-engine/internal/store"
)

// HealthHandler reports readiness of the store.
type HealthHandler struct {
	repo      store.Repository
	generator string
}

// NewHealthHandler creates a readiness handler. generator names the primary
// generation capability for diagnostics.
func NewHealthHandler(repo store.Repository, generator string) *HealthHandler {
	return &HealthHandler{repo: repo, generator: generator}
}

// RegisterHealth registers the readiness route. Liveness is served by chi's
// Heartbeat middleware at /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Ready)
}

// Ready pings the store.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"generator": h.generator,
	})
}
