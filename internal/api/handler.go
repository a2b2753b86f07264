// Package api provides HTTP handlers for the tutoring API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/store"
	"github.com/ashureev/tutor-engine/internal/tutor"
)

const defaultMaxRequestBodySize = 1 << 20

// errBodyTooLarge marks a request body rejected by the size limit.
var errBodyTooLarge = errors.New("request body too large")

// Tutor is the orchestrator surface the handlers depend on.
type Tutor interface {
	Respond(ctx context.Context, req *domain.TutorRequest) (*tutor.Result, error)
	Stats() tutor.DispatcherStats
}

// Handler provides common handler utilities.
type Handler struct {
	repo        store.Repository
	tutor       Tutor
	maxBodySize int64
}

// NewHandler creates a new Handler with common dependencies. A non-positive
// maxBodySize uses 1 MiB.
func NewHandler(repo store.Repository, t Tutor, maxBodySize int64) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		repo:        repo,
		tutor:       t,
		maxBodySize: maxBodySize,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a size-limited JSON body into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeDecodeError maps a decode failure to 413 or 400.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	Error(w, http.StatusBadRequest, "invalid request body")
}
