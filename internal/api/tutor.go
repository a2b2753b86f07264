package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/identity"
	"github.com/ashureev/tutor-engine/internal/logging"
	"github.com/ashureev/tutor-engine/internal/tutor"
)

// SourceHeader reports which generation path produced a reply.
const SourceHeader = "X-Tutor-Response-Source"

// TutorHandler serves tutoring replies over HTTP.
type TutorHandler struct {
	*Handler
	limiter *RateLimiter
}

// NewTutorHandler creates a tutoring handler. limiter may be nil.
func NewTutorHandler(base *Handler, limiter *RateLimiter) *TutorHandler {
	return &TutorHandler{Handler: base, limiter: limiter}
}

// RegisterRoutes registers tutoring routes.
func (h *TutorHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tutor/respond", h.Respond)
	r.Get("/api/stats", h.Stats)
}

// Respond handles POST /api/tutor/respond.
func (h *TutorHandler) Respond(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req domain.TutorRequest
	if err := h.decode(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if h.limiter != nil && req.LearnerID != "" && !h.limiter.Allow(req.LearnerID) {
		log.Warn("tutor rate limit exceeded", "learner_id", req.LearnerID)
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	log.Info("tutor request",
		"learner_id", req.LearnerID,
		"session_id", identity.SessionIDFromContext(r.Context()),
		"session_kind", req.SessionKind,
		"message_length", len(req.Message),
		"history_length", len(req.ConversationHistory),
	)

	res, err := h.tutor.Respond(r.Context(), &req)
	if err != nil {
		writeTutorError(w, err)
		return
	}

	w.Header().Set(SourceHeader, string(res.Source))
	JSON(w, http.StatusOK, res.Response)
}

// Stats handles GET /api/stats.
func (h *TutorHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"sideEffects": h.tutor.Stats(),
	})
}

func writeTutorError(w http.ResponseWriter, err error) {
	switch tutor.KindOf(err) {
	case tutor.KindInvalidRequest:
		JSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
			"kind":  string(tutor.KindInvalidRequest),
		})
	case tutor.KindContextUnavailable:
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "learner context unavailable",
			"kind":  string(tutor.KindContextUnavailable),
		})
	default:
		JSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
			"kind":  string(tutor.KindInternal),
		})
	}
}
