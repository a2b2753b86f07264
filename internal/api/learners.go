package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/logging"
	"github.com/ashureev/tutor-engine/internal/store"
)

const maxSessionsLimit = 100

// LearnerHandler manages the learner data the tutor reads.
type LearnerHandler struct {
	*Handler
}

// NewLearnerHandler creates a learner data handler.
func NewLearnerHandler(base *Handler) *LearnerHandler {
	return &LearnerHandler{Handler: base}
}

// RegisterRoutes registers learner routes.
func (h *LearnerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/learners/{learnerID}", func(r chi.Router) {
		r.Get("/", h.GetProfile)
		r.Put("/", h.PutLearner)
		r.Post("/progress", h.AddProgress)
		r.Put("/mastery", h.PutMastery)
		r.Get("/sessions", h.ListSessions)
		r.Get("/context", h.GetContext)
	})
}

type learnerBody struct {
	Name                 string         `json:"name"`
	GradeLevel           string         `json:"gradeLevel"`
	LearningStyle        string         `json:"learningStyle"`
	DifficultyPreference string         `json:"difficultyPreference"`
	CognitiveProfile     map[string]any `json:"cognitiveProfile"`
}

// GetProfile returns the assembled learner profile.
func (h *LearnerHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	profile, err := store.FetchLearnerProfile(r.Context(), h.repo, learnerID, store.DefaultSessionLimit)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to fetch learner profile", "error", err, "learner_id", learnerID)
		Error(w, http.StatusServiceUnavailable, "learner context unavailable")
		return
	}
	JSON(w, http.StatusOK, profile)
}

// PutLearner creates or updates a learner.
func (h *LearnerHandler) PutLearner(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")

	var body learnerBody
	if err := h.decode(w, r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	learner := &domain.Learner{
		LearnerID:            learnerID,
		Name:                 strings.TrimSpace(body.Name),
		GradeLevel:           strings.TrimSpace(body.GradeLevel),
		LearningStyle:        strings.TrimSpace(body.LearningStyle),
		DifficultyPreference: strings.TrimSpace(body.DifficultyPreference),
	}
	if existing, err := h.repo.FetchLearner(r.Context(), learnerID); err == nil && existing != nil {
		learner.CreatedAt = existing.CreatedAt
	}

	if err := h.repo.UpsertLearner(r.Context(), learner, body.CognitiveProfile); err != nil {
		logging.FromContext(r.Context()).Error("failed to upsert learner", "error", err, "learner_id", learnerID)
		Error(w, http.StatusInternalServerError, "failed to save learner")
		return
	}
	JSON(w, http.StatusOK, learner)
}

// AddProgress appends a progress record.
func (h *LearnerHandler) AddProgress(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")

	var rec domain.ProgressRecord
	if err := h.decode(w, r, &rec); err != nil {
		writeDecodeError(w, err)
		return
	}
	if !rec.Kind.Valid() {
		Error(w, http.StatusBadRequest, "unknown progress kind "+strconv.Quote(string(rec.Kind)))
		return
	}
	if rec.Percentage < 0 || rec.Percentage > 100 {
		Error(w, http.StatusBadRequest, "percentage must be within 0-100")
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	if err := h.repo.AddProgressRecord(r.Context(), learnerID, rec); err != nil {
		logging.FromContext(r.Context()).Error("failed to add progress record", "error", err, "learner_id", learnerID)
		Error(w, http.StatusInternalServerError, "failed to save progress record")
		return
	}
	JSON(w, http.StatusCreated, rec)
}

// PutMastery sets a topic mastery level.
func (h *LearnerHandler) PutMastery(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")

	var rec domain.MasteryRecord
	if err := h.decode(w, r, &rec); err != nil {
		writeDecodeError(w, err)
		return
	}
	rec.Topic = strings.TrimSpace(rec.Topic)
	if rec.Topic == "" {
		Error(w, http.StatusBadRequest, "topic is required")
		return
	}
	if rec.MasteryLevel < 0 || rec.MasteryLevel > 100 {
		Error(w, http.StatusBadRequest, "masteryLevel must be within 0-100")
		return
	}
	rec.UpdatedAt = time.Now()

	if err := h.repo.UpsertMastery(r.Context(), learnerID, rec); err != nil {
		logging.FromContext(r.Context()).Error("failed to upsert mastery", "error", err, "learner_id", learnerID)
		Error(w, http.StatusInternalServerError, "failed to save mastery record")
		return
	}
	JSON(w, http.StatusOK, rec)
}

// ListSessions returns recent session summaries, newest first.
func (h *LearnerHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")

	limit := store.DefaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSessionsLimit)
	}

	sessions, err := h.repo.FetchRecentSessions(r.Context(), learnerID, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to fetch sessions", "error", err, "learner_id", learnerID)
		Error(w, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetContext returns the conversation tail stored with the latest session.
func (h *LearnerHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")

	turns, err := h.repo.FetchLastContext(r.Context(), learnerID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to fetch last context", "error", err, "learner_id", learnerID)
		Error(w, http.StatusInternalServerError, "failed to fetch context")
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	JSON(w, http.StatusOK, map[string]any{"conversationHistory": turns})
}
