//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/store"
	"github.com/ashureev/tutor-engine/internal/tutor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fakeTutor records requests and returns a canned result or error.
type fakeTutor struct {
	mu    sync.Mutex
	calls []*domain.TutorRequest
	err   error
}

func (f *fakeTutor) Respond(_ context.Context, req *domain.TutorRequest) (*tutor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	done := make(chan error, 1)
	done <- nil
	resp := domain.TutorResponse{
		ReplyText:       "Let's take it step by step.",
		EmotionalTone:   domain.TonePatientClarifying,
		ConfidenceScore: 88,
	}
	resp.Normalize()
	return &tutor.Result{Response: resp, Source: domain.SourceFallback, Emotion: domain.EmotionConfused, Persisted: done}, nil
}

func (f *fakeTutor) Stats() tutor.DispatcherStats {
	return tutor.DispatcherStats{QueueCapacity: 256, Completed: 3}
}

// pingFailRepo is a repository whose Ping always fails.
type pingFailRepo struct {
	store.Repository
}

func (pingFailRepo) Ping(context.Context) error { return errors.New("connection refused") }

func newTestRepo(t *testing.T) *store.SQLStore {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newRouter(t *testing.T, repo store.Repository, tt Tutor, limiter *RateLimiter, maxBody int64) http.Handler {
	t.Helper()
	base := NewHandler(repo, tt, maxBody)
	r := chi.NewRouter()
	NewTutorHandler(base, limiter).RegisterRoutes(r)
	NewLearnerHandler(base).RegisterRoutes(r)
	NewHealthHandler(repo, "static").RegisterHealth(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var got map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

const respondBody = `{
  "learnerId": "learner-1",
  "message": "this is so confusing",
  "sessionKind": "instruction",
  "subject": "mathematics",
  "conversationHistory": [
    {"role": "learner", "content": "hi", "timestamp": "2026-03-01T09:00:00Z"}
  ]
}`

func TestRespondReturnsTutorResponse(t *testing.T) {
	ft := &fakeTutor{}
	h := newRouter(t, newTestRepo(t), ft, nil, 0)

	w := do(h, http.MethodPost, "/api/tutor/respond", respondBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "fallback", w.Header().Get(SourceHeader))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Let's take it step by step.", got["replyText"])
	assert.Equal(t, float64(88), got["confidenceScore"])
	assert.Contains(t, got, "sessionMetadata")

	require.Len(t, ft.calls, 1)
	req := ft.calls[0]
	assert.Equal(t, domain.SessionInstruction, req.SessionKind)
	require.Len(t, req.ConversationHistory, 1)
	assert.Equal(t, domain.SpeakerLearner, req.ConversationHistory[0].Speaker)
	assert.True(t, req.ConversationHistory[0].Timestamp.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
}

func TestRespondMapsErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{&tutor.Error{Kind: tutor.KindInvalidRequest, Err: domain.ErrInvalidRequest}, http.StatusBadRequest, "invalid_request"},
		{&tutor.Error{Kind: tutor.KindContextUnavailable, Err: errors.New("db down")}, http.StatusServiceUnavailable, "context_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		h := newRouter(t, newTestRepo(t), &fakeTutor{err: tt.err}, nil, 0)
		w := do(h, http.MethodPost, "/api/tutor/respond", respondBody)
		assert.Equal(t, tt.code, w.Code)

		var got map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, tt.kind, got["kind"])
		assert.NotContains(t, got["error"], "db down")
	}
}

func TestRespondRejectsBadBodies(t *testing.T) {
	h := newRouter(t, newTestRepo(t), &fakeTutor{}, nil, 64)

	w := do(h, http.MethodPost, "/api/tutor/respond", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodPost, "/api/tutor/respond", respondBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRespondRateLimitsPerLearner(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	defer limiter.Stop()
	h := newRouter(t, newTestRepo(t), &fakeTutor{}, limiter, 0)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/tutor/respond", respondBody).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/api/tutor/respond", respondBody).Code)

	other := strings.Replace(respondBody, "learner-1", "learner-2", 1)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/tutor/respond", other).Code)
}

func TestStats(t *testing.T) {
	h := newRouter(t, newTestRepo(t), &fakeTutor{}, nil, 0)
	w := do(h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		SideEffects tutor.DispatcherStats `json:"sideEffects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 256, got.SideEffects.QueueCapacity)
	assert.Equal(t, int64(3), got.SideEffects.Completed)
}

func TestLearnerDataEndpoints(t *testing.T) {
	repo := newTestRepo(t)
	h := newRouter(t, repo, &fakeTutor{}, nil, 0)

	w := do(h, http.MethodPut, "/api/learners/learner-1",
		`{"name":"Ada","gradeLevel":"8","learningStyle":"visual","cognitiveProfile":{"workingMemory":"high"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(h, http.MethodPost, "/api/learners/learner-1/progress",
		`{"kind":"quiz_score","topic":"fractions","percentage":92}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(h, http.MethodPut, "/api/learners/learner-1/mastery", `{"topic":"fractions","masteryLevel":55}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(h, http.MethodGet, "/api/learners/learner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var profile domain.LearnerProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "Ada", profile.Learner.Name)
	assert.Equal(t, "visual", profile.Learner.LearningStyle)
	require.Len(t, profile.Progress, 1)
	assert.InDelta(t, 92, profile.Progress[0].Percentage, 1e-9)
	require.Len(t, profile.Mastery, 1)
	assert.Equal(t, 55, profile.Mastery[0].MasteryLevel)
	assert.Equal(t, "high", profile.CognitiveProfile["workingMemory"])
}

func TestLearnerDataValidation(t *testing.T) {
	h := newRouter(t, newTestRepo(t), &fakeTutor{}, nil, 0)

	tests := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/learners/l/progress", `{"kind":"nap","value":1}`},
		{http.MethodPost, "/api/learners/l/progress", `{"kind":"quiz_score","percentage":140}`},
		{http.MethodPut, "/api/learners/l/mastery", `{"topic":"","masteryLevel":10}`},
		{http.MethodPut, "/api/learners/l/mastery", `{"topic":"algebra","masteryLevel":101}`},
		{http.MethodGet, "/api/learners/l/sessions?limit=zero", ``},
	}
	for _, tt := range tests {
		w := do(h, tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s %s", tt.method, tt.path, tt.body)
	}
}

func TestSessionsAndContextEndpoints(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &domain.SessionRecord{
			LearnerID:   "learner-1",
			SessionKind: domain.SessionPractice,
			Message:     "question",
			Emotion:     domain.EmotionNeutral,
			Source:      domain.SourceFallback,
			Context:     []domain.Turn{{Speaker: domain.SpeakerLearner, Text: "turn", Timestamp: base}},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		rec.Response.Normalize()
		require.NoError(t, repo.AppendSession(ctx, rec))
	}
	h := newRouter(t, repo, &fakeTutor{}, nil, 0)

	w := do(h, http.MethodGet, "/api/learners/learner-1/sessions?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sessions struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions.Sessions, 2)
	assert.True(t, sessions.Sessions[0].CreatedAt.After(sessions.Sessions[1].CreatedAt))

	w = do(h, http.MethodGet, "/api/learners/nobody/context", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"conversationHistory":[]}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	repo := newTestRepo(t)

	w := do(newRouter(t, repo, &fakeTutor{}, nil, 0), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(newRouter(t, pingFailRepo{repo}, &fakeTutor{}, nil, 0), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Eventually(t, func() bool { return rl.Allow("a") }, time.Second, 10*time.Millisecond)
}

