package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/llm"
	"github.com/ashureev/tutor-engine/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const primaryJSON = `{
  "replyText": "Let's look at the formula one symbol at a time.",
  "emotionalTone": "patient_clarifying",
  "confidenceScore": 0.87,
  "teachingApproach": "explanatory_questioning",
  "encouragementLevel": 6,
  "followUpQuestions": ["Which symbol is new to you?", "Can you read the formula aloud?"],
  "reasoningSteps": ["Learner is confused"],
  "learningInsights": {
    "strengths": ["Asks questions"],
    "improvementAreas": ["formula reading"],
    "patterns": ["Often confused by notation"],
    "recommendedFocus": ["notation"]
  },
  "suggestedActions": ["Rewrite the formula in words"]
}`

func staticGenerator(text string, err error) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, llm.PromptSpec) (string, error) {
		return text, err
	})
}

func newTestService(t *testing.T, st Store, gen llm.Generator, cfg Config) (*Service, *recordingAudit) {
	t.Helper()
	rec := &recordingAudit{}
	svc, err := NewService(Deps{Store: st, Generator: gen, Audit: rec}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, rec
}

func confusedRequest() *domain.TutorRequest {
	return &domain.TutorRequest{
		LearnerID:   "learner-1",
		Message:     "this is so confusing, I don't understand the formula",
		SessionKind: domain.SessionInstruction,
		Subject:     "mathematics",
	}
}

func waitPersisted(t *testing.T, res *Result) error {
	t.Helper()
	select {
	case err := <-res.Persisted:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for persistence")
		return nil
	}
}

func TestRespondRejectsInvalidRequest(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore(), nil, Config{})

	_, err := svc.Respond(context.Background(), &domain.TutorRequest{LearnerID: "x"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.Respond(context.Background(), nil)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestRespondProfileFailureIsContextUnavailable(t *testing.T) {
	st := newFakeStore()
	st.fetchErr = errors.New("connection refused")
	svc, _ := newTestService(t, st, staticGenerator(primaryJSON, nil), Config{})

	_, err := svc.Respond(context.Background(), confusedRequest())
	require.Error(t, err)
	assert.Equal(t, KindContextUnavailable, KindOf(err))
	assert.Zero(t, st.sessionCount())
}

func TestRespondPrimaryPath(t *testing.T) {
	st := newFakeStore()
	svc, rec := newTestService(t, st, staticGenerator("```json\n"+primaryJSON+"\n```", nil), Config{})

	res, err := svc.Respond(context.Background(), confusedRequest())
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, res))

	assert.Equal(t, domain.SourcePrimary, res.Source)
	r := res.Response
	assert.Equal(t, 87, r.ConfidenceScore)
	assert.Equal(t, domain.TonePatientClarifying, r.EmotionalTone)
	assert.Len(t, r.FollowUpQuestions, 2)
	assert.Equal(t, domain.EmotionConfused, r.SessionMetadata.EmotionDetected)
	assert.Equal(t, EmotionSourceClassified, r.SessionMetadata.EmotionSource)
	assert.Equal(t, domain.LevelLow, r.SessionMetadata.PerformanceLevel)
	assert.Equal(t, domain.VelocitySlow, r.SessionMetadata.LearningVelocity)
	assert.Equal(t, 1, st.sessionCount())

	require.NoError(t, svc.Close())
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTutorResponse, events[0].Kind)
	assert.Equal(t, "confused", events[0].Metadata["emotion"])
	assert.Equal(t, "mathematics", events[0].Metadata["subject"])
	assert.Equal(t, 87, events[0].Metadata["confidenceScore"])
	assert.Equal(t, "explanatory_questioning", events[0].Metadata["teachingApproach"])
}

func TestRespondFallsBackOnBadPayloads(t *testing.T) {
	cases := map[string]llm.Generator{
		"service error":      staticGenerator("", errors.New("503 from upstream")),
		"not json":           staticGenerator("Sure! Here's a friendly answer.", nil),
		"missing reply":      staticGenerator(`{"confidenceScore": 90}`, nil),
		"missing score":      staticGenerator(`{"replyText": "hi"}`, nil),
		"truncated json":     staticGenerator(`{"replyText": "hi", "confidenceScore": 9`, nil),
		"missing credential": llm.Unavailable{Reason: "missing GEMINI_API_KEY"},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(t, newFakeStore(), gen, Config{})
			res, err := svc.Respond(context.Background(), confusedRequest())
			require.NoError(t, err)
			require.NoError(t, waitPersisted(t, res))

			assert.Equal(t, domain.SourceFallback, res.Source)
			assert.Equal(t, domain.ApproachExplanatoryQuestioning, res.Response.TeachingApproach)
			assert.NotContains(t, strings.ToLower(res.Response.ReplyText), "503")
			assert.NotContains(t, strings.ToLower(res.Response.ReplyText), "error")
		})
	}
}

func TestRespondConfusingFormulaScenario(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore(), nil, Config{})

	res, err := svc.Respond(context.Background(), confusedRequest())
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, res))

	assert.Equal(t, domain.EmotionConfused, res.Emotion)
	assert.Equal(t, domain.ApproachExplanatoryQuestioning, res.Response.TeachingApproach)
	assert.GreaterOrEqual(t, len(res.Response.FollowUpQuestions), 2)
	assert.LessOrEqual(t, len(res.Response.FollowUpQuestions), 4)
}

func TestRespondGenerationTimeoutUsesFallback(t *testing.T) {
	slow := llm.GeneratorFunc(func(ctx context.Context, _ llm.PromptSpec) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(10 * time.Second):
			return primaryJSON, nil
		}
	})
	svc, _ := newTestService(t, newFakeStore(), slow, Config{GenerationTimeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := svc.Respond(context.Background(), confusedRequest())
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, res))

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.SourceFallback, res.Source)
	assert.True(t, res.Response.EmotionalTone.Valid())
	lower := strings.ToLower(res.Response.ReplyText)
	for _, marker := range []string{"timeout", "deadline", "error", "exceeded"} {
		assert.NotContains(t, lower, marker)
	}
}

func TestRespondExplicitEmotionWins(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore(), nil, Config{})

	req := confusedRequest()
	req.ExplicitEmotion = domain.EmotionBored
	res, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, res))

	assert.Equal(t, domain.EmotionBored, res.Emotion)
	assert.Equal(t, EmotionSourceExplicit, res.Response.SessionMetadata.EmotionSource)
	assert.Equal(t, domain.ToneEngagingChallenging, res.Response.EmotionalTone)
}

func TestRespondSurfacesPersistenceErrorSeparately(t *testing.T) {
	st := newFakeStore()
	st.appendErr = errors.New("disk full")
	svc, rec := newTestService(t, st, nil, Config{})

	res, err := svc.Respond(context.Background(), confusedRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response.ReplyText)

	perr := waitPersisted(t, res)
	require.Error(t, perr)
	assert.Contains(t, perr.Error(), "disk full")

	require.NoError(t, svc.Close())
	var kinds []string
	for _, e := range rec.snapshot() {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, domain.EventPersistenceError)
}

func TestRespondUsesStoredHistory(t *testing.T) {
	st := newFakeStore()
	for i := 0; i < 12; i++ {
		st.progress["learner-1"] = append(st.progress["learner-1"],
			domain.ProgressRecord{Kind: domain.ProgressLessonCompletion, Value: 1})
	}
	st.progress["learner-1"] = append(st.progress["learner-1"],
		domain.ProgressRecord{Kind: domain.ProgressQuizScore, Percentage: 90})
	svc, _ := newTestService(t, st, nil, Config{})

	res, err := svc.Respond(context.Background(), confusedRequest())
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, res))

	assert.Equal(t, domain.VelocityFast, res.Response.SessionMetadata.LearningVelocity)
	assert.Equal(t, domain.LevelHigh, res.Response.SessionMetadata.PerformanceLevel)
	// 88 base for confused, +5 for high performance.
	assert.Equal(t, 93, res.Response.ConfidenceScore)
}

// jsonShape maps every JSON key path in v to the kind of its value.
func jsonShape(t *testing.T, v any) map[string]string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var generic any
	require.NoError(t, json.Unmarshal(b, &generic))

	out := make(map[string]string)
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch x := v.(type) {
		case map[string]any:
			out[prefix] = "object"
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(prefix+"."+k, x[k])
			}
		case []any:
			out[prefix] = "array"
		default:
			out[prefix] = fmt.Sprintf("%T", x)
		}
	}
	walk("$", generic)
	return out
}

func TestPrimaryAndFallbackShareResponseShape(t *testing.T) {
	primarySvc, _ := newTestService(t, newFakeStore(), staticGenerator(primaryJSON, nil), Config{})
	fallbackSvc, _ := newTestService(t, newFakeStore(), nil, Config{})

	p, err := primarySvc.Respond(context.Background(), confusedRequest())
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, p))
	f, err := fallbackSvc.Respond(context.Background(), confusedRequest())
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, f))

	require.Equal(t, domain.SourcePrimary, p.Source)
	require.Equal(t, domain.SourceFallback, f.Source)
	if diff := cmp.Diff(jsonShape(t, p.Response), jsonShape(t, f.Response)); diff != "" {
		t.Fatalf("response shapes differ (-primary +fallback):\n%s", diff)
	}
}

func TestPersistedContextRoundTripKeepsLastFiveTurns(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	svc, _ := newTestService(t, repo, nil, Config{})

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req := confusedRequest()
	for i := 0; i < 10; i++ {
		speaker := domain.SpeakerLearner
		if i%2 == 1 {
			speaker = domain.SpeakerTutor
		}
		req.ConversationHistory = append(req.ConversationHistory, domain.Turn{
			Speaker:   speaker,
			Text:      fmt.Sprintf("turn %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	res, err := svc.Respond(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, waitPersisted(t, res))
	assert.Equal(t, 10, res.Response.SessionMetadata.ConversationLength)

	turns, err := repo.FetchLastContext(context.Background(), req.LearnerID)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("turn %d", i+5), turn.Text)
		assert.True(t, turn.Timestamp.Equal(base.Add(time.Duration(i+5)*time.Minute)))
	}
}
