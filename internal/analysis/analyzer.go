// Package analysis aggregates a learner's historical records into a compact
// behavioral profile.
package analysis

import (
	"github.com/ashureev/tutor-engine/internal/domain"
)

// Bucket boundaries. All comparisons are strictly greater-than.
const (
	fastLessonThreshold     = 10
	moderateLessonThreshold = 5

	highScoreThreshold   = 80.0
	mediumScoreThreshold = 60.0

	highEngagementSessions   = 20
	mediumEngagementSessions = 10
)

// Defaults used when a profile does not carry a preference.
const (
	DefaultLearningStyle        = "mixed"
	DefaultDifficultyPreference = "moderate"
)

// Analyzer derives LearningAnalysis values. It holds no state.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze computes the analysis for profile and the current conversation.
func (a *Analyzer) Analyze(profile *domain.LearnerProfile, history []domain.Turn) domain.LearningAnalysis {
	if profile == nil {
		profile = &domain.LearnerProfile{}
	}

	completed := 0
	var scoreSum float64
	scoreCount := 0
	for _, p := range profile.Progress {
		switch p.Kind {
		case domain.ProgressLessonCompletion:
			completed++
		case domain.ProgressQuizScore:
			scoreSum += p.Score()
			scoreCount++
		}
	}
	var mean float64
	if scoreCount > 0 {
		mean = scoreSum / float64(scoreCount)
	}

	out := domain.LearningAnalysis{
		LearningVelocity:     velocityFor(completed),
		PerformanceLevel:     performanceFor(mean, scoreCount),
		PreferredSessionKind: preferredKind(profile.RecentSessions),
		DominantEmotion:      dominantEmotion(profile.RecentSessions),
		EngagementLevel:      engagementFor(len(profile.RecentSessions)),
		LearningStyle:        orDefault(profile.Learner.LearningStyle, DefaultLearningStyle),
		DifficultyPreference: orDefault(profile.Learner.DifficultyPreference, DefaultDifficultyPreference),
		CompletedLessons:     completed,
		AverageQuizScore:     mean,
		SessionCount:         len(profile.RecentSessions),
		ConversationLength:   len(history),
	}
	return out
}

func velocityFor(completed int) domain.Velocity {
	switch {
	case completed > fastLessonThreshold:
		return domain.VelocityFast
	case completed > moderateLessonThreshold:
		return domain.VelocityModerate
	default:
		return domain.VelocitySlow
	}
}

func performanceFor(mean float64, samples int) domain.Level {
	if samples == 0 {
		return domain.LevelLow
	}
	switch {
	case mean > highScoreThreshold:
		return domain.LevelHigh
	case mean > mediumScoreThreshold:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

func engagementFor(sessions int) domain.Level {
	switch {
	case sessions > highEngagementSessions:
		return domain.LevelHigh
	case sessions > mediumEngagementSessions:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

// preferredKind returns the most frequent session kind. Ties go to the kind
// seen most recently (sessions are newest first).
func preferredKind(sessions []domain.SessionSummary) domain.SessionKind {
	kinds := make([]domain.SessionKind, 0, len(sessions))
	for _, s := range sessions {
		if s.SessionKind != "" {
			kinds = append(kinds, s.SessionKind)
		}
	}
	if k, ok := mode(kinds); ok {
		return k
	}
	return domain.SessionInstruction
}

func dominantEmotion(sessions []domain.SessionSummary) domain.Emotion {
	emotions := make([]domain.Emotion, 0, len(sessions))
	for _, s := range sessions {
		if s.Emotion.Valid() {
			emotions = append(emotions, s.Emotion)
		}
	}
	if e, ok := mode(emotions); ok {
		return e
	}
	return domain.EmotionNeutral
}

// mode returns the most frequent value, preferring the earliest on ties.
func mode[T comparable](values []T) (T, bool) {
	var best T
	if len(values) == 0 {
		return best, false
	}
	counts := make(map[T]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	bestCount := 0
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best, true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
