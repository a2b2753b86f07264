package domain

import "time"

// Learner holds identity and preference fields of a learner.
type Learner struct {
	LearnerID            string    `json:"learnerId"`
	Name                 string    `json:"name,omitempty"`
	GradeLevel           string    `json:"gradeLevel,omitempty"`
	LearningStyle        string    `json:"learningStyle,omitempty"`
	DifficultyPreference string    `json:"difficultyPreference,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// ProgressKind categorizes a progress record.
type ProgressKind string

const (
	ProgressLessonCompletion ProgressKind = "lesson_completion"
	ProgressQuizScore        ProgressKind = "quiz_score"
	ProgressExerciseAttempt  ProgressKind = "exercise_attempt"
	ProgressAssignment       ProgressKind = "assignment_submission"
)

// Valid reports whether k is a known progress kind.
func (k ProgressKind) Valid() bool {
	switch k {
	case ProgressLessonCompletion, ProgressQuizScore, ProgressExerciseAttempt, ProgressAssignment:
		return true
	default:
		return false
	}
}

// ProgressRecord is one historical progress event.
type ProgressRecord struct {
	Kind       ProgressKind `json:"kind"`
	Topic      string       `json:"topic,omitempty"`
	Value      float64      `json:"value"`
	Percentage float64      `json:"percentage"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Score returns the percentage when set, otherwise the raw value.
func (p ProgressRecord) Score() float64 {
	if p.Percentage > 0 {
		return p.Percentage
	}
	return p.Value
}

// MasteryRecord is a learner's proficiency on a topic, 0-100.
type MasteryRecord struct {
	Topic        string    `json:"topic"`
	MasteryLevel int       `json:"masteryLevel"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionSummary is the compact read-back of a persisted tutoring response.
type SessionSummary struct {
	ID               string           `json:"id"`
	SessionKind      SessionKind      `json:"sessionKind"`
	Subject          string           `json:"subject,omitempty"`
	Emotion          Emotion          `json:"emotion"`
	EmotionalTone    Tone             `json:"emotionalTone"`
	TeachingApproach TeachingApproach `json:"teachingApproach"`
	ConfidenceScore  int              `json:"confidenceScore"`
	Source           ResponseSource   `json:"source"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// LearnerProfile is a read-only snapshot assembled per request.
// RecentSessions are most-recent-first.
type LearnerProfile struct {
	Learner          Learner          `json:"learner"`
	RecentSessions   []SessionSummary `json:"recentSessions"`
	Progress         []ProgressRecord `json:"progressRecords"`
	Mastery          []MasteryRecord  `json:"masteryRecords"`
	CognitiveProfile map[string]any   `json:"cognitiveProfile,omitempty"`
}
