package domain

// Velocity buckets how quickly a learner completes lessons.
type Velocity string

const (
	VelocitySlow     Velocity = "slow"
	VelocityModerate Velocity = "moderate"
	VelocityFast     Velocity = "fast"
)

// Level is a three-bucket low/medium/high scale.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// LearningAnalysis is the behavioral profile derived from a LearnerProfile.
// Every field has a defined value even when history is empty.
type LearningAnalysis struct {
	LearningVelocity     Velocity    `json:"learningVelocity"`
	PerformanceLevel     Level       `json:"performanceLevel"`
	PreferredSessionKind SessionKind `json:"preferredSessionKind"`
	DominantEmotion      Emotion     `json:"dominantEmotion"`
	EngagementLevel      Level       `json:"engagementLevel"`
	LearningStyle        string      `json:"learningStyle"`
	DifficultyPreference string      `json:"difficultyPreference"`

	CompletedLessons   int     `json:"completedLessons"`
	AverageQuizScore   float64 `json:"averageQuizScore"`
	SessionCount       int     `json:"sessionCount"`
	ConversationLength int     `json:"conversationLength"`
}
