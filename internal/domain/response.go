package domain

import "time"

// Tone is the emotional register of a tutoring reply.
type Tone string

const (
	ToneEmpathetic             Tone = "empathetic"
	ToneEnthusiastic           Tone = "enthusiastic"
	TonePatientClarifying      Tone = "patient_clarifying"
	ToneEngagingChallenging    Tone = "engaging_challenging"
	ToneCalmingReassuring      Tone = "calming_reassuring"
	ToneEncouragingChallenging Tone = "encouraging_challenging"
	ToneFriendlyAdaptive       Tone = "friendly_adaptive"
)

// AllTones lists the seven defined tones.
var AllTones = []Tone{
	ToneEmpathetic,
	ToneEnthusiastic,
	TonePatientClarifying,
	ToneEngagingChallenging,
	ToneCalmingReassuring,
	ToneEncouragingChallenging,
	ToneFriendlyAdaptive,
}

// Valid reports whether t is one of the defined tones.
func (t Tone) Valid() bool {
	for _, known := range AllTones {
		if t == known {
			return true
		}
	}
	return false
}

// TeachingApproach is the pedagogical strategy tag attached to a reply.
type TeachingApproach string

const (
	ApproachSupportiveBreakdown          TeachingApproach = "supportive_breakdown"
	ApproachChallengingExpansion         TeachingApproach = "challenging_expansion"
	ApproachExplanatoryQuestioning       TeachingApproach = "explanatory_questioning"
	ApproachInteractiveAcceleration      TeachingApproach = "interactive_acceleration"
	ApproachSupportiveConfidenceBuilding TeachingApproach = "supportive_confidence_building"
	ApproachAdvancedApplication          TeachingApproach = "advanced_application"
	ApproachConversationalGuidance       TeachingApproach = "conversational_guidance"
)

// Valid reports whether a is one of the defined approaches.
func (a TeachingApproach) Valid() bool {
	switch a {
	case ApproachSupportiveBreakdown, ApproachChallengingExpansion, ApproachExplanatoryQuestioning,
		ApproachInteractiveAcceleration, ApproachSupportiveConfidenceBuilding,
		ApproachAdvancedApplication, ApproachConversationalGuidance:
		return true
	default:
		return false
	}
}

// ResponseSource records which path produced a reply. It is persisted and
// logged but never part of the reply shape.
type ResponseSource string

const (
	SourcePrimary  ResponseSource = "primary"
	SourceFallback ResponseSource = "fallback"
)

// LearningInsights is the structured insight block of a reply.
type LearningInsights struct {
	Strengths        []string `json:"strengths"`
	ImprovementAreas []string `json:"improvementAreas"`
	Patterns         []string `json:"patterns"`
	RecommendedFocus []string `json:"recommendedFocus"`
}

// SessionMetadata is filled by the orchestrator regardless of path.
type SessionMetadata struct {
	EmotionDetected    Emotion     `json:"emotionDetected"`
	EmotionSource      string      `json:"emotionSource"`
	SessionKind        SessionKind `json:"sessionKind"`
	Subject            string      `json:"subject"`
	PerformanceLevel   Level       `json:"performanceLevel"`
	LearningVelocity   Velocity    `json:"learningVelocity"`
	EngagementLevel    Level       `json:"engagementLevel"`
	ConversationLength int         `json:"conversationLength"`
}

// TutorResponse is the reply returned to the caller and appended to the
// learner's session history.
type TutorResponse struct {
	ReplyText          string           `json:"replyText"`
	EmotionalTone      Tone             `json:"emotionalTone"`
	ConfidenceScore    int              `json:"confidenceScore"`
	TeachingApproach   TeachingApproach `json:"teachingApproach"`
	EncouragementLevel int              `json:"encouragementLevel"`
	FollowUpQuestions  []string         `json:"followUpQuestions"`
	ReasoningSteps     []string         `json:"reasoningSteps"`
	LearningInsights   LearningInsights `json:"learningInsights"`
	SuggestedActions   []string         `json:"suggestedActions"`
	SessionMetadata    SessionMetadata  `json:"sessionMetadata"`
}

// Normalize replaces nil slices with empty ones so both generation paths
// serialize to the same shape.
func (r *TutorResponse) Normalize() {
	r.FollowUpQuestions = nonNil(r.FollowUpQuestions)
	r.ReasoningSteps = nonNil(r.ReasoningSteps)
	r.SuggestedActions = nonNil(r.SuggestedActions)
	r.LearningInsights.Strengths = nonNil(r.LearningInsights.Strengths)
	r.LearningInsights.ImprovementAreas = nonNil(r.LearningInsights.ImprovementAreas)
	r.LearningInsights.Patterns = nonNil(r.LearningInsights.Patterns)
	r.LearningInsights.RecommendedFocus = nonNil(r.LearningInsights.RecommendedFocus)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// SessionRecord is the persisted request/response pair.
type SessionRecord struct {
	ID          string         `json:"id"`
	LearnerID   string         `json:"learnerId"`
	SessionKind SessionKind    `json:"sessionKind"`
	Subject     string         `json:"subject,omitempty"`
	Message     string         `json:"message"`
	Emotion     Emotion        `json:"emotion"`
	Source      ResponseSource `json:"source"`
	Response    TutorResponse  `json:"response"`
	Context     []Turn         `json:"context"`
	ContextData map[string]any `json:"contextData,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Summary projects a record into the compact form read back into profiles.
func (r *SessionRecord) Summary() SessionSummary {
	return SessionSummary{
		ID:               r.ID,
		SessionKind:      r.SessionKind,
		Subject:          r.Subject,
		Emotion:          r.Emotion,
		EmotionalTone:    r.Response.EmotionalTone,
		TeachingApproach: r.Response.TeachingApproach,
		ConfidenceScore:  r.Response.ConfidenceScore,
		Source:           r.Source,
		CreatedAt:        r.CreatedAt,
	}
}
