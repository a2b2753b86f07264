package tutor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/fallback"
)

var errMalformedPayload = errors.New("malformed generation payload")

const (
	minFollowUps = 2
	maxFollowUps = 4
)

// payload mirrors the JSON object requested from the generator. Pointer
// fields distinguish missing values from zero values.
type payload struct {
	ReplyText          *string  `json:"replyText"`
	EmotionalTone      string   `json:"emotionalTone"`
	ConfidenceScore    *float64 `json:"confidenceScore"`
	TeachingApproach   string   `json:"teachingApproach"`
	EncouragementLevel *float64 `json:"encouragementLevel"`
	FollowUpQuestions  []string `json:"followUpQuestions"`
	ReasoningSteps     []string `json:"reasoningSteps"`
	LearningInsights   struct {
		Strengths        []string `json:"strengths"`
		ImprovementAreas []string `json:"improvementAreas"`
		Patterns         []string `json:"patterns"`
		RecommendedFocus []string `json:"recommendedFocus"`
	} `json:"learningInsights"`
	SuggestedActions []string `json:"suggestedActions"`
}

// parsePayload decodes raw generator output into a response for emotion.
// Values outside their ranges are normalized; a missing reply text or
// confidence score rejects the payload.
func parsePayload(raw string, emotion domain.Emotion) (domain.TutorResponse, error) {
	body := extractJSON(raw)
	if body == "" {
		return domain.TutorResponse{}, fmt.Errorf("%w: no JSON object", errMalformedPayload)
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return domain.TutorResponse{}, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	if p.ReplyText == nil || strings.TrimSpace(*p.ReplyText) == "" {
		return domain.TutorResponse{}, fmt.Errorf("%w: missing replyText", errMalformedPayload)
	}
	if p.ConfidenceScore == nil {
		return domain.TutorResponse{}, fmt.Errorf("%w: missing confidenceScore", errMalformedPayload)
	}

	style := fallback.StyleFor(emotion)
	resp := domain.TutorResponse{
		ReplyText:          strings.TrimSpace(*p.ReplyText),
		EmotionalTone:      domain.Tone(p.EmotionalTone),
		ConfidenceScore:    normalizeConfidence(*p.ConfidenceScore),
		TeachingApproach:   domain.TeachingApproach(p.TeachingApproach),
		EncouragementLevel: style.EncouragementLevel,
		FollowUpQuestions:  clean(p.FollowUpQuestions),
		ReasoningSteps:     clean(p.ReasoningSteps),
		LearningInsights: domain.LearningInsights{
			Strengths:        clean(p.LearningInsights.Strengths),
			ImprovementAreas: clean(p.LearningInsights.ImprovementAreas),
			Patterns:         clean(p.LearningInsights.Patterns),
			RecommendedFocus: clean(p.LearningInsights.RecommendedFocus),
		},
		SuggestedActions: clean(p.SuggestedActions),
	}
	if !resp.EmotionalTone.Valid() {
		resp.EmotionalTone = style.Tone
	}
	if !resp.TeachingApproach.Valid() {
		resp.TeachingApproach = style.Approach
	}
	if p.EncouragementLevel != nil {
		resp.EncouragementLevel = roundClamp(*p.EncouragementLevel, 1, 10)
	}
	resp.FollowUpQuestions = fitFollowUps(resp.FollowUpQuestions, emotion)
	resp.Normalize()
	return resp, nil
}

// extractJSON strips code fences and surrounding prose, returning the
// outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// normalizeConfidence maps a score onto the 0-100 scale. Values in [0,1] are
// read as fractions.
func normalizeConfidence(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v >= 0 && v <= 1 {
		v *= 100
	}
	return roundClamp(v, 0, 100)
}

// roundClamp bounds v before converting so huge values cannot overflow int.
func roundClamp(v float64, lo, hi int) int {
	if math.IsNaN(v) {
		return lo
	}
	v = math.Max(float64(lo), math.Min(v, float64(hi)))
	return int(math.Round(v))
}

func fitFollowUps(qs []string, emotion domain.Emotion) []string {
	if len(qs) > maxFollowUps {
		qs = qs[:maxFollowUps]
	}
	if len(qs) >= minFollowUps {
		return qs
	}
	for _, q := range fallback.FollowUps(emotion) {
		if len(qs) >= minFollowUps {
			break
		}
		dup := false
		for _, have := range qs {
			if have == q {
				dup = true
				break
			}
		}
		if !dup {
			qs = append(qs, q)
		}
	}
	return qs
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
