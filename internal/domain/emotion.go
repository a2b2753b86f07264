// Package domain contains the core data model of the tutoring engine.
package domain

import "fmt"

// Emotion is the discrete emotional state attributed to a learner message.
type Emotion string

// The seven emotional labels. The order of AllEmotions is the classifier priority
// order with neutral last.
const (
	EmotionFrustrated Emotion = "frustrated"
	EmotionExcited    Emotion = "excited"
	EmotionConfused   Emotion = "confused"
	EmotionBored      Emotion = "bored"
	EmotionAnxious    Emotion = "anxious"
	EmotionConfident  Emotion = "confident"
	EmotionNeutral    Emotion = "neutral"
)

// AllEmotions lists every label in declaration order.
var AllEmotions = []Emotion{
	EmotionFrustrated,
	EmotionExcited,
	EmotionConfused,
	EmotionBored,
	EmotionAnxious,
	EmotionConfident,
	EmotionNeutral,
}

// Valid reports whether e is one of the seven labels.
func (e Emotion) Valid() bool {
	for _, known := range AllEmotions {
		if e == known {
			return true
		}
	}
	return false
}

// IsDistressed reports whether e is a state the classifier carries forward
// from prior tutor turns.
func (e Emotion) IsDistressed() bool {
	switch e {
	case EmotionFrustrated, EmotionConfused, EmotionAnxious:
		return true
	default:
		return false
	}
}

// ParseEmotion converts a wire token into an Emotion.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown emotion %q", s)
	}
	return e, nil
}
