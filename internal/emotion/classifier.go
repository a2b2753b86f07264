// Package emotion maps learner text and recent tutor turns to a single
// emotional label.
package emotion

import (
	"strings"

	"github.com/ashureev/tutor-engine/internal/domain"
)

// stickyTurns is how many prior tutor turns are inspected when the message
// itself carries no trigger.
const stickyTurns = 3

type rule struct {
	label    domain.Emotion
	triggers []string
}

// rules is evaluated in order; the first label with a matching trigger wins.
// Triggers are lowercase substrings, so avoid fragments that occur inside
// unrelated words ("fun" in "function", "meh" in "somehow").
var rules = []rule{
	{domain.EmotionFrustrated, []string{
		"frustrat", "annoyed", "annoying", "give up", "giving up", "hate this", "so hard",
		"too hard", "stuck", "can't do this", "cannot do this", "angry", "fed up",
	}},
	{domain.EmotionExcited, []string{
		"excited", "exciting", "awesome", "amazing", "love this", "so cool", "can't wait",
		"fantastic", "yay", "wow",
	}},
	{domain.EmotionConfused, []string{
		"confus", "don't understand", "dont understand", "do not understand", "i'm lost",
		"im lost", "unclear", "makes no sense", "doesn't make sense", "what does", "huh",
		"not sure how", "puzzled",
	}},
	{domain.EmotionBored, []string{
		"bored", "boring", "too easy", "already know", "whatever", "tedious", "dull",
	}},
	{domain.EmotionAnxious, []string{
		"anxious", "nervous", "worried", "worry", "scared", "afraid", "stress", "panic",
		"big test", "exam tomorrow", "test tomorrow", "overwhelm",
	}},
	{domain.EmotionConfident, []string{
		"i got it", "got it now", "understand now", "i know this", "confident", "makes sense", "i can do",
		"figured it out", "easy peasy", "nailed it",
	}},
}

// Classifier is a stateless emotion classifier.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify returns the emotional label for message. history is the full
// conversation; only tutor turns are consulted, newest first.
func (c *Classifier) Classify(message string, history []domain.Turn) domain.Emotion {
	if label, ok := Match(message); ok {
		return label
	}

	// A distressed state keeps the tutor cautious until the learner
	// signals otherwise. The newest tutor turn that carries any label decides.
	for _, turn := range domain.TutorTurnsNewestFirst(history, stickyTurns) {
		label, ok := Match(turn.Text)
		if !ok {
			continue
		}
		if label.IsDistressed() {
			return label
		}
		break
	}
	return domain.EmotionNeutral
}

// Match returns the highest-priority label whose triggers occur in text.
func Match(text string) (domain.Emotion, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return "", false
	}
	for _, r := range rules {
		for _, trigger := range r.triggers {
			if strings.Contains(lower, trigger) {
				return r.label, true
			}
		}
	}
	return "", false
}
