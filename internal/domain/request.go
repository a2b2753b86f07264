package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionKind is the pedagogical activity type of an exchange.
type SessionKind string

// Session kinds. Instruction is the default when history is empty.
const (
	SessionInstruction SessionKind = "instruction"
	SessionDrill       SessionKind = "drill"
	SessionDiscussion  SessionKind = "discussion"
	SessionReview      SessionKind = "review"
	SessionAssessment  SessionKind = "assessment"
	SessionPractice    SessionKind = "practice"
)

var sessionKinds = []SessionKind{
	SessionInstruction,
	SessionDrill,
	SessionDiscussion,
	SessionReview,
	SessionAssessment,
	SessionPractice,
}

// Valid reports whether k is a known session kind.
func (k SessionKind) Valid() bool {
	for _, known := range sessionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerLearner Speaker = "learner"
	SpeakerTutor   Speaker = "tutor"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Speaker   Speaker   `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TutorRequest is a learner message plus the context needed to answer it.
// It is treated as immutable once received.
type TutorRequest struct {
	LearnerID           string         `json:"learnerId"`
	Message             string         `json:"message"`
	SessionKind         SessionKind    `json:"sessionKind"`
	Subject             string         `json:"subject,omitempty"`
	ExplicitEmotion     Emotion        `json:"detectedEmotion,omitempty"`
	AuxiliaryContext    map[string]any `json:"contextData,omitempty"`
	ConversationHistory []Turn         `json:"conversationHistory,omitempty"`
}

// ErrInvalidRequest is the sentinel wrapped by request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Validate checks required fields and enum tokens.
func (r *TutorRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.LearnerID) == "" {
		problems = append(problems, "learnerId is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		problems = append(problems, "message is required")
	}
	switch {
	case r.SessionKind == "":
		problems = append(problems, "sessionKind is required")
	case !r.SessionKind.Valid():
		problems = append(problems, fmt.Sprintf("unknown sessionKind %q", r.SessionKind))
	}
	if r.ExplicitEmotion != "" && !r.ExplicitEmotion.Valid() {
		problems = append(problems, fmt.Sprintf("unknown detectedEmotion %q", r.ExplicitEmotion))
	}
	for i, t := range r.ConversationHistory {
		if t.Speaker != SpeakerLearner && t.Speaker != SpeakerTutor {
			problems = append(problems, fmt.Sprintf("conversationHistory[%d]: unknown role %q", i, t.Speaker))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// RecentTurns returns the last n turns in original order.
func (r *TutorRequest) RecentTurns(n int) []Turn {
	return LastTurns(r.ConversationHistory, n)
}

// LastTurns returns a copy of the last n turns of history in original order.
func LastTurns(history []Turn, n int) []Turn {
	if n <= 0 || len(history) == 0 {
		return []Turn{}
	}
	start := 0
	if len(history) > n {
		start = len(history) - n
	}
	out := make([]Turn, len(history)-start)
	copy(out, history[start:])
	return out
}

// TutorTurnsNewestFirst returns up to n tutor turns, most recent first.
func TutorTurnsNewestFirst(history []Turn, n int) []Turn {
	var out []Turn
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Speaker == SpeakerTutor {
			out = append(out, history[i])
		}
	}
	return out
}
