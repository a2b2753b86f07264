package fallback

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/ashureev/tutor-engine/internal/domain"
)

const (
	masteryThreshold = 70
	maxMasteryTopics = 3
	maxAreas         = 3
)

var confusionIndicators = []struct {
	phrase, label string
}{
	{"don't understand", "lack of understanding"},
	{"do not understand", "lack of understanding"},
	{"confus", "general confusion"},
	{"lost", "lost the thread"},
	{"unclear", "unclear explanation"},
	{"makes no sense", "reasoning does not connect"},
	{"why does", "missing the why"},
	{"how does", "missing the how"},
	{"what does", "unfamiliar terminology"},
	{"not sure", "uncertainty"},
}

var anxietyIndicators = []struct {
	phrase, label string
}{
	{"test", "upcoming assessment"},
	{"exam", "upcoming assessment"},
	{"quiz", "upcoming assessment"},
	{"deadline", "time pressure"},
	{"tomorrow", "time pressure"},
	{"grade", "performance pressure"},
	{"fail", "fear of failure"},
	{"nervous", "nervousness"},
	{"worried", "worry"},
	{"scared", "fear of failure"},
}

// difficultyAreas returns the subject keywords that appear as word prefixes
// in message, in keyword order.
func difficultyAreas(message string, keywords []string) []string {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, kw := range keywords {
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				out = append(out, kw)
				break
			}
		}
		if len(out) == maxAreas {
			break
		}
	}
	return out
}

func confusionSignals(message string) []string {
	return scanIndicators(message, confusionIndicators)
}

func anxietySignals(message string) []string {
	return scanIndicators(message, anxietyIndicators)
}

func scanIndicators(message string, table []struct{ phrase, label string }) []string {
	msg := strings.ToLower(message)
	var out []string
	for _, ind := range table {
		if strings.Contains(msg, ind.phrase) && !slices.Contains(out, ind.label) {
			out = append(out, ind.label)
		}
	}
	return out
}

// lowMasteryTopics returns up to three topics below the mastery threshold,
// weakest first.
func lowMasteryTopics(profile *domain.LearnerProfile) []string {
	if profile == nil {
		return nil
	}
	var weak []domain.MasteryRecord
	for _, m := range profile.Mastery {
		if m.Topic != "" && m.MasteryLevel < masteryThreshold {
			weak = append(weak, m)
		}
	}
	slices.SortStableFunc(weak, func(a, b domain.MasteryRecord) int {
		if c := cmp.Compare(a.MasteryLevel, b.MasteryLevel); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
	out := make([]string, 0, maxMasteryTopics)
	for _, m := range weak {
		if len(out) == maxMasteryTopics {
			break
		}
		out = append(out, m.Topic)
	}
	return out
}
