// Package fallback builds complete tutoring replies from static templates
// without calling any external service.
package fallback

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/subject"
)

// Input carries everything the generator needs for one reply.
type Input struct {
	Message     string
	Emotion     domain.Emotion
	SessionKind domain.SessionKind
	Subject     string
	Analysis    domain.LearningAnalysis
	Profile     *domain.LearnerProfile
}

// Generator produces deterministic replies.
type Generator struct {
	subjects *subject.Resolver
}

// New creates a Generator. A nil resolver uses the embedded subject table.
func New(subjects *subject.Resolver) *Generator {
	if subjects == nil {
		subjects = subject.Default()
	}
	return &Generator{subjects: subjects}
}

// facts is the per-request material shared by the template builders.
type facts struct {
	in          Input
	phrase      string
	encourage   string
	areas       []string
	weakTopics  []string
	subjectName string
}

// Generate builds a reply for in. It does no I/O and always returns a
// complete response.
func (g *Generator) Generate(in Input) domain.TutorResponse {
	ctx := g.subjects.Resolve(in.Subject)
	f := facts{
		in:          in,
		phrase:      ctx.Phrase(in.Emotion),
		encourage:   encouragement(in.Analysis.PerformanceLevel),
		areas:       difficultyAreas(in.Message, ctx.Keywords),
		weakTopics:  lowMasteryTopics(in.Profile),
		subjectName: subjectLabel(in.Subject),
	}
	if f.phrase == "" {
		f.phrase = ctx.Phrase(domain.EmotionNeutral)
	}

	var resp domain.TutorResponse
	switch in.Emotion {
	case domain.EmotionFrustrated:
		resp = frustratedReply(f)
	case domain.EmotionExcited:
		resp = excitedReply(f)
	case domain.EmotionConfused:
		resp = confusedReply(f)
	case domain.EmotionBored:
		resp = boredReply(f)
	case domain.EmotionAnxious:
		resp = anxiousReply(f)
	case domain.EmotionConfident:
		resp = confidentReply(f)
	default:
		resp = neutralReply(f)
	}

	style := StyleFor(in.Emotion)
	resp.EmotionalTone = style.Tone
	resp.TeachingApproach = style.Approach
	resp.ConfidenceScore = AdjustConfidence(style.Confidence, in.Analysis.PerformanceLevel)
	resp.EncouragementLevel = style.EncouragementLevel
	resp.FollowUpQuestions = FollowUps(in.Emotion)
	resp.ReasoningSteps = append([]string{
		fmt.Sprintf("Recognized a %s emotional state", in.Emotion),
		fmt.Sprintf("Learner shows %s performance with %s learning velocity",
			in.Analysis.PerformanceLevel, in.Analysis.LearningVelocity),
	}, resp.ReasoningSteps...)
	if in.SessionKind != "" {
		resp.ReasoningSteps = append(resp.ReasoningSteps, fmt.Sprintf("Adapted the reply to a %s session", in.SessionKind))
	}
	resp.LearningInsights.Patterns = patterns(in.Analysis)
	resp.LearningInsights.Strengths = append(resp.LearningInsights.Strengths, analysisStrengths(in.Analysis)...)
	resp.Normalize()
	return resp
}

func frustratedReply(f facts) domain.TutorResponse {
	text := join(
		"I can tell this is frustrating, and that is completely normal.",
		sentence(f.phrase),
		"Let's break it into smaller pieces and take them one at a time"+startingWith(f.areas)+".",
		f.encourage,
	)
	return domain.TutorResponse{
		ReplyText: text,
		ReasoningSteps: []string{
			"Reduced the size of each step to lower cognitive load",
			"Acknowledged the feeling before returning to content",
		},
		LearningInsights: domain.LearningInsights{
			Strengths:        []string{"Persistence through a difficult topic"},
			ImprovementAreas: orDefault(concat(f.areas, f.weakTopics), "Breaking problems into smaller steps"),
			RecommendedFocus: orDefault(firstOf(f.weakTopics, f.areas), "Foundational steps of "+f.subjectName),
		},
		SuggestedActions: []string{
			"Take a short break, then retry the first step",
			"Work through one simpler example together",
			"Write down exactly where the difficulty starts",
		},
	}
}

func excitedReply(f facts) domain.TutorResponse {
	next := "the next idea"
	if len(f.areas) > 0 {
		next = "more " + f.areas[0]
	}
	text := join(
		"I love your energy here!",
		sentence(f.phrase),
		"Since you are ready for more, let's push into "+next+" and see how far it goes.",
		f.encourage,
	)
	return domain.TutorResponse{
		ReplyText: text,
		ReasoningSteps: []string{
			"Used the learner's enthusiasm to extend the topic",
		},
		LearningInsights: domain.LearningInsights{
			Strengths:        []string{"Enthusiasm for " + f.subjectName},
			ImprovementAreas: f.weakTopics,
			RecommendedFocus: orDefault(f.areas, "Extension problems in "+f.subjectName),
		},
		SuggestedActions: []string{
			"Try an extension problem",
			"Explore a real-world application",
			"Share what you learned with a classmate",
		},
	}
}

func confusedReply(f facts) domain.TutorResponse {
	which := "which step"
	if len(f.areas) > 0 {
		which = "which step of the " + f.areas[0]
	}
	text := join(
		"It sounds like this part is confusing, so let's slow down.",
		sentence(f.phrase),
		"Can you tell me "+which+" stopped making sense first?",
		f.encourage,
	)
	signals := confusionSignals(f.in.Message)
	return domain.TutorResponse{
		ReplyText: text,
		ReasoningSteps: []string{
			"Asked a diagnostic question to locate the gap",
			"Slowed the pace before introducing new material",
		},
		LearningInsights: domain.LearningInsights{
			Strengths:        []string{"Willing to ask for clarification"},
			ImprovementAreas: orDefault(concat(f.areas, signals), "Clarifying the core concept"),
			RecommendedFocus: orDefault(firstOf(f.areas, f.weakTopics), "Core concepts of "+f.subjectName),
		},
		SuggestedActions: []string{
			"Review a worked example step by step",
			"Restate the problem in your own words",
			"Mark the first step that feels unfamiliar",
		},
	}
}

func boredReply(f facts) domain.TutorResponse {
	text := join(
		"Let's pick up the pace.",
		sentence(f.phrase),
		"Here is a challenge: try the next one without any hints and explain your shortcut.",
		f.encourage,
	)
	return domain.TutorResponse{
		ReplyText: text,
		ReasoningSteps: []string{
			"Raised the difficulty to restore engagement",
		},
		LearningInsights: domain.LearningInsights{
			Strengths:        []string{"Ready for more challenging material"},
			ImprovementAreas: orDefault(f.weakTopics, "Sustaining focus on routine practice"),
			RecommendedFocus: []string{"Challenge problems in " + f.subjectName},
		},
		SuggestedActions: []string{
			"Attempt a timed challenge",
			"Skip ahead to an advanced exercise",
			"Build a small project using this idea",
		},
	}
}

func anxiousReply(f facts) domain.TutorResponse {
	text := join(
		"It is okay to feel worried about this.",
		sentence(f.phrase),
		"We will go one small step at a time, and you can ask about anything as often as you need.",
		f.encourage,
	)
	signals := anxietySignals(f.in.Message)
	return domain.TutorResponse{
		ReplyText: text,
		ReasoningSteps: []string{
			"Reassured the learner before adding content",
			"Kept steps small to build confidence",
		},
		LearningInsights: domain.LearningInsights{
			Strengths:        []string{"Cares about doing well"},
			ImprovementAreas: orDefault(concat(signals, f.weakTopics), "Building confidence under pressure"),
			RecommendedFocus: orDefault(f.weakTopics, "Low-pressure practice in "+f.subjectName),
		},
		SuggestedActions: []string{
			"Do a short low-stakes practice round",
			"Try a breathing exercise before starting",
			"List the topics you already feel sure about",
		},
	}
}

func confidentReply(f facts) domain.TutorResponse {
	text := join(
		"Nice work, you clearly have a handle on this.",
		sentence(f.phrase),
		"Let's test it with a harder problem that applies the same idea in a new way.",
		f.encourage,
	)
	return domain.TutorResponse{
		ReplyText: text,
		ReasoningSteps: []string{
			"Moved to application because the learner signals mastery",
		},
		LearningInsights: domain.LearningInsights{
			Strengths:        []string{"Solid grasp of the current material"},
			ImprovementAreas: f.weakTopics,
			RecommendedFocus: orDefault(f.weakTopics, "Advanced applications in "+f.subjectName),
		},
		SuggestedActions: []string{
			"Solve an advanced application problem",
			"Explain the concept to someone else",
			"Connect this idea to a related topic",
		},
	}
}

func neutralReply(f facts) domain.TutorResponse {
	text := join(
		"Thanks for the question.",
		sentence(f.phrase),
		"Let's start from what you know so far and build on it"+startingWith(f.areas)+".",
		f.encourage,
	)
	return domain.TutorResponse{
		ReplyText: text,
		ReasoningSteps: []string{
			"Kept a conversational pace to gauge the learner's needs",
		},
		LearningInsights: domain.LearningInsights{
			Strengths:        []string{"Open to guided exploration"},
			ImprovementAreas: concat(f.areas, f.weakTopics),
			RecommendedFocus: orDefault(firstOf(f.weakTopics, f.areas), "Next topic in "+f.subjectName),
		},
		SuggestedActions: []string{
			"Pick the next topic to explore",
			"Try a practice question",
			"Review your recent progress",
		},
	}
}

func encouragement(level domain.Level) string {
	switch level {
	case domain.LevelHigh:
		return "You have been doing really well lately, so let's keep that momentum."
	case domain.LevelMedium:
		return "You are making steady progress."
	default:
		return "Every small step you take here counts, and we will get there together."
	}
}

func analysisStrengths(a domain.LearningAnalysis) []string {
	var out []string
	if a.PerformanceLevel == domain.LevelHigh {
		out = append(out, "Strong recent quiz performance")
	}
	if a.LearningVelocity == domain.VelocityFast {
		out = append(out, "Completes lessons quickly")
	}
	if a.EngagementLevel == domain.LevelHigh {
		out = append(out, "Consistent engagement across sessions")
	}
	return out
}

func patterns(a domain.LearningAnalysis) []string {
	return []string{
		fmt.Sprintf("Dominant emotion across recent sessions: %s", a.DominantEmotion),
		fmt.Sprintf("Prefers %s sessions", a.PreferredSessionKind),
		fmt.Sprintf("Learning style: %s", a.LearningStyle),
	}
}

func subjectLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "this topic"
	}
	return s
}

func startingWith(areas []string) string {
	if len(areas) == 0 {
		return ""
	}
	return ", starting with " + areas[0]
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

func join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	for _, s := range b {
		dup := false
		for _, x := range out {
			if x == s {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func firstOf(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func orDefault(list []string, def string) []string {
	if len(list) > 0 {
		return list
	}
	return []string{def}
}
