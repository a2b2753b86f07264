package fallback

import "github.com/ashureev/tutor-engine/internal/domain"

// Style is the fixed tone, approach and scoring for one emotion.
type Style struct {
	Tone               domain.Tone
	Approach           domain.TeachingApproach
	Confidence         int
	EncouragementLevel int
}

// StyleFor returns the static style for e. Unknown labels get the neutral style.
func StyleFor(e domain.Emotion) Style {
	switch e {
	case domain.EmotionFrustrated:
		return Style{domain.ToneEmpathetic, domain.ApproachSupportiveBreakdown, 90, 8}
	case domain.EmotionExcited:
		return Style{domain.ToneEnthusiastic, domain.ApproachChallengingExpansion, 92, 7}
	case domain.EmotionConfused:
		return Style{domain.TonePatientClarifying, domain.ApproachExplanatoryQuestioning, 88, 6}
	case domain.EmotionBored:
		return Style{domain.ToneEngagingChallenging, domain.ApproachInteractiveAcceleration, 87, 6}
	case domain.EmotionAnxious:
		return Style{domain.ToneCalmingReassuring, domain.ApproachSupportiveConfidenceBuilding, 89, 9}
	case domain.EmotionConfident:
		return Style{domain.ToneEncouragingChallenging, domain.ApproachAdvancedApplication, 94, 6}
	case domain.EmotionNeutral:
		return Style{domain.ToneFriendlyAdaptive, domain.ApproachConversationalGuidance, 85, 5}
	default:
		return StyleFor(domain.EmotionNeutral)
	}
}

// FollowUps returns a fresh copy of the fixed follow-up questions for e.
func FollowUps(e domain.Emotion) []string {
	var qs []string
	switch e {
	case domain.EmotionFrustrated:
		qs = []string{
			"Which part feels the most difficult right now?",
			"Would it help to try a simpler example first?",
			"Can you show me how far you got before things went wrong?",
		}
	case domain.EmotionExcited:
		qs = []string{
			"What would you like to explore next?",
			"Can you think of where this idea shows up in real life?",
			"Want to try a challenge problem?",
			"How would you explain this to a friend?",
		}
	case domain.EmotionConfused:
		qs = []string{
			"Which step was the last one that made sense to you?",
			"Can you describe the problem in your own words?",
			"Would a worked example help?",
		}
	case domain.EmotionBored:
		qs = []string{
			"Want to try a harder challenge?",
			"Which topic would you rather connect this to?",
			"Can you solve the next one faster than the last?",
		}
	case domain.EmotionAnxious:
		qs = []string{
			"What part concerns you the most?",
			"Would a short practice round help you feel ready?",
			"Which parts do you already feel sure about?",
		}
	case domain.EmotionConfident:
		qs = []string{
			"Can you solve a harder version of this?",
			"How would you teach this to someone else?",
			"Where could you apply this next?",
			"What would change if we altered one condition?",
		}
	default:
		qs = []string{
			"What would you like to focus on today?",
			"How do you feel about this topic so far?",
			"Would an example help?",
		}
	}
	return qs
}

// AdjustConfidence applies the performance adjustment to a base score.
func AdjustConfidence(base int, performance domain.Level) int {
	switch performance {
	case domain.LevelHigh:
		return min(base+5, 100)
	case domain.LevelLow:
		return max(base-5, 70)
	default:
		return base
	}
}
