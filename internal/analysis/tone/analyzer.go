// Package tone derives an emotional read of the user's message to steer
// prompt framing. It never alters stored data.
package tone

import (
	"math"
	"strings"
)

// Label names the dominant emotion detected in a message.
type Label string

const (
	Neutral    Label = "neutral"
	Joyful     Label = "joyful"
	Sad        Label = "sad"
	Anxious    Label = "anxious"
	Frustrated Label = "frustrated"
	Hopeful    Label = "hopeful"
	Drained    Label = "drained"
)

// ResponseMode recommends how the assistant should shape its reply.
type ResponseMode string

const (
	ModeSupportive     ResponseMode = "supportive"
	ModeCelebratory    ResponseMode = "celebratory"
	ModeGrounding      ResponseMode = "grounding"
	ModeEncouraging    ResponseMode = "encouraging"
	ModeConversational ResponseMode = "conversational"
)

// Analysis is the tone read for one turn.
type Analysis struct {
	Emotion   Label
	Intensity float32 // 1..5
	Intent    string  // venting, seeking-advice, sharing, checking-in
	Clarity   float32 // 0..1, how unambiguous the signal is
	Mode      ResponseMode
	Guidance  string
}

var keywordBuckets = map[Label][]string{
	Joyful: {
		"happy", "glad", "excited", "thrilled", "great day", "wonderful", "amazing",
		"so good", "love it", "grateful", "thankful", "proud",
	},
	Sad: {
		"sad", "down", "crying", "cried", "heartbroken", "miss", "grief", "lost",
		"lonely", "alone", "empty", "hopeless", "miserable", "hurt",
	},
	Anxious: {
		"anxious", "anxiety", "worried", "worry", "nervous", "panic", "afraid",
		"scared", "dread", "on edge", "racing thoughts", "overwhelmed", "can't stop thinking",
	},
	Frustrated: {
		"frustrated", "angry", "annoyed", "fed up", "unfair", "sick of", "furious",
		"irritated", "mad at",
	},
	Hopeful: {
		"hopeful", "looking forward", "getting better", "improving", "small win",
		"progress", "trying again", "optimistic",
	},
	Drained: {
		"tired", "exhausted", "drained", "burned out", "burnt out", "no energy",
		"worn out", "can't keep up", "running on empty",
	},
}

var ventingCues = []string{"i just need to", "i have to get this out", "sorry for the rant", "just venting", "need to vent"}
var adviceCues = []string{"what should i", "how do i", "how can i", "any advice", "what would you", "should i"}
var checkInCues = []string{"just checking in", "hey", "hi", "good morning", "good evening", "how are you"}

var guidanceByMode = map[ResponseMode]string{
	ModeSupportive:     "Lead with validation, keep sentences short, do not rush toward solutions.",
	ModeCelebratory:    "Match the user's energy, name the achievement specifically, invite them to savor it.",
	ModeGrounding:      "Slow the pace, acknowledge the feeling, offer one small concrete step at most.",
	ModeEncouraging:    "Reflect the progress they named and gently reinforce the direction they chose.",
	ModeConversational: "Stay warm and natural; follow the user's lead on topic and depth.",
}

// Analyze scores the message against keyword buckets, weighing recent turns
// at half strength so one-word replies keep their emotional context.
func Analyze(message string, recent []string) Analysis {
	scores := make(map[Label]int)
	score(message, scores, 2)
	for _, prior := range recent {
		score(prior, scores, 1)
	}

	best := Neutral
	bestScore := 0
	for label, s := range scores {
		if s > bestScore {
			best = label
			bestScore = s
		}
	}

	intensity := float32(1 + math.Min(4, float64(bestScore)/3))
	clarity := float32(math.Min(1, float64(bestScore)/8))
	if best == Neutral {
		intensity = 1
		clarity = 0.5
	}

	analysis := Analysis{
		Emotion:   best,
		Intensity: intensity,
		Intent:    conversationalIntent(message),
		Clarity:   clarity,
		Mode:      modeFor(best),
	}
	analysis.Guidance = guidanceByMode[analysis.Mode]
	return analysis
}

func score(text string, scores map[Label]int, weight int) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return
	}
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3 * weight
			}
		}
	}
	if exclamations := strings.Count(text, "!"); exclamations > 0 {
		scores[Joyful] += exclamations * weight
	}
}

func conversationalIntent(message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	switch {
	case matchesAny(normalized, ventingCues):
		return "venting"
	case matchesAny(normalized, adviceCues):
		return "seeking-advice"
	case matchesAny(normalized, checkInCues) && len(normalized) < 40:
		return "checking-in"
	default:
		return "sharing"
	}
}

func matchesAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

func modeFor(label Label) ResponseMode {
	switch label {
	case Sad, Drained:
		return ModeSupportive
	case Anxious, Frustrated:
		return ModeGrounding
	case Joyful:
		return ModeCelebratory
	case Hopeful:
		return ModeEncouraging
	default:
		return ModeConversational
	}
}
