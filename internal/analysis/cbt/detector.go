// Package cbt detects cognitive-distortion language in distressed messages.
//
// The scan is gated: without distress vocabulary the detector short-circuits
// to a negative result regardless of distortion patterns, so casual
// conversation never gets clinical framing.
package cbt

import "strings"

// Indicator names a detected distortion pattern.
type Indicator string

const (
	AllOrNothing     Indicator = "all_or_nothing"
	Catastrophizing  Indicator = "catastrophizing"
	ShouldStatements Indicator = "should_statements"
	Personalization  Indicator = "personalization"
	MindReading      Indicator = "mind_reading"
	FortuneTelling   Indicator = "fortune_telling"
	Labeling         Indicator = "labeling"
	Overgeneralizing Indicator = "overgeneralization"
)

// Result reports whether CBT-style framing is warranted and why.
type Result struct {
	Indicated  bool
	Indicators []Indicator
}

var distressVocabulary = []string{
	"overwhelmed", "anxious", "anxiety", "panic", "hopeless", "depressed",
	"worthless", "miserable", "scared", "terrified", "stressed", "crying",
	"exhausted", "can't cope", "cant cope", "falling apart", "hate myself",
	"give up", "desperate", "ashamed",
}

var distortionPatterns = map[Indicator][]string{
	AllOrNothing: {
		"always fail", "never works", "completely ruined", "totally useless",
		"everything is ruined", "nothing ever", "all or nothing", "either i",
	},
	Catastrophizing: {
		"worst thing", "disaster", "it's over", "its over", "ruin everything",
		"never recover", "end of the world", "can't survive", "cant survive",
	},
	ShouldStatements: {
		"i should have", "i shouldn't have", "i shouldnt have", "i must always",
		"i have to be", "i ought to", "i'm supposed to", "im supposed to",
	},
	Personalization: {
		"all my fault", "because of me", "i ruined", "i'm to blame", "im to blame",
		"if only i had",
	},
	MindReading: {
		"they think i", "everyone thinks", "they must hate", "they all hate",
		"nobody likes me", "they're judging", "theyre judging",
	},
	FortuneTelling: {
		"it will never", "i'll never", "ill never", "i'm going to fail",
		"im going to fail", "it's going to go wrong", "doomed to",
	},
	Labeling: {
		"i'm a failure", "im a failure", "i'm such an idiot", "im such an idiot",
		"i'm a loser", "im a loser", "i'm broken", "im broken", "i'm stupid", "im stupid",
	},
	Overgeneralizing: {
		"this always happens", "every time i try", "nothing ever changes",
		"everyone always", "no one ever", "every single time",
	},
}

// Detect scans message for distortion patterns, gated on distress vocabulary.
func Detect(message string) Result {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return Result{}
	}

	distressed := false
	for _, word := range distressVocabulary {
		if strings.Contains(normalized, word) {
			distressed = true
			break
		}
	}
	if !distressed {
		return Result{}
	}

	var matched []Indicator
	for indicator, patterns := range distortionPatterns {
		for _, pattern := range patterns {
			if strings.Contains(normalized, pattern) {
				matched = append(matched, indicator)
				break
			}
		}
	}

	return Result{Indicated: len(matched) > 0, Indicators: matched}
}
