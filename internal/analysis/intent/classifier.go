// Package intent classifies a chat turn into a coarse conversational intent.
package intent

import "strings"

// Intent steers prompt framing and memory snippet selection.
type Intent string

const (
	Celebration Intent = "celebration"
	Distress    Intent = "distress"
	Casual      Intent = "casual"
	Reflection  Intent = "reflection"
)

var celebrationKeywords = []string{
	"i did it", "i passed", "i got the job", "promoted", "promotion", "graduated",
	"accepted", "we won", "i won", "finally finished", "so proud", "proud of myself",
	"great news", "good news", "amazing news", "celebrate", "accomplished", "achieved",
	"nailed it", "crushed it", "milestone",
}

var distressKeywords = []string{
	"overwhelmed", "anxious", "anxiety", "panic", "panicking", "hopeless", "helpless",
	"depressed", "depressing", "can't cope", "cant cope", "can't sleep", "cant sleep",
	"exhausted", "burned out", "burnt out", "worthless", "crying", "cried", "miserable",
	"scared", "terrified", "stressed", "stressing", "breaking down", "falling apart",
	"want to give up", "giving up", "so alone", "lonely", "hurt myself", "hate myself",
}

var reflectionKeywords = []string{
	"i've been thinking", "ive been thinking", "i realized", "i realize", "looking back",
	"i wonder", "i've noticed", "ive noticed", "it made me think", "i keep coming back to",
	"reflecting", "in hindsight", "i used to", "why do i", "what does it mean",
	"i'm starting to see", "im starting to see",
}

// Classify derives the intent of message. Celebration and distress cues are
// checked before reflection; the default is casual. An empty message falls
// back to the most recent non-empty prior message so a bare "..." turn still
// inherits the conversation's emotional register.
func Classify(message string, recent []string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		for i := len(recent) - 1; i >= 0; i-- {
			if strings.TrimSpace(recent[i]) != "" {
				return Classify(recent[i], recent[:i])
			}
		}
		return Casual
	}

	if containsAny(normalized, celebrationKeywords) {
		return Celebration
	}
	if containsAny(normalized, distressKeywords) {
		return Distress
	}
	if containsAny(normalized, reflectionKeywords) {
		return Reflection
	}
	return Casual
}

func containsAny(text string, keywords []string) bool {
	for _, word := range keywords {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
