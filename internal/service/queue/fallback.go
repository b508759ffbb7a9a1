package queue

import "strings"

// Deterministic fallback replies used when the model stays unreachable after
// retries. Category selection matches keywords in the latest user message.
var fallbackCategories = []struct {
	keywords []string
	reply    string
}{
	{
		keywords: []string{"help", "support", "what do i do", "dont know what to do", "don't know what to do"},
		reply:    "I'm here with you. I'm having trouble reaching my full capabilities right now, but you don't have to figure this out alone — tell me a little more about what's going on, and we'll take it one step at a time.",
	},
	{
		keywords: []string{"anxious", "anxiety", "panic", "worried", "nervous"},
		reply:    "It sounds like a lot is weighing on you right now. While I reconnect, try one slow breath in for four counts and out for six. Whatever you're feeling is allowed to be here, and it will pass.",
	},
	{
		keywords: []string{"sad", "down", "lonely", "alone", "crying", "hopeless", "depressed"},
		reply:    "I'm sorry things feel heavy right now. Even though I'm having a temporary hiccup on my side, what you're carrying matters. Be gentle with yourself for the next few minutes — I'm still here.",
	},
	{
		keywords: []string{"stress", "stressed", "overwhelmed", "pressure", "burned out", "burnt out", "exhausted", "tired"},
		reply:    "That sounds exhausting, and it makes sense you're feeling stretched thin. While I get back on my feet, consider putting down one small thing — even for ten minutes. Rest is not a failure.",
	},
}

const genericFallback = "Thank you for sharing that with me. I'm having a temporary issue on my side, but I'm still here with you — could you tell me a bit more about how you're feeling right now?"

// FallbackResponse picks a deterministic supportive reply keyed off the
// latest user message.
func FallbackResponse(userMessage string) string {
	normalized := strings.ToLower(userMessage)
	for _, category := range fallbackCategories {
		for _, word := range category.keywords {
			if strings.Contains(normalized, word) {
				return category.reply
			}
		}
	}
	return genericFallback
}
