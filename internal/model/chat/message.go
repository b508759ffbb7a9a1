package chat

import (
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/pkg/tokens"
)

// Roles carried by a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Immutable once appended.
type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"tokenCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewMessage builds a message with an estimated token count attached so later
// budgeting passes do not re-scan the content.
func NewMessage(role, content string) Message {
	return Message{
		Role:       role,
		Content:    content,
		TokenCount: tokens.Estimate(content),
		CreatedAt:  time.Now().UTC(),
	}
}

// TotalTokens sums the estimated token counts of a transcript slice.
func TotalTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += msg.TokenCount
	}
	return total
}
