package chat

import "time"

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Session captures one conversation between a user and the assistant.
// The message sequence is append-only: turn processing never deletes or
// rewrites a committed message.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Status    string     `json:"status"`
	Messages  []Message  `json:"messages"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`

	// Version supports optimistic locking in the session store.
	Version int64 `json:"version"`
}
