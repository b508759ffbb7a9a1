// Package memory defines the long-term memory data types.
package memory

import "time"

// FactType classifies a long-term memory fact.
type FactType string

const (
	FactEmotionalTheme FactType = "emotional_theme"
	FactCopingPattern  FactType = "coping_pattern"
	FactGoal           FactType = "goal"
	FactTrigger        FactType = "trigger"
	FactInsight        FactType = "insight"
	FactPreference     FactType = "preference"
	FactPerson         FactType = "person"
	FactSchool         FactType = "school"
	FactOrganization   FactType = "organization"
	FactUserSummary    FactType = "user_summary"
)

// ValidFactTypes are the allowed fact types.
var ValidFactTypes = map[FactType]bool{
	FactEmotionalTheme: true,
	FactCopingPattern:  true,
	FactGoal:           true,
	FactTrigger:        true,
	FactInsight:        true,
	FactPreference:     true,
	FactPerson:         true,
	FactSchool:         true,
	FactOrganization:   true,
	FactUserSummary:    true,
}

// Fact is a small, typed, durable statement about a user, extracted from
// conversation and stored apart from raw message history.
type Fact struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Type       FactType  `json:"type"`
	Content    string    `json:"content"`
	Importance int       `json:"importance"` // 1..10
	Tags       []string  `json:"tags,omitempty"`
	Context    string    `json:"context,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClampImportance forces importance into the valid [1,10] range.
func ClampImportance(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
