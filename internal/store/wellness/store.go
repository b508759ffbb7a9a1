// Package wellness exposes the collaborator reads the memory gatherer
// consumes. The real application owns these stores; this core only ever
// issues bounded queries against them.
package wellness

import (
	"context"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
)

// ProfileStore serves user profile reads.
type ProfileStore interface {
	// GetProfile returns the user's profile, or a zero profile when none
	// exists. Absence is not an error.
	GetProfile(ctx context.Context, userID string) (memory.Profile, error)
}

// MoodStore serves recent mood check-ins.
type MoodStore interface {
	RecentMoods(ctx context.Context, userID string, limit int) ([]memory.MoodRecord, error)
}

// MeditationStore serves recently completed meditation sessions.
type MeditationStore interface {
	RecentMeditations(ctx context.Context, userID string, limit int) ([]memory.MeditationRecord, error)
}

// JournalStore serves extracted journal themes. Entry bodies are never
// exposed through this interface.
type JournalStore interface {
	RecentThemes(ctx context.Context, userID string, limit int) (memory.JournalDigest, error)
}
