// Package facts persists long-term memory facts.
package facts

import (
	"context"
	"errors"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
)

// Common errors for fact store operations.
var (
	ErrNotFound    = errors.New("fact not found")
	ErrInvalidType = errors.New("invalid fact type")
)

// Patch carries the mutable fields of a fact edit. Nil fields are untouched.
type Patch struct {
	Content    *string
	Importance *int
	Tags       []string
	Context    *string
}

// Store defines the operations the memory engine needs from fact storage.
type Store interface {
	// Create inserts a new fact, assigning its ID and timestamp.
	Create(ctx context.Context, fact *memory.Fact) error

	// Get returns a fact owned by userID.
	Get(ctx context.Context, userID, id string) (*memory.Fact, error)

	// ListByUser returns up to limit facts ordered by importance then recency.
	ListByUser(ctx context.Context, userID string, limit int) ([]memory.Fact, error)

	// SearchPrefix returns facts whose normalized content starts with prefix.
	SearchPrefix(ctx context.Context, userID, prefix string) ([]memory.Fact, error)

	// Update applies a patch to a fact owned by userID.
	Update(ctx context.Context, userID, id string, patch Patch) (*memory.Fact, error)

	// Reinforce raises a fact's importance (never lowers it) and refreshes
	// its timestamp. Used by duplicate detection.
	Reinforce(ctx context.Context, id string, importance int) error

	// UpsertSummary replaces the user's single user_summary fact in place.
	UpsertSummary(ctx context.Context, userID, content string) error

	// Delete removes a fact owned by userID.
	Delete(ctx context.Context, userID, id string) error

	// DeleteAllByUser empties a user's fact set.
	DeleteAllByUser(ctx context.Context, userID string) error

	// Prune keeps only the top keep facts per user by importance.
	Prune(ctx context.Context, userID string, keep int) error

	// Close releases resources.
	Close() error
}
