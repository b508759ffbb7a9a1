// Package session persists chat sessions behind a driver-agnostic interface.
package session

import (
	"context"
	"errors"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/chat"
)

// Common errors for session store operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrNotFound         = errors.New("session not found")
)

// Store defines the interface for session storage.
type Store interface {
	// Create stores a new session with Version set to 1.
	Create(ctx context.Context, s *chat.Session) error

	// Get retrieves a session by ID.
	// Returns ErrNotFound if the session does not exist.
	Get(ctx context.Context, id string) (*chat.Session, error)

	// Update persists a modified session with optimistic locking: the stored
	// Version must match, and is incremented on success.
	// Returns ErrVersionConflict when a concurrent writer got there first.
	Update(ctx context.Context, s *chat.Session) error

	// ListRecentByUser returns up to limit sessions for a user, most recently
	// updated first.
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*chat.Session, error)

	// Delete removes a session by ID.
	Delete(ctx context.Context, id string) error

	// Close releases driver resources.
	Close() error
}
