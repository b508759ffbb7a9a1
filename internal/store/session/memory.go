package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/chat"
)

// memoryStore implements Store using an in-memory map with optimistic locking.
// Sessions are deep-copied on the way in and out so callers can mutate their
// view freely.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*chat.Session)}
}

func (s *memoryStore) Create(_ context.Context, sess *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now
	sess.Version = 1

	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(stored), nil
}

func (s *memoryStore) Update(_ context.Context, sess *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != sess.Version {
		return ErrVersionConflict
	}

	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *memoryStore) ListRecentByUser(_ context.Context, userID string, limit int) ([]*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*chat.Session, 0, 8)
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			matched = append(matched, cloneSession(sess))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

func cloneSession(src *chat.Session) *chat.Session {
	// JSON round-trip keeps the copy honest as the session shape evolves.
	raw, err := json.Marshal(src)
	if err != nil {
		dup := *src
		dup.Messages = append([]chat.Message(nil), src.Messages...)
		return &dup
	}
	var dst chat.Session
	if err := json.Unmarshal(raw, &dst); err != nil {
		dup := *src
		dup.Messages = append([]chat.Message(nil), src.Messages...)
		return &dup
	}
	return &dst
}
