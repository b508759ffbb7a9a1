package wellness

import (
	"context"
	"sync"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
)

// InMemory is a seedable implementation of every collaborator interface,
// suitable for early iterations and tests.
type InMemory struct {
	mu          sync.RWMutex
	profiles    map[string]memory.Profile
	moods       map[string][]memory.MoodRecord
	meditations map[string][]memory.MeditationRecord
	journals    map[string]memory.JournalDigest
}

// NewInMemory creates an empty collaborator store.
func NewInMemory() *InMemory {
	return &InMemory{
		profiles:    make(map[string]memory.Profile),
		moods:       make(map[string][]memory.MoodRecord),
		meditations: make(map[string][]memory.MeditationRecord),
		journals:    make(map[string]memory.JournalDigest),
	}
}

// SetProfile seeds a user profile.
func (s *InMemory) SetProfile(userID string, p memory.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = p
}

// AddMood seeds a mood record; newest entries are expected first in reads.
func (s *InMemory) AddMood(userID string, m memory.MoodRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moods[userID] = append([]memory.MoodRecord{m}, s.moods[userID]...)
}

// AddMeditation seeds a completed meditation.
func (s *InMemory) AddMeditation(userID string, m memory.MeditationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meditations[userID] = append([]memory.MeditationRecord{m}, s.meditations[userID]...)
}

// SetJournalDigest seeds the extracted journal themes.
func (s *InMemory) SetJournalDigest(userID string, d memory.JournalDigest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journals[userID] = d
}

func (s *InMemory) GetProfile(_ context.Context, userID string) (memory.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[userID], nil
}

func (s *InMemory) RecentMoods(_ context.Context, userID string, limit int) ([]memory.MoodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	moods := s.moods[userID]
	if limit > 0 && len(moods) > limit {
		moods = moods[:limit]
	}
	return append([]memory.MoodRecord(nil), moods...), nil
}

func (s *InMemory) RecentMeditations(_ context.Context, userID string, limit int) ([]memory.MeditationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meds := s.meditations[userID]
	if limit > 0 && len(meds) > limit {
		meds = meds[:limit]
	}
	return append([]memory.MeditationRecord(nil), meds...), nil
}

func (s *InMemory) RecentThemes(_ context.Context, userID string, limit int) (memory.JournalDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	digest := s.journals[userID]
	if limit > 0 && len(digest.KeyThemes) > limit {
		digest.KeyThemes = digest.KeyThemes[:limit]
	}
	return digest, nil
}
