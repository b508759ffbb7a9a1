// Package gatherer aggregates collaborator data into a user memory snapshot.
package gatherer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/facts"
	sessionstore "github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/session"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/wellness"
)

// Bounded query sizes. Journal entries are deliberately fetched as themes
// only, never by content.
const (
	moodLimit       = 30
	meditationLimit = 10
	sessionLimit    = 5
	factLimit       = 50
	journalLimit    = 5
	excerptMessages = 4
)

// Gatherer rebuilds snapshots on demand. Individual collaborator failures
// degrade their slice to empty rather than failing the whole build.
type Gatherer struct {
	profiles    wellness.ProfileStore
	moods       wellness.MoodStore
	meditations wellness.MeditationStore
	journals    wellness.JournalStore
	sessions    sessionstore.Store
	facts       facts.Store

	mu       sync.Mutex
	inflight map[string]bool
}

// New wires the gatherer to its collaborators.
func New(
	profiles wellness.ProfileStore,
	moods wellness.MoodStore,
	meditations wellness.MeditationStore,
	journals wellness.JournalStore,
	sessions sessionstore.Store,
	factStore facts.Store,
) *Gatherer {
	return &Gatherer{
		profiles:    profiles,
		moods:       moods,
		meditations: meditations,
		journals:    journals,
		sessions:    sessions,
		facts:       factStore,
		inflight:    make(map[string]bool),
	}
}

// Build assembles a fresh snapshot for userID.
func (g *Gatherer) Build(ctx context.Context, userID string) memory.Snapshot {
	snapshot := memory.Snapshot{UserID: userID, GatheredAt: time.Now().UTC()}

	if g.profiles != nil {
		profile, err := g.profiles.GetProfile(ctx, userID)
		if err != nil {
			log.Printf("[gatherer] profile read failed for user=%s: %v", userID, err)
		} else {
			snapshot.Profile = profile
		}
	}

	if g.moods != nil {
		moods, err := g.moods.RecentMoods(ctx, userID, moodLimit)
		if err != nil {
			log.Printf("[gatherer] mood read failed for user=%s: %v", userID, err)
		} else {
			snapshot.Moods = moods
		}
	}

	if g.meditations != nil {
		meditations, err := g.meditations.RecentMeditations(ctx, userID, meditationLimit)
		if err != nil {
			log.Printf("[gatherer] meditation read failed for user=%s: %v", userID, err)
		} else {
			snapshot.Meditations = meditations
		}
	}

	if g.journals != nil {
		digest, err := g.journals.RecentThemes(ctx, userID, journalLimit)
		if err != nil {
			log.Printf("[gatherer] journal themes read failed for user=%s: %v", userID, err)
		} else {
			snapshot.Journal = digest
		}
	}

	if g.sessions != nil {
		snapshot.Sessions = g.gatherSessions(ctx, userID)
	}

	if g.facts != nil {
		factList, err := g.facts.ListByUser(ctx, userID, factLimit)
		if err != nil {
			log.Printf("[gatherer] fact read failed for user=%s: %v", userID, err)
		} else {
			snapshot.Facts = factList
		}
	}

	return snapshot
}

// gatherSessions collects metadata plus a small trailing excerpt from recent
// sessions, for cross-session continuity.
func (g *Gatherer) gatherSessions(ctx context.Context, userID string) []memory.SessionSummary {
	sessions, err := g.sessions.ListRecentByUser(ctx, userID, sessionLimit)
	if err != nil {
		log.Printf("[gatherer] session read failed for user=%s: %v", userID, err)
		return nil
	}

	summaries := make([]memory.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summary := memory.SessionSummary{
			SessionID:    sess.ID,
			MessageCount: len(sess.Messages),
			EndedAt:      sess.UpdatedAt,
		}

		start := len(sess.Messages) - excerptMessages
		if start < 0 {
			start = 0
		}
		for _, msg := range sess.Messages[start:] {
			summary.Excerpt = append(summary.Excerpt, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
		}

		summaries = append(summaries, summary)
	}
	return summaries
}

// Warm rebuilds and caches a snapshot in the background, deduplicating
// concurrent warms for the same user. setter stores the result.
func (g *Gatherer) Warm(userID string, setter func(memory.Snapshot)) {
	g.mu.Lock()
	if g.inflight[userID] {
		g.mu.Unlock()
		return
	}
	g.inflight[userID] = true
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.inflight, userID)
			g.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		setter(g.Build(ctx, userID))
	}()
}
