package memory

import "time"

// Profile holds the slice of the user profile relevant to prompt building.
type Profile struct {
	Bio                string   `json:"bio,omitempty"`
	Goals              []string `json:"goals,omitempty"`
	Challenges         []string `json:"challenges,omitempty"`
	Interests          []string `json:"interests,omitempty"`
	CommunicationStyle string   `json:"communicationStyle,omitempty"`
	ExperienceLevel    string   `json:"experienceLevel,omitempty"`
}

// MoodRecord is one mood check-in.
type MoodRecord struct {
	Score     int       `json:"score"` // 1..10
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MeditationRecord is one completed meditation session.
type MeditationRecord struct {
	Title       string    `json:"title"`
	Minutes     int       `json:"minutes"`
	CompletedAt time.Time `json:"completedAt"`
}

// JournalDigest carries only extracted themes and insights, never entry text.
type JournalDigest struct {
	KeyThemes  []string `json:"keyThemes,omitempty"`
	Insights   []string `json:"insights,omitempty"`
	EntryCount int      `json:"entryCount"`
}

// SessionSummary is bounded metadata about a prior chat session, with a small
// trailing excerpt for cross-session continuity.
type SessionSummary struct {
	SessionID    string    `json:"sessionId"`
	MessageCount int       `json:"messageCount"`
	EndedAt      time.Time `json:"endedAt"`
	Excerpt      []string  `json:"excerpt,omitempty"` // "role: text" lines
}

// Snapshot is the derived, transient view of everything the prompt pipeline
// may know about a user. It is rebuilt by the gatherer and only ever cached,
// never persisted.
type Snapshot struct {
	UserID      string             `json:"userId"`
	Profile     Profile            `json:"profile"`
	Moods       []MoodRecord       `json:"moods,omitempty"`
	Meditations []MeditationRecord `json:"meditations,omitempty"`
	Journal     JournalDigest      `json:"journal"`
	Sessions    []SessionSummary   `json:"sessions,omitempty"`
	Facts       []Fact             `json:"facts,omitempty"`
	GatheredAt  time.Time          `json:"gatheredAt"`
}

// Empty reports whether the snapshot carries no personalization signal at all.
func (s Snapshot) Empty() bool {
	return len(s.Facts) == 0 && len(s.Moods) == 0 && len(s.Meditations) == 0 &&
		len(s.Sessions) == 0 && s.Journal.EntryCount == 0 &&
		s.Profile.Bio == "" && len(s.Profile.Goals) == 0
}

// Summary returns the current user_summary fact, if one exists.
func (s Snapshot) Summary() (Fact, bool) {
	for _, f := range s.Facts {
		if f.Type == FactUserSummary {
			return f, true
		}
	}
	return Fact{}, false
}

// LatestMood returns the most recent mood record, if any.
func (s Snapshot) LatestMood() (MoodRecord, bool) {
	if len(s.Moods) == 0 {
		return MoodRecord{}, false
	}
	latest := s.Moods[0]
	for _, m := range s.Moods[1:] {
		if m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	return latest, true
}
