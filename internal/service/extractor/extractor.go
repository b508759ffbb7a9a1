// Package extractor mines durable facts from finished chat turns.
// Extraction runs off the request path; failures are logged, never surfaced.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/queue"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/facts"
)

const (
	defaultQueueDepth   = 32
	defaultSummaryEvery = 8
	defaultMaxFacts     = 100
	dedupPrefixLen      = 24
	jobTimeout          = 60 * time.Second
)

const extractionPrompt = `You extract long-term memory facts from a wellness conversation. Return ONLY a JSON array. Each element: {"type": one of ["emotional_theme","coping_pattern","goal","trigger","insight","preference","person","school","organization"], "content": a short third-person statement about the user, "importance": integer 1-10, "tags": array of short strings, "context": one sentence of supporting context}. Only include facts worth remembering weeks later. Return [] if nothing qualifies.`

const summaryPrompt = `Write a 3-5 sentence third-person summary of this user for a wellness companion: who they are, what they are working through, and what helps them. Base it on the previous summary and the recent conversation. Return only the summary text.`

// AIClient is the slice of the request queue the extractor needs.
type AIClient interface {
	Enqueue(ctx context.Context, req queue.Request) (queue.Result, error)
}

// CacheInvalidator drops cached snapshots after fact mutations.
type CacheInvalidator interface {
	Invalidate(userID string)
}

// Job is one extraction unit: the turns to mine and the running user-turn
// count, used to decide when the rolling summary is due.
type Job struct {
	UserID    string
	Messages  []chat.Message
	UserTurns int
}

// Config tunes extraction cadence and retention.
type Config struct {
	QueueDepth   int
	SummaryEvery int
	MaxFacts     int
}

func (c Config) withDefaults() Config {
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.SummaryEvery <= 0 {
		c.SummaryEvery = defaultSummaryEvery
	}
	if c.MaxFacts <= 0 {
		c.MaxFacts = defaultMaxFacts
	}
	return c
}

// Extractor consumes jobs on a single background worker.
type Extractor struct {
	ai    AIClient
	store facts.Store
	cache CacheInvalidator
	cfg   Config
	jobs  chan Job
}

// New starts the worker goroutine. It stops when ctx is cancelled.
func New(ctx context.Context, ai AIClient, store facts.Store, cache CacheInvalidator, cfg Config) *Extractor {
	e := &Extractor{
		ai:    ai,
		store: store,
		cache: cache,
		cfg:   cfg.withDefaults(),
		jobs:  make(chan Job, cfg.withDefaults().QueueDepth),
	}
	go e.run(ctx)
	return e
}

// Submit hands a job to the worker without blocking. When the backlog is
// full the job is dropped; extraction is best-effort.
func (e *Extractor) Submit(job Job) {
	select {
	case e.jobs <- job:
	default:
		log.Printf("[extractor] backlog full, dropping job for user %s", job.UserID)
	}
}

func (e *Extractor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.jobs:
			jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
			e.process(jobCtx, job)
			cancel()
		}
	}
}

func (e *Extractor) process(ctx context.Context, job Job) {
	if len(job.Messages) == 0 {
		return
	}
	mutated := e.extractFacts(ctx, job)

	if job.UserTurns > 0 && job.UserTurns%e.cfg.SummaryEvery == 0 {
		if e.refreshSummary(ctx, job) {
			mutated = true
		}
	}

	if mutated {
		if err := e.store.Prune(ctx, job.UserID, e.cfg.MaxFacts); err != nil {
			log.Printf("[extractor] prune failed for user %s: %v", job.UserID, err)
		}
		e.cache.Invalidate(job.UserID)
	}
}

func (e *Extractor) extractFacts(ctx context.Context, job Job) bool {
	res, err := e.ai.Enqueue(ctx, queue.Request{
		System: extractionPrompt,
		User:   renderTranscript(job.Messages),
	})
	if err != nil {
		log.Printf("[extractor] extraction call failed for user %s: %v", job.UserID, err)
		return false
	}
	if res.Failover {
		// Canned text carries no facts.
		return false
	}

	candidates, err := parseCandidates(res.Text)
	if err != nil {
		log.Printf("[extractor] unparseable extraction output for user %s: %v", job.UserID, err)
		return false
	}

	mutated := false
	for _, c := range candidates {
		if e.persistCandidate(ctx, job.UserID, c) {
			mutated = true
		}
	}
	return mutated
}

func (e *Extractor) persistCandidate(ctx context.Context, userID string, c candidate) bool {
	factType := memory.FactType(c.Type)
	if !memory.ValidFactTypes[factType] || factType == memory.FactUserSummary {
		return false
	}
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return false
	}
	importance := memory.ClampImportance(c.Importance)

	prefix := facts.NormalizeKey(content)
	if len(prefix) > dedupPrefixLen {
		prefix = prefix[:dedupPrefixLen]
	}
	existing, err := e.store.SearchPrefix(ctx, userID, prefix)
	if err != nil {
		log.Printf("[extractor] dedup search failed for user %s: %v", userID, err)
		return false
	}
	if len(existing) > 0 {
		if err := e.store.Reinforce(ctx, existing[0].ID, importance); err != nil {
			log.Printf("[extractor] reinforce failed for user %s: %v", userID, err)
			return false
		}
		return true
	}

	fact := &memory.Fact{
		UserID:     userID,
		Type:       factType,
		Content:    content,
		Importance: importance,
		Tags:       c.Tags,
		Context:    c.Context,
	}
	if err := e.store.Create(ctx, fact); err != nil {
		log.Printf("[extractor] create failed for user %s: %v", userID, err)
		return false
	}
	return true
}

func (e *Extractor) refreshSummary(ctx context.Context, job Job) bool {
	prior := e.currentSummary(ctx, job.UserID)
	user := renderTranscript(job.Messages)
	if prior != "" {
		user = "Previous summary:\n" + prior + "\n\nRecent conversation:\n" + user
	}
	res, err := e.ai.Enqueue(ctx, queue.Request{System: summaryPrompt, User: user})
	if err != nil || res.Failover {
		if err != nil {
			log.Printf("[extractor] summary call failed for user %s: %v", job.UserID, err)
		}
		return false
	}
	summary := strings.TrimSpace(res.Text)
	if summary == "" {
		return false
	}
	if err := e.store.UpsertSummary(ctx, job.UserID, summary); err != nil {
		log.Printf("[extractor] summary upsert failed for user %s: %v", job.UserID, err)
		return false
	}
	return true
}

func (e *Extractor) currentSummary(ctx context.Context, userID string) string {
	all, err := e.store.ListByUser(ctx, userID, e.cfg.MaxFacts+1)
	if err != nil {
		return ""
	}
	for _, f := range all {
		if f.Type == memory.FactUserSummary {
			return f.Content
		}
	}
	return ""
}

type candidate struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Importance int      `json:"importance"`
	Tags       []string `json:"tags"`
	Context    string   `json:"context"`
}

// parseCandidates tolerates prose or code fences around the JSON array.
func parseCandidates(text string) ([]candidate, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in model output")
	}
	var out []candidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func renderTranscript(messages []chat.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
