// Package chatsvc orchestrates a chat turn end to end: admission, memory
// lookup, heuristic analysis, context assembly, prompt building, the model
// call, and persistence of the finished turn.
package chatsvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/cbt"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/intent"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/memcmd"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/tone"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/config"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/memcache"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/prompt"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/ratelimit"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/extractor"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/queue"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/facts"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/session"
)

const (
	rememberedImportance = 8
	dedupPrefixLen       = 24
	maxListedMemories    = 200
	extractionTailTurns  = 12
	persistAttempts      = 3
	interventionMinLevel = 3.5
)

// RateLimitError tells the caller when to try again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// ValidationError carries per-field problems with a request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

// AIClient is the slice of the request queue the service needs.
type AIClient interface {
	Enqueue(ctx context.Context, req queue.Request) (queue.Result, error)
}

// SnapshotSource warms memory snapshots off the request path.
type SnapshotSource interface {
	Warm(userID string, setter func(memory.Snapshot))
}

// FactSink receives finished turns for background fact extraction.
type FactSink interface {
	Submit(job extractor.Job)
}

// Reply is the outcome of one chat turn.
type Reply struct {
	SessionID               string   `json:"sessionId"`
	Response                string   `json:"response"`
	Suggestions             []string `json:"suggestions,omitempty"`
	InterventionSuggestions []string `json:"interventionSuggestions,omitempty"`
	IsFailover              bool     `json:"isFailover"`
	MemoryContext           string   `json:"-"`
}

var suggestionsByMode = map[tone.ResponseMode][]string{
	tone.ModeSupportive:     {"Tell me more about it", "What would feel kind to yourself right now?"},
	tone.ModeCelebratory:    {"What made the difference?", "How do you want to celebrate?"},
	tone.ModeGrounding:      {"Want to try a slow breath together?", "What's one thing you can see around you?"},
	tone.ModeEncouraging:    {"What's the next small step?", "What helped you get this far?"},
	tone.ModeConversational: {"What's on your mind today?", "How has your week been?"},
}

var interventionSuggestions = []string{
	"Try a 2-minute breathing exercise",
	"Ground yourself: name 5 things you can see",
	"Step outside for a short walk",
}

// Service runs the conversation pipeline.
type Service struct {
	cfg       config.ContextConfig
	limiter   *ratelimit.Limiter
	cache     *memcache.Cache
	sessions  session.Store
	facts     facts.Store
	snapshots SnapshotSource
	ai        AIClient // nil means the model is not configured
	sink      FactSink // nil disables extraction
	asm       assembler
}

// New wires the turn pipeline together.
func New(cfg config.ContextConfig, limiter *ratelimit.Limiter, cache *memcache.Cache,
	sessions session.Store, factStore facts.Store, snapshots SnapshotSource,
	ai AIClient, sink FactSink) *Service {
	return &Service{
		cfg:       cfg,
		limiter:   limiter,
		cache:     cache,
		sessions:  sessions,
		facts:     factStore,
		snapshots: snapshots,
		ai:        ai,
		sink:      sink,
		asm:       assembler{cfg: cfg, ai: ai},
	}
}

// CreateSession starts a new active session for the user.
func (s *Service) CreateSession(ctx context.Context, userID string) (*chat.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Fields: map[string]string{"userId": "required"}}
	}

	now := time.Now()
	sess := &chat.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    chat.StatusActive,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession returns a session after checking ownership.
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*chat.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// EndSession marks a session completed.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == chat.StatusCompleted {
		return nil
	}

	return s.persist(ctx, sess, func(cur *chat.Session) {
		now := time.Now()
		cur.Status = chat.StatusCompleted
		cur.EndedAt = &now
	})
}

// SendMessage runs one full turn. onChunk, when non-nil, receives streamed
// response deltas; the returned Reply always carries the complete text.
func (s *Service) SendMessage(ctx context.Context, userID, sessionID, text string, onChunk func(string)) (*Reply, error) {
	message := strings.TrimSpace(text)
	if message == "" {
		return nil, &ValidationError{Fields: map[string]string{"message": "required"}}
	}

	if res := s.limiter.Admit(userID); !res.Allowed {
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	// Side effects outlive the caller; a dropped connection must not lose
	// the turn or skip extraction.
	bg := context.WithoutCancel(ctx)

	if cmd, ok := memcmd.Parse(message); ok {
		return s.handleMemoryCommand(bg, sess, message, cmd)
	}

	snapshot := s.snapshotFor(userID)

	recent := recentUserTexts(sess.Messages, 3)
	turnIntent := intent.Classify(message, recent)
	toneRead := tone.Analyze(message, recent)
	cbtRead := cbt.Detect(message)
	intervene := turnIntent == intent.Distress && toneRead.Intensity >= interventionMinLevel

	assembled := s.asm.assemble(bg, sess.Messages, snapshot, turnIntent)
	built := prompt.Build(prompt.Input{
		Tone:         toneRead,
		Intent:       turnIntent,
		CBT:          cbtRead,
		Intervention: intervene,
		UserContext:  assembled.Snippet,
		Conversation: assembled.Conversation,
		Message:      message,
		Now:          time.Now(),
	})

	result := s.generate(bg, built.System, message, onChunk)

	updated, err := s.appendTurn(bg, sess, message, result.Text)
	if err != nil {
		return nil, err
	}

	if s.sink != nil {
		s.sink.Submit(extractor.Job{
			UserID:    userID,
			Messages:  tailMessages(updated.Messages, extractionTailTurns),
			UserTurns: countUserTurns(updated.Messages),
		})
	}

	reply := &Reply{
		SessionID:     updated.ID,
		Response:      result.Text,
		Suggestions:   suggestionsByMode[toneRead.Mode],
		IsFailover:    result.Failover,
		MemoryContext: assembled.Snippet,
	}
	if intervene {
		reply.InterventionSuggestions = interventionSuggestions
	}
	return reply, nil
}

// generate calls the model through the queue. Every failure path resolves to
// a category fallback; the user always gets a reply.
func (s *Service) generate(ctx context.Context, system, message string, onChunk func(string)) queue.Result {
	if s.ai == nil {
		return queue.Result{Text: queue.FallbackResponse(message), Failover: true}
	}

	res, err := s.ai.Enqueue(ctx, queue.Request{System: system, User: message, OnChunk: onChunk})
	if err != nil {
		log.Printf("[chat] model call not served: %v", err)
		return queue.Result{Text: queue.FallbackResponse(message), Failover: true}
	}
	return res
}

func (s *Service) handleMemoryCommand(ctx context.Context, sess *chat.Session, raw string, cmd memcmd.Command) (*Reply, error) {
	switch cmd.Kind {
	case memcmd.Remember:
		if err := s.rememberFact(ctx, sess.UserID, cmd.Argument); err != nil {
			return nil, err
		}
	case memcmd.Forget:
		if err := s.forgetMatching(ctx, sess.UserID, cmd.Argument); err != nil {
			return nil, err
		}
	case memcmd.ForgetAll:
		if err := s.facts.DeleteAllByUser(ctx, sess.UserID); err != nil {
			return nil, err
		}
	}
	s.cache.Invalidate(sess.UserID)

	ack := memcmd.Acknowledgement(cmd)
	updated, err := s.appendTurn(ctx, sess, raw, ack)
	if err != nil {
		return nil, err
	}
	return &Reply{SessionID: updated.ID, Response: ack}, nil
}

func (s *Service) rememberFact(ctx context.Context, userID, content string) error {
	prefix := dedupPrefix(content)
	existing, err := s.facts.SearchPrefix(ctx, userID, prefix)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return s.facts.Reinforce(ctx, existing[0].ID, rememberedImportance)
	}

	return s.facts.Create(ctx, &memory.Fact{
		UserID:     userID,
		Type:       memory.FactPreference,
		Content:    content,
		Importance: rememberedImportance,
		Tags:       []string{"remembered"},
		Context:    "Saved at the user's explicit request.",
	})
}

func (s *Service) forgetMatching(ctx context.Context, userID, target string) error {
	matches, err := s.facts.SearchPrefix(ctx, userID, dedupPrefix(target))
	if err != nil {
		return err
	}
	for _, f := range matches {
		if err := s.facts.Delete(ctx, userID, f.ID); err != nil && !errors.Is(err, facts.ErrNotFound) {
			return err
		}
	}
	return nil
}

// snapshotFor serves from the cache, otherwise kicks off a background warm
// and lets this turn proceed without personalization.
func (s *Service) snapshotFor(userID string) memory.Snapshot {
	key := memcache.Key(userID, "")
	if snap, ok := s.cache.Get(key); ok {
		return snap
	}
	s.snapshots.Warm(userID, func(snap memory.Snapshot) {
		s.cache.Set(key, snap)
	})
	return memory.Snapshot{UserID: userID}
}

// appendTurn adds the user and assistant messages and saves under optimistic
// locking. On a version conflict it reloads and re-appends, so committed
// messages are never overwritten.
func (s *Service) appendTurn(ctx context.Context, sess *chat.Session, userText, assistantText string) (*chat.Session, error) {
	userMsg := chat.NewMessage(chat.RoleUser, userText)
	assistantMsg := chat.NewMessage(chat.RoleAssistant, assistantText)

	err := s.persist(ctx, sess, func(cur *chat.Session) {
		cur.Messages = append(cur.Messages, userMsg, assistantMsg)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// persist applies mutate to the session and updates it, retrying through
// version conflicts with a fresh copy each time. On success sess points at
// the committed state.
func (s *Service) persist(ctx context.Context, sess *chat.Session, mutate func(*chat.Session)) error {
	cur := sess
	for attempt := 1; ; attempt++ {
		mutate(cur)
		cur.UpdatedAt = time.Now()

		err := s.sessions.Update(ctx, cur)
		if err == nil {
			*sess = *cur
			return nil
		}
		if !errors.Is(err, session.ErrVersionConflict) || attempt >= persistAttempts {
			return err
		}

		reloaded, getErr := s.sessions.Get(ctx, sess.ID)
		if getErr != nil {
			return getErr
		}
		cur = reloaded
	}
}

// ListMemories returns the user's stored facts, strongest first.
func (s *Service) ListMemories(ctx context.Context, userID string) ([]memory.Fact, error) {
	return s.facts.ListByUser(ctx, userID, maxListedMemories)
}

// MemoryUpdate carries the editable fields of a fact. Nil fields are kept.
type MemoryUpdate struct {
	Content    *string
	Importance *int
	Tags       []string
	Context    *string
}

// UpdateMemory validates and applies an edit to one fact.
func (s *Service) UpdateMemory(ctx context.Context, userID, id string, upd MemoryUpdate) (*memory.Fact, error) {
	fields := map[string]string{}
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		fields["content"] = "must not be empty"
	}
	if upd.Importance != nil && (*upd.Importance < 1 || *upd.Importance > 10) {
		fields["importance"] = "must be between 1 and 10"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	fact, err := s.facts.Update(ctx, userID, id, facts.Patch{
		Content:    upd.Content,
		Importance: upd.Importance,
		Tags:       upd.Tags,
		Context:    upd.Context,
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(userID)
	return fact, nil
}

// DeleteMemory removes one fact owned by the user.
func (s *Service) DeleteMemory(ctx context.Context, userID, id string) error {
	if err := s.facts.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}

// InvalidateMemoryCache drops the user's cached snapshots so the next turn
// gathers fresh data. Useful when a collaborator mutates wellness records
// out of band.
func (s *Service) InvalidateMemoryCache(userID string) {
	s.cache.Invalidate(userID)
}

// ForgetAll wipes the user's fact set.
func (s *Service) ForgetAll(ctx context.Context, userID string) error {
	if err := s.facts.DeleteAllByUser(ctx, userID); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}

func dedupPrefix(content string) string {
	prefix := facts.NormalizeKey(content)
	if len(prefix) > dedupPrefixLen {
		prefix = prefix[:dedupPrefixLen]
	}
	return prefix
}

// recentUserTexts returns the last few user turns oldest first, the order the
// classifiers walk when the current message alone is ambiguous.
func recentUserTexts(messages []chat.Message, limit int) []string {
	var out []string
	for i := len(messages) - 1; i >= 0 && len(out) < limit; i-- {
		if messages[i].Role == chat.RoleUser {
			out = append(out, messages[i].Content)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func tailMessages(messages []chat.Message, limit int) []chat.Message {
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

func countUserTurns(messages []chat.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == chat.RoleUser {
			n++
		}
	}
	return n
}
