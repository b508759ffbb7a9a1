package chatsvc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/config"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/memcache"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/ratelimit"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/extractor"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/queue"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/facts"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/store/session"
)

type scriptedAI struct {
	mu       sync.Mutex
	response queue.Result
	err      error
	calls    int
}

func (s *scriptedAI) Enqueue(_ context.Context, req queue.Request) (queue.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return queue.Result{}, s.err
	}
	if req.OnChunk != nil {
		req.OnChunk(s.response.Text)
	}
	return s.response, nil
}

func (s *scriptedAI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeSnapshots struct {
	mu       sync.Mutex
	snapshot memory.Snapshot
	warms    int
	deliver  bool
}

func (f *fakeSnapshots) Warm(_ string, setter func(memory.Snapshot)) {
	f.mu.Lock()
	f.warms++
	deliver := f.deliver
	snap := f.snapshot
	f.mu.Unlock()
	if deliver {
		setter(snap)
	}
}

func (f *fakeSnapshots) warmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.warms
}

type recordingSink struct {
	mu   sync.Mutex
	jobs []extractor.Job
}

func (r *recordingSink) Submit(job extractor.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingSink) last() (extractor.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return extractor.Job{}, false
	}
	return r.jobs[len(r.jobs)-1], true
}

// conflictingStore commits a competing write right before the first Update so
// the delegated call loses the optimistic-lock race.
type conflictingStore struct {
	session.Store
	mu       sync.Mutex
	injected bool
}

func (c *conflictingStore) Update(ctx context.Context, s *chat.Session) error {
	c.mu.Lock()
	inject := !c.injected
	c.injected = true
	c.mu.Unlock()

	if inject {
		concurrent, err := c.Store.Get(ctx, s.ID)
		if err != nil {
			return err
		}
		concurrent.Messages = append(concurrent.Messages, chat.NewMessage(chat.RoleAssistant, "a reminder from another device"))
		if err := c.Store.Update(ctx, concurrent); err != nil {
			return err
		}
	}
	return c.Store.Update(ctx, s)
}

type fixture struct {
	svc      *Service
	ai       *scriptedAI
	sink     *recordingSink
	snaps    *fakeSnapshots
	cache    *memcache.Cache
	sessions session.Store
	facts    facts.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sessions, err := session.NewStore(session.StoreTypeMemory)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	factStore, err := facts.NewSQLiteStore(filepath.Join(t.TempDir(), "facts.db"))
	if err != nil {
		t.Fatalf("facts store: %v", err)
	}
	t.Cleanup(func() {
		sessions.Close()
		factStore.Close()
	})

	ai := &scriptedAI{response: queue.Result{Text: "I hear you."}}
	sink := &recordingSink{}
	snaps := &fakeSnapshots{}
	cache := memcache.New(5*time.Minute, 100)
	cfg := config.ContextConfig{
		TokenBudget:    4000,
		MessageWindow:  40,
		SnippetTokens:  300,
		ExcerptCount:   2,
		ExcerptTokens:  150,
		SummarySeedAge: 8,
	}
	limiter := ratelimit.New(time.Minute, 100, time.Minute, 1000)

	return &fixture{
		svc:      New(cfg, limiter, cache, sessions, factStore, snaps, ai, sink),
		ai:       ai,
		sink:     sink,
		snaps:    snaps,
		cache:    cache,
		sessions: sessions,
		facts:    factStore,
	}
}

func (f *fixture) newSession(t *testing.T, userID string) *chat.Session {
	t.Helper()
	sess, err := f.svc.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func TestSendMessagePersistsTurn(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")

	reply, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "had a long day", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Response != "I hear you." || reply.IsFailover {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	stored, err := f.sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(stored.Messages))
	}
	if stored.Messages[0].Role != chat.RoleUser || stored.Messages[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", stored.Messages[0].Role, stored.Messages[1].Role)
	}

	job, ok := f.sink.last()
	if !ok {
		t.Fatal("expected an extraction job")
	}
	if job.UserTurns != 1 || len(job.Messages) != 2 {
		t.Fatalf("unexpected job: turns=%d messages=%d", job.UserTurns, len(job.Messages))
	}
}

func TestSendMessageFallsBackOnQueueError(t *testing.T) {
	f := newFixture(t)
	f.ai.err = queue.ErrQueueFull
	sess := f.newSession(t, "u1")

	reply, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "I'm feeling anxious about work", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.IsFailover {
		t.Fatal("expected failover reply")
	}
	if reply.Response == "" {
		t.Fatal("fallback reply must not be empty")
	}

	stored, _ := f.sessions.Get(context.Background(), sess.ID)
	if len(stored.Messages) != 2 {
		t.Fatalf("fallback turn must still persist, got %d messages", len(stored.Messages))
	}
}

func TestSendMessageRetriesThroughVersionConflict(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")
	f.svc.sessions = &conflictingStore{Store: f.sessions}

	reply, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "had a long day", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Response != "I hear you." {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	stored, err := f.sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(stored.Messages) != 3 {
		t.Fatalf("expected the competing write plus the turn, got %d messages", len(stored.Messages))
	}
	if stored.Messages[0].Content != "a reminder from another device" {
		t.Fatalf("competing write must survive the retry, got %q", stored.Messages[0].Content)
	}
	if stored.Messages[1].Content != "had a long day" || stored.Messages[2].Role != chat.RoleAssistant {
		t.Fatalf("turn must land after the competing write, got %+v", stored.Messages[1:])
	}
}

func TestSendMessageWithoutModelConfigured(t *testing.T) {
	f := newFixture(t)
	f.svc.ai = nil
	f.svc.asm.ai = nil
	sess := f.newSession(t, "u1")

	reply, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "hello there", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.IsFailover || reply.Response == "" {
		t.Fatalf("expected canned reply, got %+v", reply)
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	f := newFixture(t)
	f.svc.limiter = ratelimit.New(time.Minute, 1, time.Minute, 1000)
	sess := f.newSession(t, "u1")

	if _, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "first", nil); err != nil {
		t.Fatalf("first send: %v", err)
	}

	_, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "second", nil)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", rle.RetryAfter)
	}
}

func TestSendMessageValidatesInput(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")

	_, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "   ", nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Fields["message"] == "" {
		t.Fatalf("expected message field error, got %v", ve.Fields)
	}
}

func TestSendMessageRejectsForeignSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "owner")

	_, err := f.svc.SendMessage(context.Background(), "intruder", sess.ID, "hi", nil)
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found for foreign session, got %v", err)
	}
}

func TestRememberCommandBypassesModel(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")

	reply, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "remember that my sister is named Ana", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if f.ai.callCount() != 0 {
		t.Fatalf("memory command must not reach the model, got %d calls", f.ai.callCount())
	}
	if !strings.Contains(reply.Response, "remember") {
		t.Fatalf("expected acknowledgement, got %q", reply.Response)
	}

	stored, err := f.facts.ListByUser(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("list facts: %v", err)
	}
	if len(stored) != 1 || !strings.Contains(stored[0].Content, "sister") {
		t.Fatalf("expected remembered fact, got %+v", stored)
	}

	sessStored, _ := f.sessions.Get(context.Background(), sess.ID)
	if len(sessStored.Messages) != 2 {
		t.Fatalf("command turn must persist, got %d messages", len(sessStored.Messages))
	}
}

func TestForgetEverythingClearsFacts(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")
	seedFact(t, f.facts, "u1", "Enjoys morning runs")
	f.cache.Set(memcache.Key("u1", ""), memory.Snapshot{UserID: "u1"})

	if _, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "forget everything", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	stored, _ := f.facts.ListByUser(context.Background(), "u1", 10)
	if len(stored) != 0 {
		t.Fatalf("expected empty fact set, got %d", len(stored))
	}
	if f.cache.Len() != 0 {
		t.Fatal("expected snapshot cache invalidated")
	}
}

func TestForgetCommandDeletesMatchingFact(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")
	seedFact(t, f.facts, "u1", "Enjoys morning runs")
	seedFact(t, f.facts, "u1", "Works night shifts")

	if _, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "forget that enjoys morning runs", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	stored, _ := f.facts.ListByUser(context.Background(), "u1", 10)
	if len(stored) != 1 || stored[0].Content != "Works night shifts" {
		t.Fatalf("expected only the unrelated fact to survive, got %+v", stored)
	}
}

func TestSnapshotCacheMissTriggersWarm(t *testing.T) {
	f := newFixture(t)
	f.snaps.deliver = true
	f.snaps.snapshot = memory.Snapshot{
		UserID: "u1",
		Facts:  []memory.Fact{{Type: memory.FactGoal, Content: "Wants better sleep", Importance: 5}},
	}
	sess := f.newSession(t, "u1")

	if _, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "hello", nil); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if f.snaps.warmCount() != 1 {
		t.Fatalf("expected one warm on miss, got %d", f.snaps.warmCount())
	}

	reply, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "hello again", nil)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if f.snaps.warmCount() != 1 {
		t.Fatalf("cache hit must not warm again, got %d warms", f.snaps.warmCount())
	}
	if !strings.Contains(reply.MemoryContext, "Wants better sleep") {
		t.Fatalf("expected cached snapshot to feed the snippet, got %q", reply.MemoryContext)
	}
}

func TestInterventionSuggestionsOnIntenseDistress(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")

	reply, err := f.svc.SendMessage(context.Background(), "u1", sess.ID,
		"I'm panicking, completely overwhelmed and anxious, I can't cope", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(reply.InterventionSuggestions) == 0 {
		t.Fatal("expected intervention suggestions for intense distress")
	}

	calm, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "what a lovely quiet afternoon", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(calm.InterventionSuggestions) != 0 {
		t.Fatal("expected no intervention suggestions for a calm turn")
	}
}

func TestStreamingChunksForwarded(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")

	var chunks []string
	_, err := f.svc.SendMessage(context.Background(), "u1", sess.ID, "hello", func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected streamed chunks")
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t, "u1")

	if err := f.svc.EndSession(context.Background(), "u1", sess.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	stored, _ := f.sessions.Get(context.Background(), sess.ID)
	if stored.Status != chat.StatusCompleted || stored.EndedAt == nil {
		t.Fatalf("expected completed session, got %+v", stored)
	}

	// Ending twice is a no-op.
	if err := f.svc.EndSession(context.Background(), "u1", sess.ID); err != nil {
		t.Fatalf("second end: %v", err)
	}
}

func TestUpdateMemoryValidation(t *testing.T) {
	f := newFixture(t)
	seedFact(t, f.facts, "u1", "Enjoys morning runs")

	empty := "  "
	tooHigh := 99
	_, err := f.svc.UpdateMemory(context.Background(), "u1", "whatever", MemoryUpdate{Content: &empty, Importance: &tooHigh})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Fields["content"] == "" || ve.Fields["importance"] == "" {
		t.Fatalf("expected both field errors, got %v", ve.Fields)
	}
}

func TestUpdateMemoryForeignFact(t *testing.T) {
	f := newFixture(t)
	id := seedFact(t, f.facts, "owner", "Enjoys morning runs")

	content := "changed"
	_, err := f.svc.UpdateMemory(context.Background(), "intruder", id, MemoryUpdate{Content: &content})
	if !errors.Is(err, facts.ErrNotFound) {
		t.Fatalf("expected not found for foreign fact, got %v", err)
	}
}

func TestInvalidateMemoryCache(t *testing.T) {
	f := newFixture(t)
	f.cache.Set(memcache.Key("u1", ""), memory.Snapshot{UserID: "u1"})
	f.cache.Set(memcache.Key("u2", ""), memory.Snapshot{UserID: "u2"})

	f.svc.InvalidateMemoryCache("u1")

	if _, ok := f.cache.Get(memcache.Key("u1", "")); ok {
		t.Fatal("expected u1 snapshot dropped")
	}
	if _, ok := f.cache.Get(memcache.Key("u2", "")); !ok {
		t.Fatal("other users' snapshots must survive")
	}
}

func TestUpdateMemoryInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	id := seedFact(t, f.facts, "u1", "Enjoys morning runs")
	f.cache.Set(memcache.Key("u1", ""), memory.Snapshot{UserID: "u1"})

	importance := 9
	updated, err := f.svc.UpdateMemory(context.Background(), "u1", id, MemoryUpdate{Importance: &importance})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Importance != 9 {
		t.Fatalf("expected importance 9, got %d", updated.Importance)
	}
	if f.cache.Len() != 0 {
		t.Fatal("expected cache invalidated after edit")
	}
}

func TestRecentUserTextsOldestFirst(t *testing.T) {
	msgs := []chat.Message{
		chat.NewMessage(chat.RoleUser, "first"),
		chat.NewMessage(chat.RoleAssistant, "reply"),
		chat.NewMessage(chat.RoleUser, "second"),
		chat.NewMessage(chat.RoleUser, "third"),
		chat.NewMessage(chat.RoleUser, "fourth"),
	}

	got := recentUserTexts(msgs, 3)
	want := []string{"second", "third", "fourth"}
	if len(got) != len(want) {
		t.Fatalf("expected %d texts, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected oldest-first order %v, got %v", want, got)
		}
	}
}

func seedFact(t *testing.T, store facts.Store, userID, content string) string {
	t.Helper()
	fact := &memory.Fact{
		UserID:     userID,
		Type:       memory.FactPreference,
		Content:    content,
		Importance: 5,
	}
	if err := store.Create(context.Background(), fact); err != nil {
		t.Fatalf("seed fact: %v", err)
	}
	return fact.ID
}
