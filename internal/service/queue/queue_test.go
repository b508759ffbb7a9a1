package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/config"
)

type fakeInvoker struct {
	mu       sync.Mutex
	calls    int32
	inFlight int32
	maxSeen  int32
	invoke   func(attempt int) (string, error)
	stream   func(attempt int, onChunk func(string)) (string, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, _, _ string) (string, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, current) {
			break
		}
	}

	attempt := int(atomic.AddInt32(&f.calls, 1))
	time.Sleep(time.Millisecond)
	return f.invoke(attempt)
}

func (f *fakeInvoker) Stream(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
	if f.stream != nil {
		attempt := int(atomic.AddInt32(&f.calls, 1))
		return f.stream(attempt, onChunk)
	}
	text, err := f.Invoke(ctx, system, user)
	if err == nil && onChunk != nil {
		onChunk(text)
	}
	return text, err
}

func testConfig() config.QueueConfig {
	return config.QueueConfig{
		Depth:          8,
		MaxAttempts:    3,
		RequestTimeout: 5 * time.Second,
		InterDelay:     0,
		BackoffBase:    time.Millisecond,
		BackoffCap:     5 * time.Millisecond,
	}
}

func TestEnqueueResolvesText(t *testing.T) {
	inv := &fakeInvoker{invoke: func(int) (string, error) { return "hello there", nil }}
	q := New(context.Background(), inv, testConfig())

	res, err := q.Enqueue(context.Background(), Request{System: "sys", User: "hi"})
	if err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	if res.Failover {
		t.Fatal("successful call must not be flagged failover")
	}
	if res.Text != "hello there" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	inv := &fakeInvoker{invoke: func(attempt int) (string, error) {
		if attempt < 3 {
			return "", errors.New("429 too many requests")
		}
		return "recovered", nil
	}}
	q := New(context.Background(), inv, testConfig())

	res, err := q.Enqueue(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	if res.Text != "recovered" || res.Failover {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := atomic.LoadInt32(&inv.calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestExhaustedRetriesServeFallback(t *testing.T) {
	inv := &fakeInvoker{invoke: func(int) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	q := New(context.Background(), inv, testConfig())

	res, err := q.Enqueue(context.Background(), Request{User: "I feel so overwhelmed"})
	if err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	if !res.Failover {
		t.Fatal("exhausted retries must flag failover")
	}
	if res.Text == "" {
		t.Fatal("fallback text must not be empty")
	}
}

func TestNonQuotaErrorsGetOneRetry(t *testing.T) {
	inv := &fakeInvoker{invoke: func(int) (string, error) {
		return "", errors.New("connection reset")
	}}
	q := New(context.Background(), inv, testConfig())

	res, err := q.Enqueue(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	if !res.Failover {
		t.Fatal("expected failover after retries")
	}
	if got := atomic.LoadInt32(&inv.calls); got != 2 {
		t.Fatalf("non-quota errors should stop after one retry, got %d attempts", got)
	}
}

func TestSingleFlightSerialization(t *testing.T) {
	inv := &fakeInvoker{invoke: func(int) (string, error) { return "ok", nil }}
	q := New(context.Background(), inv, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(context.Background(), Request{User: "hi"})
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&inv.maxSeen); max > 1 {
		t.Fatalf("more than one model call in flight: %d", max)
	}
}

func TestQueueFullRejectsNewWork(t *testing.T) {
	block := make(chan struct{})
	inv := &fakeInvoker{invoke: func(int) (string, error) {
		<-block
		return "ok", nil
	}}
	cfg := testConfig()
	cfg.Depth = 1
	q := New(context.Background(), inv, cfg)
	defer close(block)

	// first request occupies the consumer, second fills the buffer
	go q.Enqueue(context.Background(), Request{User: "a"})
	time.Sleep(50 * time.Millisecond)
	go q.Enqueue(context.Background(), Request{User: "b"})
	time.Sleep(50 * time.Millisecond)

	if _, err := q.Enqueue(context.Background(), Request{User: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	inv := &fakeInvoker{invoke: func(int) (string, error) {
		time.Sleep(time.Second)
		return "late", nil
	}}
	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	q := New(context.Background(), inv, cfg)

	if _, err := q.Enqueue(context.Background(), Request{User: "hi"}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestStreamRetryNeverRepeatsChunks(t *testing.T) {
	inv := &fakeInvoker{
		invoke: func(int) (string, error) { return "full reply", nil },
		stream: func(attempt int, onChunk func(string)) (string, error) {
			onChunk("partial ")
			return "", errors.New("429 too many requests")
		},
	}
	q := New(context.Background(), inv, testConfig())

	var mu sync.Mutex
	var chunks []string
	res, err := q.Enqueue(context.Background(), Request{User: "hi", OnChunk: func(c string) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	if res.Failover {
		t.Fatal("retry succeeded, must not be flagged failover")
	}
	if res.Text != "full reply" {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 1 || chunks[0] != "partial " {
		t.Fatalf("retries must not re-push streamed text, got %v", chunks)
	}
}

func TestStreamRetryCanStreamIfNothingPushed(t *testing.T) {
	inv := &fakeInvoker{
		stream: func(attempt int, onChunk func(string)) (string, error) {
			if attempt == 1 {
				return "", errors.New("429 too many requests")
			}
			onChunk("hello")
			return "hello", nil
		},
	}
	q := New(context.Background(), inv, testConfig())

	var mu sync.Mutex
	var chunks []string
	res, err := q.Enqueue(context.Background(), Request{User: "hi", OnChunk: func(c string) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	if res.Text != "hello" {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("a clean retry should still stream, got %v", chunks)
	}
}

func TestFallbackCategoryStress(t *testing.T) {
	got := FallbackResponse("everything is fine but I'm completely overwhelmed at work")
	if !strings.Contains(strings.ToLower(got), "exhaust") {
		t.Fatalf("expected stress-category fallback, got %q", got)
	}
}

func TestFallbackCategoryAnxiety(t *testing.T) {
	got := FallbackResponse("I've been so anxious I can barely sit still")
	if !strings.Contains(strings.ToLower(got), "weighing on you") {
		t.Fatalf("expected anxiety-category fallback, got %q", got)
	}
}

func TestFallbackGeneric(t *testing.T) {
	got := FallbackResponse("tell me about turtles")
	if got != genericFallback {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}
