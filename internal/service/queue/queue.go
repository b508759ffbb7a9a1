// Package queue serializes calls to the external generative model.
//
// A single consumer drains a bounded FIFO so at most one model call is in
// flight system-wide. The in-flight slot is modeled explicitly as a
// one-permit semaphore so the mutual exclusion survives future refactors of
// the consumer loop.
package queue

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/config"
)

var (
	// ErrQueueFull rejects new work when the FIFO is at capacity.
	ErrQueueFull = errors.New("ai request queue full")
	// ErrTimeout rejects a request whose hard deadline passed, independent
	// of queue state.
	ErrTimeout = errors.New("ai request timed out")
	// ErrClosed rejects work after shutdown.
	ErrClosed = errors.New("ai request queue closed")
)

// Invoker is the blocking/streaming surface of the model client.
type Invoker interface {
	Invoke(ctx context.Context, systemPrompt, userMessage string) (string, error)
	Stream(ctx context.Context, systemPrompt, userMessage string, onChunk func(string)) (string, error)
}

// Request is one unit of model work.
type Request struct {
	System string
	User   string

	// OnChunk, when set, selects the streaming path; chunks are pushed as
	// they arrive. Once an attempt has pushed any chunk, retries run
	// non-streaming so the callback never sees the same text twice; the
	// resolved Result carries the full reply either way.
	OnChunk func(string)
}

// Result is the resolved response.
type Result struct {
	Text     string
	Failover bool
}

type pending struct {
	req      Request
	deadline time.Time
	done     chan Result
}

// Queue is the single-consumer retry executor.
type Queue struct {
	requests chan *pending
	invoker  Invoker
	slot     *semaphore.Weighted
	cfg      config.QueueConfig
	rng      *rand.Rand
}

// New creates the queue and starts its consumer. The consumer stops when ctx
// is cancelled.
func New(ctx context.Context, invoker Invoker, cfg config.QueueConfig) *Queue {
	if cfg.Depth <= 0 {
		cfg.Depth = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}

	q := &Queue{
		requests: make(chan *pending, cfg.Depth),
		invoker:  invoker,
		slot:     semaphore.NewWeighted(1),
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	go q.consume(ctx)
	return q
}

// Enqueue submits a request and blocks until it resolves, its hard timeout
// passes, or the caller's context is cancelled. The underlying model call is
// not cancelled when the caller goes away.
func (q *Queue) Enqueue(ctx context.Context, req Request) (Result, error) {
	p := &pending{
		req:      req,
		deadline: time.Now().Add(q.cfg.RequestTimeout),
		done:     make(chan Result, 1),
	}

	select {
	case q.requests <- p:
	default:
		return Result{}, ErrQueueFull
	}

	timer := time.NewTimer(q.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		return res, nil
	case <-timer.C:
		return Result{}, ErrTimeout
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (q *Queue) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-q.requests:
			if time.Now().After(p.deadline) {
				// Nobody is waiting anymore; skip the model call.
				continue
			}
			q.process(ctx, p)

			if q.cfg.InterDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(q.cfg.InterDelay):
				}
			}
		}
	}
}

func (q *Queue) process(ctx context.Context, p *pending) {
	if err := q.slot.Acquire(ctx, 1); err != nil {
		return
	}
	defer q.slot.Release(1)

	callCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), p.deadline)
	defer cancel()

	text, err := q.invokeWithRetry(callCtx, p.req)
	if err != nil {
		log.Printf("[queue] retries exhausted, serving fallback: %v", err)
		p.done <- Result{Text: FallbackResponse(p.req.User), Failover: true}
		return
	}
	p.done <- Result{Text: text}
}

func (q *Queue) invokeWithRetry(ctx context.Context, req Request) (string, error) {
	var lastErr error
	streamed := false

	for attempt := 0; attempt < q.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := q.retryDelay(lastErr, attempt)
			if delay < 0 {
				break
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		var text string
		var err error
		if req.OnChunk != nil && !streamed {
			// A failed attempt may have pushed partial text already. Fall
			// back to the blocking path for the rest so the client never
			// receives duplicate chunks.
			text, err = q.invoker.Stream(ctx, req.System, req.User, func(chunk string) {
				streamed = true
				req.OnChunk(chunk)
			})
		} else {
			text, err = q.invoker.Invoke(ctx, req.System, req.User)
		}
		if err == nil {
			return text, nil
		}

		lastErr = err
		log.Printf("[queue] model call failed (attempt %d/%d): %v", attempt+1, q.cfg.MaxAttempts, err)
	}

	return "", lastErr
}

// retryDelay picks the wait before the given attempt, or a negative duration
// to stop retrying. Quota-class errors back off exponentially with jitter;
// other transient errors get a single short-delay retry.
func (q *Queue) retryDelay(err error, attempt int) time.Duration {
	if isQuotaError(err) {
		delay := q.cfg.BackoffBase << (attempt - 1)
		if q.cfg.BackoffCap > 0 && delay > q.cfg.BackoffCap {
			delay = q.cfg.BackoffCap
		}
		jitter := time.Duration(q.rng.Int63n(int64(q.cfg.BackoffBase)))
		return delay + jitter
	}

	if attempt > 1 {
		return -1
	}
	return 500 * time.Millisecond
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "quota", "429", "too many requests", "resource exhausted"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
