// Package ratelimit provides fixed-window admission control for chat turns.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of an admission attempt. RetryAfter is only
// meaningful when Allowed is false.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

type record struct {
	count   int
	resetAt time.Time
}

// Limiter enforces a per-identity fixed window plus a stricter global window
// shared by all identities. Records live in-process and are swept
// periodically to bound memory.
type Limiter struct {
	mu          sync.Mutex
	records     map[string]*record
	global      record
	window      time.Duration
	perIdentity int
	gWindow     time.Duration
	gLimit      int
	now         func() time.Time
}

// New creates a limiter. A zero or negative limit disables the corresponding
// window.
func New(window time.Duration, perIdentity int, globalWindow time.Duration, globalLimit int) *Limiter {
	return &Limiter{
		records:     make(map[string]*record),
		window:      window,
		perIdentity: perIdentity,
		gWindow:     globalWindow,
		gLimit:      globalLimit,
		now:         time.Now,
	}
}

// Admit decides whether a request from identity may proceed. Admission
// increments both the identity counter and the global counter; a rejection
// increments neither and reports how long the caller should wait.
func (l *Limiter) Admit(identity string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	rec, ok := l.records[identity]
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 0, resetAt: now.Add(l.window)}
		l.records[identity] = rec
	}

	if now.After(l.global.resetAt) {
		l.global = record{count: 0, resetAt: now.Add(l.gWindow)}
	}

	if l.perIdentity > 0 && rec.count >= l.perIdentity {
		return Result{Allowed: false, RetryAfter: rec.resetAt.Sub(now)}
	}
	if l.gLimit > 0 && l.global.count >= l.gLimit {
		return Result{Allowed: false, RetryAfter: l.global.resetAt.Sub(now)}
	}

	rec.count++
	l.global.count++
	return Result{Allowed: true}
}

// Sweep drops expired identity records.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for identity, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, identity)
		}
	}
}

// Run sweeps records on an interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
