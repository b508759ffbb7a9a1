// Package memcache caches user memory snapshots with TTL and capacity bounds.
package memcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
)

type entry struct {
	snapshot  memory.Snapshot
	updatedAt time.Time
}

// Cache holds gathered snapshots so the turn pipeline never blocks on
// aggregation. Keys are "<userID>" or "<userID>:<version>".
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// New creates a cache with the given TTL and capacity.
func New(ttl time.Duration, capacity int) *Cache {
	return &Cache{
		entries:  make(map[string]*entry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Key builds a cache key scoped to a user, optionally qualified by a
// caller-supplied version token.
func Key(userID, version string) string {
	if version == "" {
		return userID
	}
	return userID + ":" + version
}

// Get returns the cached snapshot for key. A stale entry counts as a miss and
// is removed on the spot.
func (c *Cache) Get(key string) (memory.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return memory.Snapshot{}, false
	}
	if c.now().Sub(e.updatedAt) > c.ttl {
		delete(c.entries, key)
		return memory.Snapshot{}, false
	}
	return e.snapshot, true
}

// Set stores a snapshot, evicting the oldest-updated entry when at capacity.
func (c *Cache) Set(key string, snapshot memory.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.capacity > 0 && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	c.entries[key] = &entry{snapshot: snapshot, updatedAt: c.now()}
}

// Invalidate removes every entry scoped to userID.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key == userID || strings.HasPrefix(key, userID+":") {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep proactively purges expired entries.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.updatedAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// Run sweeps expired entries on an interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.updatedAt.Before(oldest) {
			oldestKey = key
			oldest = e.updatedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
