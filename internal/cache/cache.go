// Package cache provides a process-lifetime key/value cache with per-entry
// time-to-live. Expired entries are dropped lazily on read and by Cleanup;
// there is no size bound and no eviction policy beyond expiry.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default TTLs used by the document and tabular caches.
const (
	DocumentTTL        = 24 * time.Hour
	RecordTTL          = 5 * time.Minute
	DefaultSweepPeriod = time.Hour
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type entry[V any] struct {
	value     V
	timestamp time.Time
	ttl       time.Duration
}

// expired reports whether the entry is no longer valid at now.
// An entry is valid while now - timestamp < ttl.
func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.timestamp) >= e.ttl
}

// Cache maps string keys to values with a time-to-live.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	clock   Clock
}

// New creates a cache whose entries default to ttl. A nil clock uses the
// wall clock.
func New[V any](ttl time.Duration, clock Clock) *Cache[V] {
	if clock == nil {
		clock = SystemClock
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	now := c.clock.Now()
	if e.expired(now) {
		c.mu.Lock()
		// Another writer may have refreshed the key in between.
		if cur, ok := c.entries[key]; ok && cur.expired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, timestamp: c.clock.Now(), ttl: ttl}
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Size returns the number of stored entries, including expired ones not yet
// swept.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Values returns the live values in no particular order.
func (c *Cache[V]) Values() []V {
	now := c.clock.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]V, 0, len(c.entries))
	for _, e := range c.entries {
		if !e.expired(now) {
			out = append(out, e.value)
		}
	}
	return out
}

// RunJanitor calls Cleanup every interval until ctx is cancelled.
func (c *Cache[V]) RunJanitor(ctx context.Context, name string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepPeriod
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Cleanup(); removed > 0 {
				slog.Info("cache sweep", "cache", name, "removed", removed, "size", c.Size())
			}
		}
	}
}
