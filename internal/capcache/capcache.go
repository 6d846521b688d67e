// Package capcache caches capability verdicts so the content-serving path
// does not hit the restrictions table on every post or comment attempt.
// Entries expire on a short TTL and are dropped eagerly whenever the
// moderation engine changes a user's standing.
package capcache

import (
	"context"
	"sync"
	"time"

	"tremolo/internal/moderation"
)

// TTL is how long a cached verdict remains valid. Short on purpose: a stale
// allow after an expired restriction is harmless, a stale allow after a fresh
// suspension is bounded by the eager invalidation below.
const TTL = 5 * time.Minute

type entry struct {
	verdicts  map[moderation.Capability]bool
	timestamp time.Time
}

func (e *entry) valid(now time.Time) bool {
	return e != nil && now.Sub(e.timestamp) < TTL
}

// Cache is a TTL cache of per-user capability verdicts. It implements
// moderation.CacheInvalidator so the engine drops a user's entry the moment
// an action, reversal, or restriction change lands.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// New creates an empty cache. A nil clock means time.Now.
func New(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]*entry), now: now}
}

var _ moderation.CacheInvalidator = (*Cache)(nil)

// Allowed returns the cached verdict for (user, capability) and whether one
// is present and fresh.
func (c *Cache) Allowed(userID string, capability moderation.Capability) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.entries[userID]
	if !e.valid(c.now()) {
		return false, false
	}
	allowed, ok := e.verdicts[capability]
	return allowed, ok
}

// Store records a verdict, starting a fresh entry when the user has none or
// theirs has expired.
func (c *Cache) Store(userID string, capability moderation.Capability, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e := c.entries[userID]
	if !e.valid(now) {
		e = &entry{verdicts: make(map[moderation.Capability]bool), timestamp: now}
		c.entries[userID] = e
	}
	e.verdicts[capability] = allowed
}

// InvalidateUser drops the user's cached verdicts.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Purge drops every expired entry. Called periodically so long-idle users do
// not pin memory.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	purged := 0
	for userID, e := range c.entries {
		if !e.valid(now) {
			delete(c.entries, userID)
			purged++
		}
	}
	return purged
}
