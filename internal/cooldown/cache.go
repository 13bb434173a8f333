// Package cooldown holds the short-lived per-asset rejection memory. An asset
// whose reasoning failed or whose decision was rejected is skipped for a decay
// window instead of being retried every cycle.
package cooldown

import (
	"sync"
	"time"
)

// Entry records the most recent rejection for one asset
type Entry struct {
	Asset      string    `json:"asset"`
	RejectedAt time.Time `json:"rejected_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Reason     string    `json:"reason"`
}

// Cache is the decision rejection cache. Entries decay after the configured
// window; Expire prunes stale entries once per cycle so the cache never grows
// past the asset universe.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	decayWindow time.Duration
}

// NewCache creates a cache with the given decay window
func NewCache(decayWindow time.Duration) *Cache {
	return &Cache{
		entries:     make(map[string]*Entry),
		decayWindow: decayWindow,
	}
}

// IsCoolingDown reports whether the asset has a live rejection entry
func (c *Cache) IsCoolingDown(asset string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[asset]
	if !ok {
		return false
	}
	return time.Now().Before(entry.ExpiresAt)
}

// MarkRejected records a rejection for the asset. Re-marking inside a live
// window replaces the entry, restarting the decay from now.
func (c *Cache) MarkRejected(asset, reason string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[asset] = &Entry{
		Asset:      asset,
		RejectedAt: now,
		ExpiresAt:  now.Add(c.decayWindow),
		Reason:     reason,
	}
}

// Expire removes entries whose decay window has elapsed as of now
func (c *Cache) Expire(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for asset, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, asset)
		}
	}
}

// Len returns the number of entries, expired or not
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot of all live entries, for status reporting
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	snapshot := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if now.Before(entry.ExpiresAt) {
			snapshot = append(snapshot, *entry)
		}
	}
	return snapshot
}
