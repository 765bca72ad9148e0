// Package cache memoizes price predictions.
package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process cache with per-entry expiry.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]memoryEntry
	nextSweep time.Time
}

type memoryEntry struct {
	price   float64
	expires time.Time
}

// NewMemoryCache creates a cache whose entries live for ttl; ttl <= 0 means forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

// Get returns the cached price for key.
func (c *MemoryCache) Get(_ context.Context, key string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return 0, false, nil
	}
	return e.price, true, nil
}

// Set stores price under key.
func (c *MemoryCache) Set(_ context.Context, key string, price float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e := memoryEntry{price: price}
	if c.ttl > 0 {
		e.expires = now.Add(c.ttl)
		if !now.Before(c.nextSweep) {
			c.sweep(now)
			c.nextSweep = now.Add(c.ttl)
		}
	}
	c.entries[key] = e
	return nil
}

// sweep drops every expired entry. Set runs it at most once per ttl, so
// keys that are never read again do not accumulate. Callers hold c.mu.
func (c *MemoryCache) sweep(now time.Time) {
	for k, e := range c.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
