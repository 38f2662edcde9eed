package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryCache is an in-memory TaggedCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	policy  Policy
	clock   clockwork.Clock
}

type cacheEntry struct {
	value     []byte
	tags      []string
	storedAt  time.Time
	expiresAt time.Time
}

func (e *cacheEntry) snapshot(key string) Entry {
	return Entry{
		Key:       key,
		Value:     e.value,
		Tags:      slices.Clone(e.tags),
		StoredAt:  e.storedAt,
		ExpiresAt: e.expiresAt,
	}
}

// Option configures a MemoryCache.
type Option func(*MemoryCache)

// WithClock sets the clock used for TTL and freshness decisions.
func WithClock(c clockwork.Clock) Option {
	return func(m *MemoryCache) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewMemoryCache creates a new in-memory cache with the given policy.
func NewMemoryCache(policy Policy, opts ...Option) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*cacheEntry),
		policy:  policy,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value from the cache. Returns (nil, false) on miss or expiry.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, _, ok := c.Lookup(ctx, key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Lookup returns the entry and its freshness under the current policy.
func (c *MemoryCache) Lookup(_ context.Context, key string) (Entry, bool, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	policy := c.policy
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false, false
	}

	if !now.Before(entry.expiresAt) {
		c.mu.Lock()
		// Only drop the entry we saw; a concurrent Set may have replaced it.
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Entry{}, false, false
	}

	return entry.snapshot(key), policy.IsFresh(entry.storedAt, now), true
}

// Set stores a value without tags.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.SetTagged(ctx, key, value, ttl)
}

// SetTagged stores a value with tags. A resolved TTL of zero stores nothing.
func (c *MemoryCache) SetTagged(_ context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	ttl = c.policy.EffectiveTTL(ttl)
	if ttl <= 0 {
		return nil
	}
	c.entries[key] = &cacheEntry{
		value:     value,
		tags:      slices.Clone(tags),
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Delete removes a value from the cache. Idempotent - no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	clear(c.entries)
	return n
}

// RemoveMatching drops every entry selected by match.
func (c *MemoryCache) RemoveMatching(_ context.Context, match Predicate) int {
	if match == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if match(entry.snapshot(key)) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// SetDefaultPolicy replaces the cache policy.
func (c *MemoryCache) SetDefaultPolicy(p Policy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
}

// Policy returns the current policy.
func (c *MemoryCache) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// Len returns the number of entries that have not expired.
func (c *MemoryCache) Len() int {
	now := c.clock.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

var _ TaggedCache = (*MemoryCache)(nil)
