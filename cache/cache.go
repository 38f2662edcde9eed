package cache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Well-known entry tags.
const (
	TagAuth     = "auth"
	TagProfile  = "profile"
	TagCritical = "critical"
)

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Entry is a snapshot of one cached value.
type Entry struct {
	Key       string
	Value     []byte
	Tags      []string
	StoredAt  time.Time
	ExpiresAt time.Time
}

// HasTag reports whether the entry carries tag. Matching is case-insensitive.
func (e Entry) HasTag(tag string) bool {
	return slices.ContainsFunc(e.Tags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

// Predicate selects entries for removal.
type Predicate func(Entry) bool

// HasAnyTag matches entries that carry at least one of tags.
func HasAnyTag(tags ...string) Predicate {
	return func(e Entry) bool {
		for _, t := range tags {
			if e.HasTag(t) {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(e Entry) bool { return !p(e) }
}

// Cache is the minimal key/value contract.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get should never error; it returns (nil, false) on miss.
type Cache interface {
	// Get retrieves a cached value regardless of freshness. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. TTL<=0 uses the policy default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error
}

// TaggedCache is a Cache whose entries can be tagged, freshness-checked, and
// removed in bulk by predicate.
//
// Contract:
// - Bulk removal evaluates the predicate against the entries present at the
//   time of the call; entries written concurrently may or may not be removed.
// - Clear and RemoveMatching are idempotent.
type TaggedCache interface {
	Cache

	// SetTagged stores a value with tags.
	SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error

	// Lookup returns the entry and whether it is still fresh under the
	// current default policy.
	Lookup(ctx context.Context, key string) (entry Entry, fresh bool, ok bool)

	// Clear drops every entry and returns how many were removed.
	Clear(ctx context.Context) int

	// RemoveMatching drops every entry the predicate selects.
	RemoveMatching(ctx context.Context, match Predicate) int

	// SetDefaultPolicy replaces the freshness/TTL policy for future reads and writes.
	SetDefaultPolicy(p Policy)

	// Len returns the number of live entries.
	Len() int
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
