package cache

import "time"

// Policy configures entry lifetime and freshness.
//
// An entry lives until its TTL expires; within that lifetime it is fresh for
// StaleTime after it was stored and stale afterwards. Stale entries are still
// returned by Get and Lookup but Loader refetches them.
type Policy struct {
	// DefaultTTL is the TTL to use when none is specified.
	// If zero, Set without an explicit TTL stores nothing.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Override TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// StaleTime is how long an entry is served without refetching.
	// Zero means every entry is stale as soon as it is stored.
	StaleTime time.Duration
}

// DefaultPolicy returns the default policy.
// DefaultTTL: 5 minutes, MaxTTL: 1 hour, StaleTime: 30 seconds
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     time.Hour,
		StaleTime:  30 * time.Second,
	}
}

// AlwaysStalePolicy returns p with StaleTime zeroed so that every cached
// read is treated as stale. Lifetimes are kept so stale-if-error still works.
func AlwaysStalePolicy(p Policy) Policy {
	p.StaleTime = 0
	return p
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

// IsFresh reports whether an entry stored at storedAt is fresh at now.
func (p Policy) IsFresh(storedAt, now time.Time) bool {
	return p.StaleTime > 0 && now.Sub(storedAt) < p.StaleTime
}
