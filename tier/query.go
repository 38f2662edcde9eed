package tier

import (
	"context"

	"github.com/jonwraymond/cachewatch/cache"
	"github.com/jonwraymond/cachewatch/observe"
)

// QueryInvalidator drops every query-cache entry and switches the cache to a
// policy under which every read is stale.
type QueryInvalidator struct {
	cache QueryCache
	opts  options
}

// NewQueryInvalidator creates the tier-1 invalidator.
func NewQueryInvalidator(c QueryCache, opts ...Option) *QueryInvalidator {
	return &QueryInvalidator{cache: c, opts: applyOptions("tier.query", opts)}
}

// Tier returns TierQuery.
func (q *QueryInvalidator) Tier() Tier { return TierQuery }

// Invalidate clears the query cache.
func (q *QueryInvalidator) Invalidate(ctx context.Context) error {
	if q.cache == nil {
		return nil
	}
	n := q.cache.Clear(ctx)
	q.cache.SetDefaultPolicy(cache.AlwaysStalePolicy(q.cache.Policy()))
	q.opts.logger.Info(ctx, "query cache cleared", observe.F("removed", n))
	return nil
}

// LightInvalidator removes query-cache entries that carry none of the auth,
// profile, or critical tags. The freshness policy is left alone.
type LightInvalidator struct {
	cache QueryCache
	keep  cache.Predicate
	opts  options
}

// NewLightInvalidator creates the lightweight invalidator used by the health
// monitors.
func NewLightInvalidator(c QueryCache, opts ...Option) *LightInvalidator {
	return &LightInvalidator{
		cache: c,
		keep:  cache.HasAnyTag(cache.TagAuth, cache.TagProfile, cache.TagCritical),
		opts:  applyOptions("tier.light", opts),
	}
}

// Tier returns TierQuery; the light invalidation is a reduced tier 1.
func (l *LightInvalidator) Tier() Tier { return TierQuery }

// Invalidate removes the unprotected entries.
func (l *LightInvalidator) Invalidate(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	n := l.cache.RemoveMatching(ctx, cache.Not(l.keep))
	l.opts.logger.Debug(ctx, "light invalidation", observe.F("removed", n))
	return nil
}
