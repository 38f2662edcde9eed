package cache

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// FetchFunc produces the value for a query on a cache miss or stale hit.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Tracker is notified around every fetch so a watchdog can time it.
// watchdog.Controller satisfies this interface.
type Tracker interface {
	Start(id, class string)
	Complete(id string)
}

// Loader is a cache-through reader over a TaggedCache.
//
// Fresh hits are served from the cache. Misses and stale hits call the fetch
// function, with concurrent loads of the same key coalesced into one fetch.
// When a refetch fails and a stale entry exists, the stale value is returned
// alongside no error. Errors are never cached.
type Loader struct {
	cache   TaggedCache
	keyer   Keyer
	tracker Tracker
	group   singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTracker times every fetch through t.
func WithTracker(t Tracker) LoaderOption {
	return func(l *Loader) {
		l.tracker = t
	}
}

// NewLoader creates a loader. If keyer is nil, DefaultKeyer is used.
func NewLoader(c TaggedCache, keyer Keyer, opts ...LoaderOption) *Loader {
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	l := &Loader{cache: c, keyer: keyer}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the value for (class, params), fetching it when needed.
// The stored entry carries tags.
func (l *Loader) Load(ctx context.Context, class string, params any, tags []string, fetch FetchFunc) ([]byte, error) {
	key, err := l.keyer.Key(class, params)
	if err != nil {
		// Key generation failed - fetch without caching
		return l.fetch(ctx, class, fetch)
	}

	entry, fresh, ok := l.cache.Lookup(ctx, key)
	if ok && fresh {
		return entry.Value, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		value, err := l.fetch(ctx, class, fetch)
		if err != nil {
			return nil, err
		}
		_ = l.cache.SetTagged(ctx, key, value, 0, tags...)
		return value, nil
	})
	if err != nil {
		if ok {
			return entry.Value, nil
		}
		return nil, err
	}
	return v.([]byte), nil
}

func (l *Loader) fetch(ctx context.Context, class string, fetch FetchFunc) ([]byte, error) {
	if l.tracker == nil {
		return fetch(ctx)
	}
	id := uuid.NewString()
	l.tracker.Start(id, class)
	defer l.tracker.Complete(id)
	return fetch(ctx)
}
