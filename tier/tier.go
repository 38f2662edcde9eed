package tier

import (
	"context"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/cachewatch/cache"
	"github.com/jonwraymond/cachewatch/observe"
)

// Tier identifies an invalidation tier. Higher tiers are more destructive.
type Tier int

const (
	// TierNone means no threshold has been crossed.
	TierNone Tier = iota
	// TierQuery clears the in-memory query cache.
	TierQuery
	// TierSession refreshes the session and drops its response-cache entries.
	TierSession
	// TierStorage clears durable storage except authentication-critical data.
	TierStorage
	// TierReload clears everything and restarts the process.
	TierReload
)

// Action names recorded in the action log.
const (
	ActionQuery            = "tier1:query-cache"
	ActionSession          = "tier2:session"
	ActionStorage          = "tier3:durable-storage"
	ActionReload           = "tier4:reload"
	ActionReloadSuppressed = "tier4:reload-suppressed"
	ActionRestart          = "tier4:restart"
	ActionLight            = "light:query-cache"
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierQuery:
		return "query"
	case TierSession:
		return "session"
	case TierStorage:
		return "storage"
	case TierReload:
		return "reload"
	default:
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
}

// ActionName returns the action-log name for a successful invalidation of t.
func (t Tier) ActionName() string {
	switch t {
	case TierQuery:
		return ActionQuery
	case TierSession:
		return ActionSession
	case TierStorage:
		return ActionStorage
	case TierReload:
		return ActionReload
	default:
		return ""
	}
}

// Valid reports whether t is one of the four invalidation tiers.
func (t Tier) Valid() bool {
	return t >= TierQuery && t <= TierReload
}

// Invalidator invalidates one tier.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Cold start: safe to call with empty caches and no prior state.
// - Errors: sub-step failures are logged and do not fail the call. A non-nil
//   error means nothing could be invalidated at all.
// - Idempotency: calling twice in succession leaves the same state as once.
type Invalidator interface {
	Tier() Tier
	Invalidate(ctx context.Context) error
}

// Func adapts a function to the Invalidator interface.
type Func struct {
	T  Tier
	Fn func(ctx context.Context) error
}

// Tier returns f.T.
func (f Func) Tier() Tier { return f.T }

// Invalidate calls f.Fn.
func (f Func) Invalidate(ctx context.Context) error { return f.Fn(ctx) }

// QueryCache is the in-memory query-result cache.
type QueryCache interface {
	Clear(ctx context.Context) int
	RemoveMatching(ctx context.Context, match cache.Predicate) int
	SetDefaultPolicy(p cache.Policy)
	Policy() cache.Policy
}

// ResponseCache is the network-layer response cache.
type ResponseCache interface {
	Clear(ctx context.Context) int
	RemoveMatching(ctx context.Context, match cache.Predicate) int
}

// SessionProvider refreshes the authenticated session.
type SessionProvider interface {
	Refresh(ctx context.Context) error
	// ProtocolFamily is the response-cache tag of session-bound responses.
	ProtocolFamily() string
}

// Reclaimer is implemented by durable stores that can compact themselves
// after bulk deletion.
type Reclaimer interface {
	Reclaim(ctx context.Context) error
}

type options struct {
	logger observe.Logger
	clock  clockwork.Clock
}

// Option configures an invalidator.
type Option func(*options)

// WithLogger sets the invalidator's logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the clock used for reload markers and suppression.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func applyOptions(component string, opts []Option) options {
	o := options{
		logger: observe.NopLogger(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(observe.F("component", component))
	return o
}
