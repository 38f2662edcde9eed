package watchdog

import (
	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/cachewatch/observe"
	"github.com/jonwraymond/cachewatch/storage"
	"github.com/jonwraymond/cachewatch/tier"
)

// Collaborators are the host application's caches, stores, session, and
// restart primitive. Any field may be nil; the corresponding sub-steps are
// skipped.
type Collaborators struct {
	Query     tier.QueryCache
	Responses tier.ResponseCache
	Session   tier.SessionProvider
	KV        storage.KVStore
	Objects   storage.ObjectDB
	Restarter tier.Restarter

	// Critical identifies authentication-critical storage names.
	// Default: storage.DefaultCriticalMatcher()
	Critical *storage.CriticalMatcher
}

type options struct {
	clock   clockwork.Clock
	logger  observe.Logger
	tracer  observe.Tracer
	metrics observe.Metrics
	tiers   map[tier.Tier]tier.Invalidator
	light   tier.Invalidator
	marker  storage.KVStore
	collab  *Collaborators
}

// Option configures a Controller.
type Option func(*options)

// WithClock sets the clock used for timers and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the escalation tracer.
func WithTracer(t observe.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithObserver takes tracer, meter, and logger from an observe.Observer.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) {
		if obs == nil {
			return
		}
		o.tracer = observe.NewTracer(obs.Tracer())
		if m, err := observe.NewMetrics(obs.Meter()); err == nil {
			o.metrics = m
		}
		o.logger = obs.Logger()
	}
}

// WithInvalidator installs inv for its tier, overriding any invalidator built
// from collaborators.
func WithInvalidator(inv tier.Invalidator) Option {
	return func(o *options) {
		if inv != nil {
			o.tiers[inv.Tier()] = inv
		}
	}
}

// WithLightInvalidator installs the lightweight invalidator used by TrimLight.
func WithLightInvalidator(inv tier.Invalidator) Option {
	return func(o *options) {
		if inv != nil {
			o.light = inv
		}
	}
}

// WithReloadMarker sets the store holding the reload marker. Collaborators
// with a KV store set it implicitly.
func WithReloadMarker(kv storage.KVStore) Option {
	return func(o *options) {
		o.marker = kv
	}
}

// WithCollaborators builds the standard invalidators over c.
func WithCollaborators(c Collaborators) Option {
	return func(o *options) {
		o.collab = &c
	}
}

func (o *options) applyCollaborators() {
	c := o.collab
	topts := []tier.Option{tier.WithLogger(o.logger), tier.WithClock(o.clock)}

	fill := func(inv tier.Invalidator) {
		if _, ok := o.tiers[inv.Tier()]; !ok {
			o.tiers[inv.Tier()] = inv
		}
	}
	fill(tier.NewQueryInvalidator(c.Query, topts...))
	fill(tier.NewSessionInvalidator(c.Session, c.Responses, topts...))
	fill(tier.NewStorageInvalidator(c.KV, c.Objects, c.Responses, c.Critical, topts...))
	fill(tier.NewReloadInvalidator(tier.ReloadTargets{
		Query:     c.Query,
		Responses: c.Responses,
		KV:        c.KV,
		Objects:   c.Objects,
	}, c.Restarter, topts...))

	if o.light == nil {
		o.light = tier.NewLightInvalidator(c.Query, topts...)
	}
	if o.marker == nil {
		o.marker = c.KV
	}
}
