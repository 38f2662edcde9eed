package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/cachewatch/observe"
	"github.com/jonwraymond/cachewatch/storage"
	"github.com/jonwraymond/cachewatch/tier"
)

// trackedOp is one in-flight operation.
type trackedOp struct {
	id        string
	class     string
	start     time.Time
	timer     clockwork.Timer
	gen       uint64
	escalated tier.Tier // highest tier already run for this operation
	missed    bool      // miss already counted at timeout
}

// Controller times operations and escalates through the invalidation tiers
// when they overrun. Construct one per process and share it.
type Controller struct {
	config    Config
	clock     clockwork.Clock
	logger    observe.Logger
	tracer    observe.Tracer
	telemetry *Telemetry

	tiers  map[tier.Tier]tier.Invalidator
	light  tier.Invalidator
	marker storage.KVStore

	reloaded      atomic.Bool
	restartFailed atomic.Bool

	mu  sync.Mutex
	ops map[string]*trackedOp
	gen uint64
}

// New creates a Controller. It fails fast on an invalid configuration.
// When a marker store is configured, New consumes the reload marker and
// suppresses full reloads for Config.ReloadCooldown after it.
func New(config Config, opts ...Option) (*Controller, error) {
	config = config.withDefaults().clone()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{
		clock:   clockwork.NewRealClock(),
		logger:  observe.NopLogger(),
		tracer:  observe.NewTracer(nil),
		metrics: observe.NopMetrics(),
		tiers:   make(map[tier.Tier]tier.Invalidator),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.collab != nil {
		o.applyCollaborators()
	}

	c := &Controller{
		config:    config,
		clock:     o.clock,
		logger:    o.logger.With(observe.F("component", "watchdog")),
		tracer:    o.tracer,
		telemetry: NewTelemetry(config.Thresholds.First(), o.clock, o.metrics),
		tiers:     o.tiers,
		light:     o.light,
		marker:    o.marker,
		ops:       make(map[string]*trackedOp),
	}
	c.consumeReloadMarker(context.Background())
	return c, nil
}

// Start begins timing operation id of the given class. A tracked id is
// replaced: its timer is stopped and a callback already in flight for it
// becomes a no-op.
func (c *Controller) Start(id, class string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.ops[id]; ok {
		old.timer.Stop()
	}

	c.gen++
	op := &trackedOp{id: id, class: class, start: c.clock.Now(), gen: c.gen}
	gen := op.gen
	op.timer = c.clock.AfterFunc(c.config.Thresholds.First(), func() { c.fire(id, gen) })
	c.ops[id] = op
}

// Complete stops timing operation id and records its duration. Completing an
// unknown or already completed id is a no-op.
func (c *Controller) Complete(id string) {
	c.mu.Lock()
	op, ok := c.ops[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	op.timer.Stop()
	delete(c.ops, id)
	elapsed := c.clock.Since(op.start)
	class, counted := op.class, op.missed
	c.mu.Unlock()

	c.telemetry.recordCompletion(context.Background(), class, elapsed, counted)
}

// Watch runs fn as a tracked operation of class under a generated id.
func (c *Controller) Watch(ctx context.Context, class string, fn func(ctx context.Context) error) error {
	id := uuid.NewString()
	c.Start(id, class)
	defer c.Complete(id)
	return fn(ctx)
}

// Tracked returns the number of operations being timed.
func (c *Controller) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ops)
}

// Stop disarms every tracked operation's timer and forgets them. Escalations
// already running finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, op := range c.ops {
		op.timer.Stop()
		delete(c.ops, id)
	}
}

// Stats returns a diagnostics snapshot.
func (c *Controller) Stats() Stats {
	classes, recent, total := c.telemetry.Snapshot()
	return Stats{
		Classes:         classes,
		Config:          c.config.clone(),
		Recent:          recent,
		Tracked:         c.Tracked(),
		TotalActions:    total,
		ReloadInitiated: c.reloadInitiated(),
		RestartFailed:   c.restartFailed.Load(),
	}
}

// reloadInitiated reports whether tier 4 ran. A reload whose restart failed
// still counts because its wipe already happened.
func (c *Controller) reloadInitiated() bool {
	if c.reloaded.Load() {
		return true
	}
	r, ok := c.tiers[tier.TierReload].(interface{ Initiated() bool })
	return ok && r.Initiated()
}

// Actions returns the full retained action log, oldest first.
func (c *Controller) Actions() []Action {
	return c.telemetry.Actions()
}

// Telemetry returns the controller's stats sink.
func (c *Controller) Telemetry() *Telemetry {
	return c.telemetry
}

// fire runs when an operation's timer expires. Complete wins any race in
// which it takes the lock first; once fire has claimed the generation the
// escalation runs to the end of its chain.
func (c *Controller) fire(id string, gen uint64) {
	c.mu.Lock()
	op, ok := c.ops[id]
	if !ok || op.gen != gen {
		c.mu.Unlock()
		return
	}
	elapsed := c.clock.Since(op.start)
	from := op.escalated
	to := c.config.Thresholds.Highest(elapsed)
	if to > from {
		op.escalated = to
	}
	firstMiss := !op.missed
	op.missed = true
	class := op.class
	c.mu.Unlock()

	if firstMiss {
		c.telemetry.recordTimeout(class)
	}
	if to > from {
		meta := observe.OperationMeta{ID: id, Class: class}
		c.logger.WithOperation(meta).Warn(context.Background(), "operation overran, escalating",
			observe.F("elapsed_ms", elapsed.Milliseconds()),
			observe.F("tier", to.String()),
		)
		c.runTiers(context.Background(), meta, elapsed, from+1, to)
	}

	c.rearm(id, gen)
}

// rearm schedules the operation's next threshold, if it is still tracked
// under the same generation and a higher tier remains.
func (c *Controller) rearm(id string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op, ok := c.ops[id]
	if !ok || op.gen != gen {
		return
	}
	next, ok := c.config.Thresholds.after(op.escalated)
	if !ok {
		return
	}
	delay := max(next.After-c.clock.Since(op.start), time.Millisecond)
	op.timer = c.clock.AfterFunc(delay, func() { c.fire(id, gen) })
}
