package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/cachewatch/observe"
	"github.com/jonwraymond/cachewatch/storage"
	"github.com/jonwraymond/cachewatch/tier"
)

// Level selects how much ClearCache invalidates.
type Level string

const (
	// LevelLight runs tier 1.
	LevelLight Level = "light"
	// LevelMedium runs tiers 1 and 2.
	LevelMedium Level = "medium"
	// LevelFull runs tiers 1 to 3. A full reload is never manual.
	LevelFull Level = "full"
)

func (l Level) highest() tier.Tier {
	switch l {
	case LevelLight:
		return tier.TierQuery
	case LevelMedium:
		return tier.TierSession
	case LevelFull:
		return tier.TierStorage
	default:
		return tier.TierNone
	}
}

// Escalate runs every tier from 1 up to the highest one elapsed has reached,
// in order, one at a time. A failing or panicking tier is logged and the
// next tier still runs. Tiers run under a context detached from ctx's
// cancellation so the chain always completes.
func (c *Controller) Escalate(ctx context.Context, elapsed time.Duration) {
	to := c.config.Thresholds.Highest(elapsed)
	if to == tier.TierNone {
		return
	}
	c.runTiers(ctx, observe.OperationMeta{}, elapsed, tier.TierQuery, to)
}

// ClearCache manually runs the tiers for level. Unknown levels are logged and
// ignored.
func (c *Controller) ClearCache(ctx context.Context, level Level) {
	to := level.highest()
	if to == tier.TierNone {
		c.logger.Warn(ctx, "unknown cache clear level", observe.F("level", string(level)))
		return
	}
	c.logger.Info(ctx, "manual cache clear", observe.F("level", string(level)))
	c.runTiers(ctx, observe.OperationMeta{Class: "manual"}, 0, tier.TierQuery, to)
}

// TrimLight runs the lightweight invalidation. It is the health monitors'
// Trimmer.
func (c *Controller) TrimLight(ctx context.Context, reason string) {
	if c.light == nil {
		return
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.TierTimeout)
	defer cancel()

	if err := guard(tctx, c.light.Invalidate); err != nil {
		c.logger.Error(ctx, "light invalidation failed", observe.F("reason", reason), observe.Err(err))
		c.telemetry.recordFailure(ctx, tier.ActionLight, err)
		return
	}
	c.logger.Info(ctx, "light invalidation", observe.F("reason", reason))
	c.telemetry.RecordAction(ctx, tier.ActionLight, "")
}

// runTiers invokes tiers from..to sequentially under one span.
func (c *Controller) runTiers(ctx context.Context, meta observe.OperationMeta, elapsed time.Duration, from, to tier.Tier) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.tracer.StartEscalation(ctx, meta, elapsed)

	var errs []error
	for t := from; t <= to; t++ {
		err := c.runTier(ctx, meta, t)
		c.tracer.TierEvent(span, t.String(), err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	c.tracer.EndSpan(span, errors.Join(errs...))
}

// runTier invokes one tier and records its action. The returned error is
// for tracing only.
func (c *Controller) runTier(ctx context.Context, meta observe.OperationMeta, t tier.Tier) error {
	inv, ok := c.tiers[t]
	if !ok {
		c.logger.Debug(ctx, "no invalidator for tier", observe.F("tier", t.String()))
		return nil
	}

	meta.Tier = t.String()
	log := c.logger.WithOperation(meta)
	// Escalations name the class that caused them; manual clears do not.
	class := meta.Class
	if meta.ID == "" {
		class = ""
	}

	tctx, cancel := context.WithTimeout(ctx, c.config.TierTimeout)
	defer cancel()
	err := guard(tctx, inv.Invalidate)

	switch {
	case errors.Is(err, tier.ErrReloadInitiated):
		log.Debug(ctx, "reload already initiated")
		return nil
	case errors.Is(err, tier.ErrReloadSuppressed):
		c.telemetry.RecordAction(ctx, tier.ActionReloadSuppressed, class)
		return nil
	case errors.Is(err, tier.ErrRestartFailed):
		// The wipe ran, so the reload is still recorded below.
		log.Error(ctx, "restart after full reload failed", observe.Err(err))
		c.restartFailed.Store(true)
		c.telemetry.recordFailure(ctx, tier.ActionRestart, err)
	case err != nil:
		log.Error(ctx, "tier invalidation failed", observe.Err(err))
		c.telemetry.recordFailure(ctx, t.ActionName(), err)
		return err
	}

	if t == tier.TierReload {
		c.reloaded.Store(true)
	}
	log.Info(ctx, "tier invalidated")
	c.telemetry.RecordAction(ctx, t.ActionName(), class)
	return err
}

// guard calls fn, converting a panic into an error.
func guard(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// consumeReloadMarker reads and deletes the reload marker. A marker younger
// than ReloadCooldown suppresses full reloads until it is that old.
func (c *Controller) consumeReloadMarker(ctx context.Context) {
	if c.marker == nil {
		return
	}
	at, ok, err := storage.ConsumeReloadMarker(ctx, c.marker)
	if err != nil {
		c.logger.Warn(ctx, "could not read reload marker", observe.Err(err))
		return
	}
	if !ok {
		return
	}

	until := at.Add(c.config.ReloadCooldown)
	if !c.clock.Now().Before(until) {
		return
	}
	s, ok := c.tiers[tier.TierReload].(interface{ SuppressUntil(time.Time) })
	if !ok {
		return
	}
	s.SuppressUntil(until)
	c.logger.Warn(ctx, "started from a forced reload; full reloads suppressed",
		observe.F("reloaded_at", at.Format(time.RFC3339)),
		observe.F("suppressed_until", until.Format(time.RFC3339)),
	)
}
