package tier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jonwraymond/cachewatch/cache"
	"github.com/jonwraymond/cachewatch/observe"
	"github.com/jonwraymond/cachewatch/storage"
)

// ReloadTargets are the collaborators the full reload wipes. Any field may be
// nil.
type ReloadTargets struct {
	Query     QueryCache
	Responses ResponseCache
	KV        storage.KVStore
	Objects   storage.ObjectDB
}

// ReloadInvalidator wipes every cache and durable store, including
// authentication-critical data, records the reload marker, and restarts the
// process. It initiates at most one reload per process.
type ReloadInvalidator struct {
	targets   ReloadTargets
	restarter Restarter
	opts      options

	initiated atomic.Bool

	mu            sync.Mutex
	suppressUntil time.Time
}

// NewReloadInvalidator creates the tier-4 invalidator.
func NewReloadInvalidator(targets ReloadTargets, restarter Restarter, opts ...Option) *ReloadInvalidator {
	return &ReloadInvalidator{
		targets:   targets,
		restarter: restarter,
		opts:      applyOptions("tier.reload", opts),
	}
}

// Tier returns TierReload.
func (r *ReloadInvalidator) Tier() Tier { return TierReload }

// SuppressUntil refuses reloads before t.
func (r *ReloadInvalidator) SuppressUntil(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suppressUntil = t
}

// SuppressedUntil returns the end of the suppression window, if any.
func (r *ReloadInvalidator) SuppressedUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suppressUntil
}

// Initiated reports whether a reload has been started.
func (r *ReloadInvalidator) Initiated() bool {
	return r.initiated.Load()
}

// Invalidate performs the full reload. It returns ErrReloadSuppressed inside
// the suppression window and ErrReloadInitiated for every call after the
// first. A restart failure is returned wrapped in ErrRestartFailed; the wipe
// has happened by then and the reload is not retried.
func (r *ReloadInvalidator) Invalidate(ctx context.Context) error {
	now := r.opts.clock.Now()
	if until := r.SuppressedUntil(); now.Before(until) {
		r.opts.logger.Warn(ctx, "reload suppressed after recent reload",
			observe.F("suppressed_until", until.Format(time.RFC3339)))
		return ErrReloadSuppressed
	}

	// Claimed before any blocking work so concurrent escalations cannot
	// both pass.
	if !r.initiated.CompareAndSwap(false, true) {
		return ErrReloadInitiated
	}

	r.opts.logger.Warn(ctx, "initiating full reload")
	r.wipe(ctx)

	if r.targets.KV != nil {
		if err := r.writeMarker(ctx, now); err != nil {
			r.opts.logger.Error(ctx, "failed to write reload marker", observe.Err(err))
		}
	}

	if r.restarter == nil {
		r.opts.logger.Warn(ctx, "no restarter configured; caches wiped without restart")
		return nil
	}
	if err := r.restarter.Restart(ctx); err != nil {
		r.opts.logger.Error(ctx, "restart failed", observe.Err(err))
		return fmt.Errorf("%w: %w", ErrRestartFailed, err)
	}
	return nil
}

// markerAttempts bounds writeMarker. The marker is what stops a restart
// loop, so a store that is briefly busy gets a few more chances.
const markerAttempts = 5

func (r *ReloadInvalidator) writeMarker(ctx context.Context, at time.Time) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := storage.WriteReloadMarker(ctx, r.targets.KV, at)
		if err != nil {
			r.opts.logger.Debug(ctx, "reload marker write failed",
				observe.Err(err), observe.F("attempt", attempt))
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(markerAttempts))
	return err
}

func (r *ReloadInvalidator) wipe(ctx context.Context) {
	t := r.targets
	if t.Query != nil {
		t.Query.Clear(ctx)
		t.Query.SetDefaultPolicy(cache.AlwaysStalePolicy(t.Query.Policy()))
	}
	if t.Responses != nil {
		t.Responses.Clear(ctx)
	}

	var errs []error
	if t.KV != nil {
		if _, err := purgeKeys(ctx, t.KV, nil); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Objects != nil {
		if _, err := dropDatabases(ctx, t.Objects, nil); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.opts.logger.Warn(ctx, "durable storage wipe incomplete", observe.Err(err))
	}
}
