package tier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/cachewatch/cache"
	"github.com/jonwraymond/cachewatch/observe"
	"github.com/jonwraymond/cachewatch/storage"
)

// StorageInvalidator deletes durable keys and object databases that are not
// authentication-critical, and response-cache entries not tagged critical.
type StorageInvalidator struct {
	kv        storage.KVStore
	objects   storage.ObjectDB
	responses ResponseCache
	critical  *storage.CriticalMatcher
	opts      options
}

// NewStorageInvalidator creates the tier-3 invalidator. A nil matcher uses
// storage.DefaultCriticalMatcher. Any collaborator may be nil.
func NewStorageInvalidator(kv storage.KVStore, objects storage.ObjectDB, responses ResponseCache, critical *storage.CriticalMatcher, opts ...Option) *StorageInvalidator {
	if critical == nil {
		critical = storage.DefaultCriticalMatcher()
	}
	return &StorageInvalidator{
		kv:        kv,
		objects:   objects,
		responses: responses,
		critical:  critical,
		opts:      applyOptions("tier.storage", opts),
	}
}

// Tier returns TierStorage.
func (s *StorageInvalidator) Tier() Tier { return TierStorage }

// Invalidate runs every sub-step and returns an error only if all of them
// failed.
func (s *StorageInvalidator) Invalidate(ctx context.Context) error {
	var errs []error
	attempted, succeeded := 0, 0

	if s.kv != nil {
		attempted++
		n, err := purgeKeys(ctx, s.kv, s.protected)
		if err != nil {
			s.opts.logger.Warn(ctx, "durable key cleanup incomplete", observe.Err(err), observe.F("removed", n))
			errs = append(errs, err)
		}
		if n > 0 || err == nil {
			succeeded++
		}
	}

	if s.objects != nil {
		attempted++
		n, err := dropDatabases(ctx, s.objects, s.critical.IsCritical)
		if err != nil {
			s.opts.logger.Warn(ctx, "object database cleanup incomplete", observe.Err(err), observe.F("dropped", n))
			errs = append(errs, err)
		}
		if n > 0 || err == nil {
			succeeded++
		}
	}

	if s.responses != nil {
		attempted++
		succeeded++
		n := s.responses.RemoveMatching(ctx, cache.Not(cache.HasAnyTag(cache.TagCritical)))
		s.opts.logger.Debug(ctx, "non-critical responses dropped", observe.F("removed", n))
	}

	if r, ok := s.kv.(Reclaimer); ok && succeeded > 0 {
		if err := r.Reclaim(ctx); err != nil {
			s.opts.logger.Debug(ctx, "storage reclaim skipped", observe.Err(err))
		}
	}

	if attempted > 0 && succeeded == 0 {
		return errors.Join(append([]error{ErrNothingInvalidated}, errs...)...)
	}
	s.opts.logger.Info(ctx, "durable storage cleared")
	return nil
}

// protected reports whether a durable key survives tier 3. The reload marker
// belongs to a concurrent tier 4 and is kept with the critical keys.
func (s *StorageInvalidator) protected(key string) bool {
	return key == storage.ReloadMarkerKey || s.critical.IsCritical(key)
}

// purgeKeys deletes every key for which protect returns false. A nil protect
// deletes everything. Keys are matched at scan time; a key deleted
// concurrently by someone else is not an error.
func purgeKeys(ctx context.Context, kv storage.KVStore, protect func(string) bool) (int, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	var errs []error
	removed := 0
	for _, k := range keys {
		if protect != nil && protect(k) {
			continue
		}
		if err := kv.Delete(ctx, k); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %q: %w", k, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// dropDatabases drops every object database for which protect returns false.
func dropDatabases(ctx context.Context, objects storage.ObjectDB, protect func(string) bool) (int, error) {
	names, err := objects.Databases(ctx)
	if err != nil {
		return 0, fmt.Errorf("list databases: %w", err)
	}

	var errs []error
	dropped := 0
	for _, name := range names {
		if protect != nil && protect(name) {
			continue
		}
		if err := objects.Drop(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("drop %q: %w", name, err))
			continue
		}
		dropped++
	}
	return dropped, errors.Join(errs...)
}
