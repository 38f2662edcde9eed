package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReloadMarkerKey is where the full-reload tier records when it restarted
// the process.
const ReloadMarkerKey = "cachewatch:reload-marker"

// WriteReloadMarker records at as the time of a forced reload.
func WriteReloadMarker(ctx context.Context, kv KVStore, at time.Time) error {
	return kv.Set(ctx, ReloadMarkerKey, []byte(at.UTC().Format(time.RFC3339Nano)))
}

// ConsumeReloadMarker reads and deletes the reload marker. ok is false when
// no marker was present. A marker that cannot be parsed is deleted and
// reported as an error.
func ConsumeReloadMarker(ctx context.Context, kv KVStore) (at time.Time, ok bool, err error) {
	raw, err := kv.Get(ctx, ReloadMarkerKey)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	if derr := kv.Delete(ctx, ReloadMarkerKey); derr != nil {
		return time.Time{}, false, derr
	}

	at, err = time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("storage: malformed reload marker: %w", err)
	}
	return at, true, nil
}
