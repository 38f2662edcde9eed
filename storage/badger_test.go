package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_KV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "theme", []byte("dark")); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	got, err := s.Get(ctx, "theme")
	if err != nil || string(got) != "dark" {
		t.Errorf("Get() = (%q, %v), want dark", got, err)
	}

	if err := s.Delete(ctx, "theme"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if err := s.Delete(ctx, "theme"); err != nil {
		t.Errorf("second Delete() = %v, want nil", err)
	}
	if _, err := s.Get(ctx, "theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete err = %v", err)
	}
}

func TestBadgerStore_KeysExcludesObjectDatabases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"))
	_ = s.Set(ctx, "b", []byte("2"))
	_ = s.Put(ctx, "drafts", "rx-1", []byte("{}"))

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() = %v", err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"a", "b"}) {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}

func TestBadgerStore_ObjectDatabases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "drafts", "rx-1", []byte("one"))
	_ = s.Put(ctx, "drafts", "rx-2", []byte("two"))
	_ = s.Put(ctx, "auth-client", "session", []byte("tok"))

	names, err := s.Databases(ctx)
	if err != nil {
		t.Fatalf("Databases() = %v", err)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"auth-client", "drafts"}) {
		t.Errorf("Databases() = %v", names)
	}

	if err := s.Drop(ctx, "drafts"); err != nil {
		t.Fatalf("Drop() = %v", err)
	}
	if err := s.Drop(ctx, "drafts"); err != nil {
		t.Errorf("second Drop() = %v, want nil", err)
	}
	if _, err := s.Fetch(ctx, "drafts", "rx-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch after Drop err = %v, want ErrNotFound", err)
	}
	if v, err := s.Fetch(ctx, "auth-client", "session"); err != nil || string(v) != "tok" {
		t.Errorf("unrelated database affected: (%q, %v)", v, err)
	}
}

func TestBadgerStore_DropDoesNotBlockWriters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 500 {
		_ = s.Put(ctx, "drafts", fmt.Sprintf("rx-%d", i), []byte("{}"))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Drop(ctx, "drafts"); err != nil {
			errs <- err
		}
	}()
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Set(ctx, fmt.Sprintf("pref-%d", i), []byte("x")); err != nil {
				errs <- err
			}
			if err := s.Delete(ctx, "theme"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("write during Drop: %v", err)
	}
	if dbs, _ := s.Databases(ctx); len(dbs) != 0 {
		t.Errorf("Databases() = %v, want none", dbs)
	}
	if keys, _ := s.Keys(ctx); len(keys) != 100 {
		t.Errorf("len(Keys()) = %d, want 100", len(keys))
	}
}

func TestBadgerStore_InvalidNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Set(\"\") err = %v", err)
	}
	if err := s.Put(ctx, "a/b", "k", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Put(a/b) err = %v", err)
	}
	if err := s.Drop(ctx, ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Drop(\"\") err = %v", err)
	}
}

func TestBadgerStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Keys(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Keys() err = %v, want context.Canceled", err)
	}
	if err := s.Set(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() err = %v, want context.Canceled", err)
	}
}

func TestBadgerStore_ReclaimInMemory(t *testing.T) {
	s := openTestStore(t)
	if err := s.Reclaim(context.Background()); err != nil {
		t.Errorf("Reclaim() in memory = %v, want nil", err)
	}
}

func TestOpen_PathRequired(t *testing.T) {
	if _, err := Open(Config{}); !errors.Is(err, ErrPathRequired) {
		t.Errorf("Open() err = %v, want ErrPathRequired", err)
	}
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir, SyncWrites: true})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	_ = s.Set(ctx, "k", []byte("v"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	s, err = Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen = %v", err)
	}
	defer s.Close()
	if v, err := s.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Errorf("Get after reopen = (%q, %v)", v, err)
	}
}

func TestCriticalMatcher(t *testing.T) {
	m := DefaultCriticalMatcher()

	tests := map[string]bool{
		"auth-token":               true,
		"sb-project-auth-token":    true,
		"session":                  true,
		"user.credentials":         true,
		"AUTH":                     true,
		"theme":                    false,
		"draft-prescriptions":      false,
		"cachewatch:reload-marker": false,
		"authorization-free-note":  true,
		"accessToken":              true,
		"refreshToken":             true,
		"userSession":              true,
		"supabaseAuth":             true,
		"oauth-state":              true,
	}
	for name, want := range tests {
		if got := m.IsCritical(name); got != want {
			t.Errorf("IsCritical(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := NewCriticalMatcher("("); err == nil {
		t.Error("invalid pattern should error")
	}
	custom, err := NewCriticalMatcher("^keep-")
	if err != nil {
		t.Fatalf("NewCriticalMatcher() = %v", err)
	}
	if !custom.IsCritical("keep-me") || custom.IsCritical("auth") {
		t.Error("custom pattern not applied")
	}
}

func TestReloadMarker_RoundTripIsOneShot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := ConsumeReloadMarker(ctx, s); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if err := WriteReloadMarker(ctx, s, at); err != nil {
		t.Fatalf("WriteReloadMarker() = %v", err)
	}

	got, ok, err := ConsumeReloadMarker(ctx, s)
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("ConsumeReloadMarker() = (%v, %v, %v)", got, ok, err)
	}
	if _, ok, _ := ConsumeReloadMarker(ctx, s); ok {
		t.Error("marker should be consumed by the first read")
	}
}

func TestReloadMarker_Malformed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Set(ctx, ReloadMarkerKey, []byte("yesterday"))
	if _, _, err := ConsumeReloadMarker(ctx, s); err == nil {
		t.Error("malformed marker should error")
	}
	if _, err := s.Get(ctx, ReloadMarkerKey); !errors.Is(err, ErrNotFound) {
		t.Error("malformed marker should still be deleted")
	}
}
