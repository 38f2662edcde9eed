package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/cachewatch/storage"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iss": "cachewatch-test",
		"iat": exp.Add(-time.Hour).Unix(),
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString(testKey)
	if err != nil {
		t.Fatalf("SignedString() = %v", err)
	}
	return s
}

func newTestProvider(t *testing.T, refresh RefreshFunc, opts ...Option) (*Provider, storage.KVStore) {
	t.Helper()
	s, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	p := NewProvider(Config{
		SigningKey:     testKey,
		Issuer:         "cachewatch-test",
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, s, refresh, opts...)
	return p, s
}

func TestProvider_Defaults(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	if p.CredentialKey() != "auth-token" {
		t.Errorf("CredentialKey() = %q", p.CredentialKey())
	}
	if p.ProtocolFamily() != "auth-api" {
		t.Errorf("ProtocolFamily() = %q", p.ProtocolFamily())
	}
	if _, ok := p.Current(); ok {
		t.Error("new provider should have no session")
	}
}

func TestProvider_EstablishPersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	p, store := newTestProvider(t, nil)

	s, err := p.Establish(ctx, Tokens{AccessToken: signToken(t, "user-1", exp), RefreshToken: "r1"})
	if err != nil {
		t.Fatalf("Establish() = %v", err)
	}
	if s.Subject != "user-1" || !s.ExpiresAt.Equal(exp) {
		t.Errorf("session = %+v", s)
	}

	// A second provider over the same store sees the persisted pair.
	p2 := NewProvider(Config{SigningKey: testKey}, store, nil)
	loaded, err := p2.Load(ctx)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if loaded.Tokens.RefreshToken != "r1" || loaded.Subject != "user-1" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestProvider_LoadMissing(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	if _, err := p.Load(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Load() err = %v, want ErrNoSession", err)
	}
}

func TestProvider_RejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, nil)

	if _, err := p.Establish(ctx, Tokens{AccessToken: "not-a-jwt"}); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("garbage token err = %v, want ErrTokenMalformed", err)
	}

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "iss": "cachewatch-test"})
	forged, _ := other.SignedString([]byte("wrong-key"))
	if _, err := p.Establish(ctx, Tokens{AccessToken: forged}); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("forged token err = %v, want ErrTokenMalformed", err)
	}

	wrongIss := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "iss": "elsewhere"})
	tok, _ := wrongIss.SignedString(testKey)
	if _, err := p.Establish(ctx, Tokens{AccessToken: tok}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong issuer err = %v, want ErrInvalidCredentials", err)
	}
}

func TestProvider_ExpiredTokenIsLoadedButReported(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	p, _ := newTestProvider(t, nil, WithClock(clock))

	exp := clock.Now().Add(time.Minute)
	if _, err := p.Establish(ctx, Tokens{AccessToken: signToken(t, "u", exp)}); err != nil {
		t.Fatalf("Establish() = %v", err)
	}
	if p.Expired() {
		t.Error("token should not be expired yet")
	}
	clock.Advance(2 * time.Minute)
	if !p.Expired() {
		t.Error("token should be expired after advancing past exp")
	}
}

func TestProvider_RefreshReplacesCredentials(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	var gotRefresh string
	p, store := newTestProvider(t, nil)
	p.refresh = func(_ context.Context, rt string) (Tokens, error) {
		gotRefresh = rt
		return Tokens{AccessToken: signToken(t, "user-2", exp), RefreshToken: "r2"}, nil
	}

	if _, err := p.Establish(ctx, Tokens{AccessToken: signToken(t, "user-1", exp), RefreshToken: "r1"}); err != nil {
		t.Fatalf("Establish() = %v", err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	if gotRefresh != "r1" {
		t.Errorf("refresh token sent = %q, want r1", gotRefresh)
	}
	s, _ := p.Current()
	if s.Subject != "user-2" || s.Tokens.RefreshToken != "r2" {
		t.Errorf("current = %+v", s)
	}

	raw, err := store.Get(ctx, "auth-token")
	if err != nil || len(raw) == 0 {
		t.Fatalf("stored credentials = (%q, %v)", raw, err)
	}
}

func TestProvider_RefreshLoadsFromStore(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	p, store := newTestProvider(t, nil)
	if _, err := p.Establish(ctx, Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}

	p2 := NewProvider(Config{SigningKey: testKey}, store, func(_ context.Context, rt string) (Tokens, error) {
		if rt != "r1" {
			return Tokens{}, fmt.Errorf("unexpected refresh token %q", rt)
		}
		return Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r2"}, nil
	})
	if err := p2.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() on cold provider = %v", err)
	}
}

func TestProvider_RefreshWithoutSession(t *testing.T) {
	p, _ := newTestProvider(t, func(context.Context, string) (Tokens, error) {
		t.Fatal("refresh should not be called")
		return Tokens{}, nil
	})
	if err := p.Refresh(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Refresh() err = %v, want ErrNoSession", err)
	}
}

func TestProvider_RefreshRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	var calls atomic.Int32
	p, _ := newTestProvider(t, nil)
	p.refresh = func(context.Context, string) (Tokens, error) {
		if calls.Add(1) < 3 {
			return Tokens{}, errors.New("connection reset")
		}
		return Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r2"}, nil
	}
	_, _ = p.Establish(ctx, Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r1"})

	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestProvider_RefreshExhausted(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	var calls atomic.Int32
	p, _ := newTestProvider(t, func(context.Context, string) (Tokens, error) {
		calls.Add(1)
		return Tokens{}, errors.New("unavailable")
	})
	_, _ = p.Establish(ctx, Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r1"})

	err := p.Refresh(ctx)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("Refresh() err = %v, want ErrRefreshFailed", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	s, _ := p.Current()
	if s.Tokens.RefreshToken != "r1" {
		t.Error("failed refresh must keep the previous credentials")
	}
}

func TestProvider_RefreshInvalidCredentialsNotRetried(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	var calls atomic.Int32
	p, _ := newTestProvider(t, func(context.Context, string) (Tokens, error) {
		calls.Add(1)
		return Tokens{}, fmt.Errorf("401: %w", ErrInvalidCredentials)
	})
	_, _ = p.Establish(ctx, Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r1"})

	if err := p.Refresh(ctx); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Refresh() err = %v, want ErrInvalidCredentials", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestProvider_RefreshCoalesced(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	var calls atomic.Int32
	release := make(chan struct{})
	p, _ := newTestProvider(t, nil)
	p.refresh = func(context.Context, string) (Tokens, error) {
		calls.Add(1)
		<-release
		return Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r2"}, nil
	}
	_, _ = p.Establish(ctx, Tokens{AccessToken: signToken(t, "u", exp), RefreshToken: "r1"})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Refresh(ctx)
		}()
	}
	// Let the goroutines pile onto the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}
