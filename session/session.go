package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/cachewatch/observe"
	"github.com/jonwraymond/cachewatch/storage"
)

// Tokens is the credential pair persisted for a session.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session is a parsed, established session.
type Session struct {
	Tokens    Tokens
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// RefreshFunc exchanges a refresh token for a new credential pair. It should
// wrap ErrInvalidCredentials when the backend rejects the refresh token.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// Config configures a Provider.
type Config struct {
	// CredentialKey is the durable-storage key holding the credential pair.
	// Default: "auth-token"
	CredentialKey string `yaml:"credential_key"`

	// ProtocolFamily tags response-cache entries that belong to the session.
	// Default: "auth-api"
	ProtocolFamily string `yaml:"protocol_family"`

	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string `yaml:"issuer"`

	// SigningKey verifies HMAC-signed access tokens. If nil, tokens are
	// parsed without signature verification; the server remains the
	// authority on validity.
	SigningKey []byte `yaml:"-"`

	// MaxAttempts bounds refresh attempts. Default: 3
	MaxAttempts uint `yaml:"max_attempts"`

	// InitialBackoff is the first retry delay. Default: 200ms
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps a single retry delay. Default: 5s
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Provider owns the current session.
type Provider struct {
	config  Config
	store   storage.KVStore
	refresh RefreshFunc
	clock   clockwork.Clock
	logger  observe.Logger

	sf      singleflight.Group
	mu      sync.RWMutex
	current *Session
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock sets the clock used for expiry checks.
func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the provider's logger.
func WithLogger(l observe.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider creates a session provider persisting credentials in store.
func NewProvider(config Config, store storage.KVStore, refresh RefreshFunc, opts ...Option) *Provider {
	if config.CredentialKey == "" {
		config.CredentialKey = "auth-token"
	}
	if config.ProtocolFamily == "" {
		config.ProtocolFamily = "auth-api"
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 200 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}

	p := &Provider{
		config:  config,
		store:   store,
		refresh: refresh,
		clock:   clockwork.NewRealClock(),
		logger:  observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(observe.F("component", "session"))
	return p
}

// ProtocolFamily returns the response-cache tag of the session's protocol.
func (p *Provider) ProtocolFamily() string {
	return p.config.ProtocolFamily
}

// CredentialKey returns the durable-storage key holding the credentials.
func (p *Provider) CredentialKey() string {
	return p.config.CredentialKey
}

// Current returns the established session, if any.
func (p *Provider) Current() (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.current != nil
}

// Establish parses tokens, persists them, and makes them current.
func (p *Provider) Establish(ctx context.Context, tokens Tokens) (*Session, error) {
	s, err := p.parse(tokens)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("session: encode credentials: %w", err)
	}
	if err := p.store.Set(ctx, p.config.CredentialKey, raw); err != nil {
		return nil, fmt.Errorf("session: persist credentials: %w", err)
	}

	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	return s, nil
}

// Load restores the session from durable storage.
func (p *Provider) Load(ctx context.Context) (*Session, error) {
	raw, err := p.store.Get(ctx, p.config.CredentialKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("session: load credentials: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	s, err := p.parse(tokens)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	return s, nil
}

// Refresh exchanges the current refresh token for a new credential pair.
// Concurrent callers share one round-trip. The stored credentials are only
// replaced once a new pair has been obtained.
func (p *Provider) Refresh(ctx context.Context) error {
	_, err, shared := p.sf.Do("refresh", func() (any, error) {
		return nil, p.doRefresh(ctx)
	})
	if shared {
		p.logger.Debug(ctx, "joined in-flight session refresh")
	}
	return err
}

func (p *Provider) doRefresh(ctx context.Context) error {
	s, ok := p.Current()
	if !ok {
		var err error
		if s, err = p.Load(ctx); err != nil {
			return err
		}
	}
	if s.Tokens.RefreshToken == "" {
		return ErrNoSession
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.InitialBackoff
	b.MaxInterval = p.config.MaxBackoff

	tokens, err := backoff.Retry(ctx, func() (Tokens, error) {
		t, err := p.refresh(ctx, s.Tokens.RefreshToken)
		if errors.Is(err, ErrInvalidCredentials) {
			return Tokens{}, backoff.Permanent(err)
		}
		if err != nil {
			p.logger.Warn(ctx, "session refresh attempt failed", observe.Err(err))
		}
		return t, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.config.MaxAttempts))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if _, err := p.Establish(ctx, tokens); err != nil {
		return err
	}
	p.logger.Info(ctx, "session refreshed")
	return nil
}

func (p *Provider) parse(tokens Tokens) (*Session, error) {
	if tokens.AccessToken == "" {
		return nil, ErrNoSession
	}

	claims := jwt.MapClaims{}
	var err error
	if p.config.SigningKey != nil {
		_, err = jwt.ParseWithClaims(tokens.AccessToken, claims,
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return p.config.SigningKey, nil
			},
			// Expiry is reported through Session.Expired rather than rejected here.
			jwt.WithoutClaimsValidation(),
		)
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(tokens.AccessToken, claims)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if p.config.Issuer != "" {
		if iss, _ := claims.GetIssuer(); iss != p.config.Issuer {
			return nil, fmt.Errorf("%w: issuer %q", ErrInvalidCredentials, iss)
		}
	}

	s := &Session{Tokens: tokens}
	s.Subject, _ = claims.GetSubject()
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		s.ExpiresAt = exp.Time
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		s.IssuedAt = iat.Time
	}
	return s, nil
}

// Expired reports whether the current session's access token has expired.
func (p *Provider) Expired() bool {
	s, ok := p.Current()
	return ok && s.Expired(p.clock.Now())
}
