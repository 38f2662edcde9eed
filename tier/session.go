package tier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/cachewatch/cache"
	"github.com/jonwraymond/cachewatch/observe"
)

// SessionInvalidator refreshes the session and removes the response-cache
// entries tagged with its protocol family. Stored credentials are never
// deleted; a refresh replaces them only once new ones have been obtained.
type SessionInvalidator struct {
	session   SessionProvider
	responses ResponseCache
	opts      options
}

// NewSessionInvalidator creates the tier-2 invalidator. Either collaborator
// may be nil.
func NewSessionInvalidator(s SessionProvider, responses ResponseCache, opts ...Option) *SessionInvalidator {
	return &SessionInvalidator{session: s, responses: responses, opts: applyOptions("tier.session", opts)}
}

// Tier returns TierSession.
func (s *SessionInvalidator) Tier() Tier { return TierSession }

// Invalidate refreshes the session, then drops its cached responses.
func (s *SessionInvalidator) Invalidate(ctx context.Context) error {
	if s.session == nil {
		return nil
	}

	refreshErr := s.session.Refresh(ctx)
	if refreshErr != nil {
		s.opts.logger.Warn(ctx, "session refresh failed", observe.Err(refreshErr))
	}

	if s.responses == nil {
		if refreshErr != nil {
			return errors.Join(ErrNothingInvalidated, fmt.Errorf("refresh: %w", refreshErr))
		}
		return nil
	}

	family := s.session.ProtocolFamily()
	n := s.responses.RemoveMatching(ctx, cache.HasAnyTag(family))
	s.opts.logger.Info(ctx, "session responses dropped",
		observe.F("protocol_family", family),
		observe.F("removed", n),
		observe.F("refreshed", refreshErr == nil),
	)
	return nil
}
