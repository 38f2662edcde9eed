package watchdog

import (
	"context"
	"fmt"

	"github.com/jonwraymond/cachewatch/health"
	"github.com/jonwraymond/cachewatch/tier"
)

var _ health.Checker = (*Controller)(nil)

// Name returns the checker name.
func (c *Controller) Name() string {
	return "watchdog"
}

// Check reports unhealthy once a full reload has been initiated, degraded
// while any tracked operation has escalated, and healthy otherwise.
func (c *Controller) Check(ctx context.Context) health.Result {
	if err := ctx.Err(); err != nil {
		return health.Unhealthy("context cancelled", err)
	}

	c.mu.Lock()
	tracked := len(c.ops)
	escalated := 0
	for _, op := range c.ops {
		if op.escalated >= tier.TierQuery {
			escalated++
		}
	}
	c.mu.Unlock()

	details := map[string]any{
		"tracked":   tracked,
		"escalated": escalated,
	}

	switch {
	case c.restartFailed.Load():
		details["restart_failed"] = true
		return health.Unhealthy("full reload ran but restart failed", tier.ErrRestartFailed).WithDetails(details)
	case c.reloadInitiated():
		return health.Unhealthy("full reload initiated", health.ErrCheckFailed).WithDetails(details)
	case escalated > 0:
		return health.Degraded(fmt.Sprintf("%d operation(s) escalating", escalated)).WithDetails(details)
	default:
		return health.Healthy("no stuck operations").WithDetails(details)
	}
}
