package watchdog

import "errors"

// Sentinel errors for watchdog configuration.
var (
	// ErrInvalidThresholds indicates an escalation schedule that is empty,
	// not strictly ascending, or not tiers 1..n in order.
	ErrInvalidThresholds = errors.New("watchdog: invalid thresholds")

	// ErrInvalidConfig indicates a malformed configuration.
	ErrInvalidConfig = errors.New("watchdog: invalid config")
)
