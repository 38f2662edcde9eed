package tier

import "errors"

// Sentinel errors for invalidation.
var (
	// ErrReloadInitiated indicates a full reload was already started in this
	// process. Callers treat it as a silent no-op.
	ErrReloadInitiated = errors.New("tier: reload already initiated")

	// ErrReloadSuppressed indicates a full reload was refused because the
	// process itself was started by a recent reload.
	ErrReloadSuppressed = errors.New("tier: reload suppressed after recent reload")

	// ErrRestartFailed indicates the full reload wiped every store but the
	// process could not be restarted.
	ErrRestartFailed = errors.New("tier: restart failed after full reload")

	// ErrRestartUnsupported indicates the platform cannot re-execute the process.
	ErrRestartUnsupported = errors.New("tier: restart not supported on this platform")

	// ErrNothingInvalidated indicates every sub-step of a tier failed.
	ErrNothingInvalidated = errors.New("tier: nothing invalidated")
)
