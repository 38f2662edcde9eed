package health

import "errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrNoTrimmer indicates a monitor was built without a trim callback.
	ErrNoTrimmer = errors.New("health: trimmer is required")

	// ErrNoSampler indicates a memory monitor was built without a sampler.
	ErrNoSampler = errors.New("health: sampler is required")

	// ErrMemoryUnavailable indicates no memory limit could be determined.
	ErrMemoryUnavailable = errors.New("health: memory limit unavailable")
)
