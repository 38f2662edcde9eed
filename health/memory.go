package health

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
)

// MemoryUsage is one memory sample.
type MemoryUsage struct {
	// Used is the live heap in bytes.
	Used uint64
	// Limit is the budget Used is measured against.
	Limit uint64
}

// Ratio returns Used/Limit, or 0 when Limit is unknown.
func (u MemoryUsage) Ratio() float64 {
	if u.Limit == 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Limit)
}

// Sampler samples memory usage.
type Sampler interface {
	Usage() (MemoryUsage, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func() (MemoryUsage, error)

// Usage calls f.
func (f SamplerFunc) Usage() (MemoryUsage, error) { return f() }

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// WarningThreshold is the usage ratio that triggers degraded status.
	// Value should be between 0 and 1. Default: 0.8 (80%)
	WarningThreshold float64

	// CriticalThreshold is the usage ratio that triggers unhealthy status.
	// Value should be between 0 and 1. Default: 0.95 (95%)
	CriticalThreshold float64

	// MaxAlloc is the heap budget in bytes. If zero, the runtime soft memory
	// limit is used when one is set, otherwise memory obtained from the OS.
	MaxAlloc uint64
}

// MemoryChecker checks memory usage health and samples it for MemoryMonitor.
type MemoryChecker struct {
	config MemoryCheckerConfig
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.1, 0.99)
	}
	return &MemoryChecker{config: config}
}

// Name returns the name of this checker.
func (m *MemoryChecker) Name() string {
	return "memory"
}

// Usage samples the live heap against the configured budget.
func (m *MemoryChecker) Usage() (MemoryUsage, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return m.usage(&stats)
}

func (m *MemoryChecker) usage(stats *runtime.MemStats) (MemoryUsage, error) {
	limit := m.config.MaxAlloc
	if limit == 0 {
		// A negative input only queries the current limit.
		if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < math.MaxInt64 {
			limit = uint64(soft)
		} else {
			limit = stats.Sys
		}
	}
	if limit == 0 {
		return MemoryUsage{Used: stats.HeapAlloc}, ErrMemoryUnavailable
	}
	return MemoryUsage{Used: stats.HeapAlloc, Limit: limit}, nil
}

// Check performs the memory health check.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	u, err := m.usage(&stats)
	if err != nil {
		return Healthy("memory stats unavailable").WithDetails(map[string]any{
			"heap_alloc": stats.HeapAlloc,
			"num_gc":     stats.NumGC,
		})
	}

	ratio := u.Ratio()
	details := map[string]any{
		"heap_alloc":    stats.HeapAlloc,
		"heap_in_use":   stats.HeapInuse,
		"heap_objects":  stats.HeapObjects,
		"limit_bytes":   u.Limit,
		"usage_percent": ratio * 100,
		"num_gc":        stats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	switch {
	case ratio >= m.config.CriticalThreshold:
		return Unhealthy(fmt.Sprintf("memory usage critical: %.1f%%", ratio*100), ErrCheckFailed).WithDetails(details)
	case ratio >= m.config.WarningThreshold:
		return Degraded(fmt.Sprintf("memory usage high: %.1f%%", ratio*100)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("memory usage normal: %.1f%%", ratio*100)).WithDetails(details)
	}
}
