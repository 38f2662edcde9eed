package health

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/cachewatch/observe"
)

// MemoryMonitorConfig configures a MemoryMonitor.
type MemoryMonitorConfig struct {
	// Interval between samples. Default: 30s
	Interval time.Duration

	// HighWater is the usage ratio at which caches are trimmed. Default: 0.85
	HighWater float64

	// Sampler is required.
	Sampler Sampler

	// Trim is required.
	Trim Trimmer

	Clock  clockwork.Clock
	Logger observe.Logger
}

// MemoryMonitor trims caches when sampled memory usage crosses HighWater.
type MemoryMonitor struct {
	config MemoryMonitorConfig
}

// NewMemoryMonitor creates a memory-pressure monitor.
func NewMemoryMonitor(config MemoryMonitorConfig) (*MemoryMonitor, error) {
	if config.Sampler == nil {
		return nil, ErrNoSampler
	}
	if config.Trim == nil {
		return nil, ErrNoTrimmer
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.HighWater <= 0 || config.HighWater > 1 {
		config.HighWater = 0.85
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	config.Logger = config.Logger.With(observe.F("component", "health.memory"))
	return &MemoryMonitor{config: config}, nil
}

// Run samples every Interval until ctx is cancelled.
func (m *MemoryMonitor) Run(ctx context.Context) {
	ticker := m.config.Clock.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Sample(ctx)
		}
	}
}

// Sample takes one sample and trims if usage is at or above HighWater. It
// reports whether a trim ran.
func (m *MemoryMonitor) Sample(ctx context.Context) bool {
	u, err := m.config.Sampler.Usage()
	if err != nil {
		m.config.Logger.Debug(ctx, "memory sample unavailable", observe.Err(err))
		return false
	}

	ratio := u.Ratio()
	if ratio < m.config.HighWater {
		return false
	}
	m.config.Logger.Warn(ctx, "memory pressure, trimming caches",
		observe.F("usage_percent", ratio*100),
		observe.F("used_bytes", u.Used),
		observe.F("limit_bytes", u.Limit),
	)
	m.config.Trim(ctx, "memory-pressure")
	return true
}

// LongTaskConfig configures a LongTaskMonitor.
type LongTaskConfig struct {
	// WarnThreshold is the stall length that is logged. Default: 50ms
	WarnThreshold time.Duration

	// CriticalThreshold is the stall length that trims caches. Default: 200ms
	CriticalThreshold time.Duration

	// Trim is required.
	Trim Trimmer

	Logger observe.Logger
}

// LongTaskMonitor reacts to reported scheduler stalls.
type LongTaskMonitor struct {
	config LongTaskConfig
}

// NewLongTaskMonitor creates a long-task monitor.
func NewLongTaskMonitor(config LongTaskConfig) (*LongTaskMonitor, error) {
	if config.Trim == nil {
		return nil, ErrNoTrimmer
	}
	if config.WarnThreshold <= 0 {
		config.WarnThreshold = 50 * time.Millisecond
	}
	if config.CriticalThreshold <= config.WarnThreshold {
		config.CriticalThreshold = max(200*time.Millisecond, 4*config.WarnThreshold)
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	config.Logger = config.Logger.With(observe.F("component", "health.longtask"))
	return &LongTaskMonitor{config: config}, nil
}

// Report handles one stall of length d. It reports whether a trim ran.
func (m *LongTaskMonitor) Report(ctx context.Context, d time.Duration) bool {
	switch {
	case d > m.config.CriticalThreshold:
		m.config.Logger.Warn(ctx, "long task, trimming caches", observe.F("stall_ms", d.Milliseconds()))
		m.config.Trim(ctx, "long-task")
		return true
	case d > m.config.WarnThreshold:
		m.config.Logger.Warn(ctx, "long task", observe.F("stall_ms", d.Milliseconds()))
	}
	return false
}

// StallDetector measures scheduler stalls by sleeping a fixed interval and
// reporting how late each wake-up was.
type StallDetector struct {
	monitor  *LongTaskMonitor
	interval time.Duration
	clock    clockwork.Clock
}

// NewStallDetector creates a detector reporting to monitor. interval
// defaults to 50ms; a nil clock uses the real clock.
func NewStallDetector(monitor *LongTaskMonitor, interval time.Duration, clock clockwork.Clock) *StallDetector {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StallDetector{monitor: monitor, interval: interval, clock: clock}
}

// Run measures until ctx is cancelled.
func (s *StallDetector) Run(ctx context.Context) {
	for {
		start := s.clock.Now()
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.interval):
		}
		if late := s.clock.Since(start) - s.interval; late > 0 {
			s.monitor.Report(ctx, late)
		}
	}
}
