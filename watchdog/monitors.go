package watchdog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/cachewatch/health"
)

// RunMonitors runs the memory-pressure monitor and the stall detector until
// ctx is cancelled. Both trim through TrimLight. A nil sampler samples the Go
// runtime against Config.Monitors.MemoryLimit.
func (c *Controller) RunMonitors(ctx context.Context, sampler health.Sampler) error {
	mc := c.config.Monitors
	if mc.Disabled {
		return nil
	}
	if sampler == nil {
		sampler = health.NewMemoryChecker(health.MemoryCheckerConfig{MaxAlloc: mc.MemoryLimit})
	}

	mem, err := health.NewMemoryMonitor(health.MemoryMonitorConfig{
		Interval:  mc.MemoryInterval,
		HighWater: mc.MemoryHighWater,
		Sampler:   sampler,
		Trim:      c.TrimLight,
		Clock:     c.clock,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	longTask, err := health.NewLongTaskMonitor(health.LongTaskConfig{
		WarnThreshold:     mc.LongTaskWarn,
		CriticalThreshold: mc.LongTaskCritical,
		Trim:              c.TrimLight,
		Logger:            c.logger,
	})
	if err != nil {
		return err
	}
	stalls := health.NewStallDetector(longTask, mc.StallInterval, c.clock)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mem.Run(gctx)
		return nil
	})
	g.Go(func() error {
		stalls.Run(gctx)
		return nil
	})
	return g.Wait()
}

// LongTaskMonitor returns a monitor that trims through TrimLight, for hosts
// with their own stall source.
func (c *Controller) LongTaskMonitor() *health.LongTaskMonitor {
	m, _ := health.NewLongTaskMonitor(health.LongTaskConfig{
		WarnThreshold:     c.config.Monitors.LongTaskWarn,
		CriticalThreshold: c.config.Monitors.LongTaskCritical,
		Trim:              c.TrimLight,
		Logger:            c.logger,
	})
	return m
}
