// Package health provides the passive monitors that trim caches outside the
// watchdog's escalation path, plus the health-check primitives the watchdog
// reports through.
//
// # Monitors
//
// LongTaskMonitor classifies scheduler stalls. A stall above WarnThreshold is
// logged; one above CriticalThreshold runs the Trimmer. StallDetector is the
// stall source: it sleeps a fixed interval and reports how late each wake-up
// was.
//
// MemoryMonitor samples memory usage on a fixed interval and runs the Trimmer
// whenever the usage ratio reaches HighWater. There is no cooldown; the
// lightweight invalidation is idempotent.
//
//	light := tier.NewLightInvalidator(queryCache)
//	trim := func(ctx context.Context, reason string) { _ = light.Invalidate(ctx) }
//
//	mon, _ := health.NewMemoryMonitor(health.MemoryMonitorConfig{
//	    Sampler: health.NewMemoryChecker(health.MemoryCheckerConfig{}),
//	    Trim:    trim,
//	})
//	go mon.Run(ctx)
//
// In practice the trimmer is watchdog.Controller.TrimLight, which also
// records the action.
//
// # Checks
//
// A Checker reports Healthy, Degraded, or Unhealthy. MemoryChecker is both a
// Checker and the default Sampler.
package health
