package health

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

func TestNewMemoryChecker(t *testing.T) {
	checker := NewMemoryChecker(MemoryCheckerConfig{})

	if checker.config.WarningThreshold != 0.8 {
		t.Errorf("WarningThreshold = %v, want 0.8", checker.config.WarningThreshold)
	}
	if checker.config.CriticalThreshold != 0.95 {
		t.Errorf("CriticalThreshold = %v, want 0.95", checker.config.CriticalThreshold)
	}
}

func TestNewMemoryChecker_InvalidThresholds(t *testing.T) {
	checker := NewMemoryChecker(MemoryCheckerConfig{WarningThreshold: 1.5})
	if checker.config.WarningThreshold != 0.8 {
		t.Errorf("Invalid warning should default to 0.8, got %v", checker.config.WarningThreshold)
	}

	checker = NewMemoryChecker(MemoryCheckerConfig{
		WarningThreshold:  0.9,
		CriticalThreshold: 0.7,
	})
	if checker.config.CriticalThreshold <= checker.config.WarningThreshold {
		t.Error("Critical threshold should be adjusted to be > warning threshold")
	}
}

func TestMemoryChecker_Name(t *testing.T) {
	if got := NewMemoryChecker(MemoryCheckerConfig{}).Name(); got != "memory" {
		t.Errorf("Name() = %v, want 'memory'", got)
	}
}

func TestMemoryChecker_Usage(t *testing.T) {
	checker := NewMemoryChecker(MemoryCheckerConfig{MaxAlloc: 1 << 40})

	u, err := checker.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if u.Limit != 1<<40 {
		t.Errorf("Limit = %d, want MaxAlloc", u.Limit)
	}
	if u.Used == 0 {
		t.Error("Used should be non-zero in a running process")
	}
	if r := u.Ratio(); r <= 0 || r >= 1 {
		t.Errorf("Ratio() = %v, want (0,1)", r)
	}
}

func TestMemoryChecker_UsageFallsBackToSys(t *testing.T) {
	checker := NewMemoryChecker(MemoryCheckerConfig{})
	stats := &runtime.MemStats{HeapAlloc: 10, Sys: 100}

	u, err := checker.usage(stats)
	if err != nil {
		t.Fatalf("usage() error = %v", err)
	}
	// The test binary runs without a soft memory limit.
	if u.Limit != 100 || u.Used != 10 {
		t.Errorf("usage() = %+v, want Used=10 Limit=100", u)
	}

	if _, err := checker.usage(&runtime.MemStats{HeapAlloc: 10}); !errors.Is(err, ErrMemoryUnavailable) {
		t.Errorf("usage() without limit error = %v, want ErrMemoryUnavailable", err)
	}
}

func TestMemoryUsage_RatioUnknownLimit(t *testing.T) {
	if r := (MemoryUsage{Used: 5}).Ratio(); r != 0 {
		t.Errorf("Ratio() = %v, want 0", r)
	}
}

func TestMemoryChecker_Check(t *testing.T) {
	result := NewMemoryChecker(MemoryCheckerConfig{MaxAlloc: 1 << 40}).Check(context.Background())

	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy with a 1TiB budget", result.Status)
	}
	for _, key := range []string{"heap_alloc", "limit_bytes", "usage_percent", "goroutines"} {
		if _, ok := result.Details[key]; !ok {
			t.Errorf("Details missing key: %s", key)
		}
	}
}

func TestMemoryChecker_CheckTinyBudget(t *testing.T) {
	result := NewMemoryChecker(MemoryCheckerConfig{MaxAlloc: 1024}).Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy with a 1KiB budget", result.Status)
	}
	if !errors.Is(result.Error, ErrCheckFailed) {
		t.Errorf("Error = %v, want ErrCheckFailed", result.Error)
	}
}

func TestMemoryChecker_CheckContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewMemoryChecker(MemoryCheckerConfig{}).Check(ctx)
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy for cancelled context", result.Status)
	}
	if result.Error != context.Canceled {
		t.Errorf("Error = %v, want context.Canceled", result.Error)
	}
}
