package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records watchdog measurements.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCompletion records a finished operation and whether it overran
	// the first escalation threshold.
	RecordCompletion(ctx context.Context, class string, duration time.Duration, missed bool)

	// RecordInvalidation records one invalidation action.
	RecordInvalidation(ctx context.Context, action string, err error)
}

type metricsImpl struct {
	totalCount    metric.Int64Counter
	missCount     metric.Int64Counter
	durationHist  metric.Float64Histogram
	invalidations metric.Int64Counter
}

// NewMetrics creates Metrics backed by the given meter. A nil meter yields
// no-op metrics.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	if meter == nil {
		return NopMetrics(), nil
	}

	totalCount, err := meter.Int64Counter(
		"watchdog.op.total",
		metric.WithDescription("Total number of completed watched operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	missCount, err := meter.Int64Counter(
		"watchdog.op.misses",
		metric.WithDescription("Watched operations that exceeded the first escalation threshold"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"watchdog.op.duration_ms",
		metric.WithDescription("Watched operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	invalidations, err := meter.Int64Counter(
		"watchdog.invalidations",
		metric.WithDescription("Cache invalidation actions by tier"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:    totalCount,
		missCount:     missCount,
		durationHist:  durationHist,
		invalidations: invalidations,
	}, nil
}

// RecordCompletion records metrics for a finished operation.
func (m *metricsImpl) RecordCompletion(ctx context.Context, class string, duration time.Duration, missed bool) {
	opt := metric.WithAttributes(attribute.String("watchdog.op.class", class))

	m.totalCount.Add(ctx, 1, opt)
	if missed {
		m.missCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordInvalidation records one invalidation action.
func (m *metricsImpl) RecordInvalidation(ctx context.Context, action string, err error) {
	m.invalidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("watchdog.action", action),
		attribute.Bool("watchdog.failed", err != nil),
	))
}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordCompletion(context.Context, string, time.Duration, bool) {}
func (noopMetrics) RecordInvalidation(context.Context, string, error)              {}
