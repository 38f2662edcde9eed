package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OperationMeta identifies a watched operation for telemetry purposes.
type OperationMeta struct {
	ID    string // Caller-supplied operation id (may be empty for manual clears)
	Class string // Aggregation label, e.g. "patient-list-fetch"
	Tier  string // Tier being run, when the record concerns one tier
}

// SpanName returns the deterministic span name for an escalation.
// Format: watchdog.escalate.<class> or watchdog.escalate
func (m OperationMeta) SpanName() string {
	if m.Class != "" {
		return "watchdog.escalate." + m.Class
	}
	return "watchdog.escalate"
}

// Tracer wraps OpenTelemetry tracing around escalation chains.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan and TierEvent must be best-effort and must not panic.
type Tracer interface {
	// StartEscalation starts a span covering one escalation chain.
	StartEscalation(ctx context.Context, meta OperationMeta, elapsed time.Duration) (context.Context, trace.Span)

	// TierEvent records one tier invocation on the span.
	TierEvent(span trace.Span, tier string, err error)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
// A nil tracer yields a no-op Tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("noop")
	}
	return &tracerImpl{tracer: t}
}

// StartEscalation starts a span with operation metadata as attributes.
func (t *tracerImpl) StartEscalation(ctx context.Context, meta OperationMeta, elapsed time.Duration) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.Int64("watchdog.elapsed_ms", elapsed.Milliseconds()),
	}
	if meta.ID != "" {
		attrs = append(attrs, attribute.String("watchdog.op.id", meta.ID))
	}
	if meta.Class != "" {
		attrs = append(attrs, attribute.String("watchdog.op.class", meta.Class))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// TierEvent adds a "tier" event to the span.
func (t *tracerImpl) TierEvent(span trace.Span, tier string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("watchdog.tier", tier),
		attribute.Bool("watchdog.tier.failed", err != nil),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("watchdog.tier.error", err.Error()))
	}
	span.AddEvent("tier", trace.WithAttributes(attrs...))
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
