// Package observe provides observability primitives for the cache watchdog.
//
// It is a pure instrumentation library: a JSON structured logger, OpenTelemetry
// instruments for operation durations and cache invalidations, and spans for
// escalation chains. No I/O happens beyond exporter setup. The watchdog,
// tier, and health packages accept a Logger and Metrics and default to
// no-op implementations when none is supplied.
package observe
