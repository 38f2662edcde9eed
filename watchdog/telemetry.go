package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/cachewatch/observe"
)

const (
	// ActionLogCapacity is the number of actions retained.
	ActionLogCapacity = 50

	// RecentActions is the number of actions included in a Stats snapshot.
	RecentActions = 10
)

// ClassStats aggregates completions for one operation class.
type ClassStats struct {
	// Hits counts operations that completed before the first threshold.
	Hits int64
	// Misses counts operations that reached the first threshold.
	Misses int64
	// LastClear is when an escalation caused by this class last invalidated
	// a tier.
	LastClear time.Time
}

// Action is one recorded invalidation.
type Action struct {
	Name  string
	At    time.Time
	Class string // empty for manual clears and monitor trims
}

// Stats is an immutable diagnostics snapshot.
type Stats struct {
	Classes         map[string]ClassStats
	Config          Config
	Recent          []Action // oldest first
	Tracked         int
	TotalActions    int64
	ReloadInitiated bool
	RestartFailed   bool // the reload wiped storage but the process kept running
}

// Telemetry counts hits and misses per class and keeps a bounded action log.
// It makes no escalation decisions.
type Telemetry struct {
	first   time.Duration
	clock   clockwork.Clock
	metrics observe.Metrics

	mu      sync.Mutex
	classes map[string]*ClassStats
	ring    [ActionLogCapacity]Action
	head    int // index of the oldest entry
	size    int
	total   int64
}

// NewTelemetry creates a sink classifying durations against first.
func NewTelemetry(first time.Duration, clock clockwork.Clock, metrics observe.Metrics) *Telemetry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = observe.NopMetrics()
	}
	return &Telemetry{
		first:   first,
		clock:   clock,
		metrics: metrics,
		classes: make(map[string]*ClassStats),
	}
}

// RecordCompletion counts a hit if d is below the first threshold and a miss
// otherwise.
func (t *Telemetry) RecordCompletion(ctx context.Context, class string, d time.Duration) {
	t.recordCompletion(ctx, class, d, false)
}

// recordCompletion skips the hit/miss count when the operation's miss was
// already recorded at timeout.
func (t *Telemetry) recordCompletion(ctx context.Context, class string, d time.Duration, counted bool) {
	missed := d >= t.first
	if !counted {
		t.mu.Lock()
		s := t.class(class)
		if missed {
			s.Misses++
		} else {
			s.Hits++
		}
		t.mu.Unlock()
	}
	t.metrics.RecordCompletion(ctx, class, d, missed)
}

// recordTimeout counts a miss for an operation whose timer fired.
func (t *Telemetry) recordTimeout(class string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.class(class).Misses++
}

// RecordAction appends name to the action log, evicting the oldest entry at
// capacity. A non-empty class also updates that class's LastClear.
func (t *Telemetry) RecordAction(ctx context.Context, name, class string) {
	now := t.clock.Now()

	t.mu.Lock()
	a := Action{Name: name, At: now, Class: class}
	if t.size < ActionLogCapacity {
		t.ring[(t.head+t.size)%ActionLogCapacity] = a
		t.size++
	} else {
		t.ring[t.head] = a
		t.head = (t.head + 1) % ActionLogCapacity
	}
	t.total++
	if class != "" {
		t.class(class).LastClear = now
	}
	t.mu.Unlock()

	t.metrics.RecordInvalidation(ctx, name, nil)
}

// recordFailure reports a failed invalidation to metrics only.
func (t *Telemetry) recordFailure(ctx context.Context, name string, err error) {
	t.metrics.RecordInvalidation(ctx, name, err)
}

// Actions returns the retained action log, oldest first.
func (t *Telemetry) Actions() []Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLocked(t.size)
}

// Snapshot returns per-class stats, the last RecentActions actions, and the
// number of actions ever recorded.
func (t *Telemetry) Snapshot() (classes map[string]ClassStats, recent []Action, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	classes = make(map[string]ClassStats, len(t.classes))
	for name, s := range t.classes {
		classes[name] = *s
	}
	return classes, t.lastLocked(RecentActions), t.total
}

// Class returns the stats for one class.
func (t *Telemetry) Class(class string) (ClassStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.classes[class]
	if !ok {
		return ClassStats{}, false
	}
	return *s, true
}

func (t *Telemetry) lastLocked(n int) []Action {
	n = min(n, t.size)
	out := make([]Action, n)
	start := t.head + t.size - n
	for i := range n {
		out[i] = t.ring[(start+i)%ActionLogCapacity]
	}
	return out
}

func (t *Telemetry) class(name string) *ClassStats {
	s, ok := t.classes[name]
	if !ok {
		s = &ClassStats{}
		t.classes[name] = s
	}
	return s
}

