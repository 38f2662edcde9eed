package health

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

var errReload = errors.New("full reload initiated")

func TestStatus_String(t *testing.T) {
	for status, want := range map[Status]string{
		StatusHealthy:   "healthy",
		StatusDegraded:  "degraded",
		StatusUnhealthy: "unhealthy",
		Status(7):       "unknown",
	} {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(status), got, want)
		}
	}
}

// The three shapes a watchdog check reports: idle, escalating, reloaded.
func TestResultConstructors(t *testing.T) {
	tests := []struct {
		name    string
		result  Result
		status  Status
		wantErr error
	}{
		{"idle", Healthy("no stuck operations"), StatusHealthy, nil},
		{"escalating", Degraded("2 operation(s) escalating"), StatusDegraded, nil},
		{"reloaded", Unhealthy("full reload initiated", errReload), StatusUnhealthy, errReload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.result
			if r.Status != tt.status {
				t.Errorf("Status = %v, want %v", r.Status, tt.status)
			}
			if !errors.Is(r.Error, tt.wantErr) {
				t.Errorf("Error = %v, want %v", r.Error, tt.wantErr)
			}
			if r.Timestamp.IsZero() {
				t.Error("Timestamp not set")
			}
		})
	}
}

func TestResult_WithDetailsKeepsStatus(t *testing.T) {
	base := Degraded("1 operation(s) escalating")
	r := base.WithDetails(map[string]any{"tracked": 3, "escalated": 1})

	if r.Status != StatusDegraded || r.Message != base.Message {
		t.Errorf("WithDetails changed the result: %+v", r)
	}
	if r.Details["escalated"] != 1 {
		t.Errorf("Details = %v", r.Details)
	}
	if base.Details != nil {
		t.Error("WithDetails mutated the receiver")
	}
}

func TestWorst(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    Status
	}{
		{"none", nil, StatusHealthy},
		{"all healthy", []Result{Healthy("memory ok"), Healthy("no stuck operations")}, StatusHealthy},
		{"memory pressure", []Result{Healthy("no stuck operations"), Degraded("memory at 90%")}, StatusDegraded},
		{"reload wins", []Result{Degraded("escalating"), Unhealthy("reloaded", errReload), Healthy("ok")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Worst(tt.results...); got != tt.want {
				t.Errorf("Worst() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckerFunc(t *testing.T) {
	escalating := 0
	c := NewCheckerFunc("watchdog", func(ctx context.Context) Result {
		if err := ctx.Err(); err != nil {
			return Unhealthy("context cancelled", err)
		}
		if escalating > 0 {
			return Degraded(fmt.Sprintf("%d operation(s) escalating", escalating))
		}
		return Healthy("no stuck operations")
	})

	if c.Name() != "watchdog" {
		t.Errorf("Name() = %q", c.Name())
	}
	if got := c.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("idle Check() = %v", got)
	}

	escalating = 2
	if r := c.Check(context.Background()); r.Status != StatusDegraded || r.Message != "2 operation(s) escalating" {
		t.Errorf("escalating Check() = %v %q", r.Status, r.Message)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := c.Check(ctx); r.Status != StatusUnhealthy || !errors.Is(r.Error, context.Canceled) {
		t.Errorf("cancelled Check() = %v (%v)", r.Status, r.Error)
	}
}
