package tier

import "context"

// Restarter restarts the running process. On success Restart may never
// return.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RestartFunc adapts a function to the Restarter interface.
type RestartFunc func(ctx context.Context) error

// Restart calls f.
func (f RestartFunc) Restart(ctx context.Context) error { return f(ctx) }

// ExecRestarter re-executes the current binary with the same arguments and
// environment.
type ExecRestarter struct {
	// BeforeExec runs right before the exec, typically to close durable
	// storage so pending writes reach disk. An error aborts the restart.
	BeforeExec func() error
}
