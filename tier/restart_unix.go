//go:build unix

package tier

import (
	"context"
	"fmt"
	"os"
	"syscall"
)

// Restart replaces the process image. It only returns on failure.
func (e ExecRestarter) Restart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if e.BeforeExec != nil {
		if err := e.BeforeExec(); err != nil {
			return fmt.Errorf("before exec: %w", err)
		}
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}
