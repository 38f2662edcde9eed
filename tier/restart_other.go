//go:build !unix

package tier

import "context"

// Restart is not supported on this platform.
func (e ExecRestarter) Restart(context.Context) error {
	return ErrRestartUnsupported
}
