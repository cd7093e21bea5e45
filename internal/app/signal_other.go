//go:build !unix

package app

import "context"

// HandlePauseSignals does nothing on platforms without SIGUSR1 and SIGUSR2.
func (r *Runner) HandlePauseSignals(context.Context) {}
