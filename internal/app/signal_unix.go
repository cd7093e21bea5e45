//go:build unix

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// HandlePauseSignals maps SIGUSR1 to pause and SIGUSR2 to resume until ctx ends.
func (r *Runner) HandlePauseSignals(ctx context.Context) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				paused := sig == syscall.SIGUSR1
				r.logger.Info("Pause signal received", "signal", sig.String(), "paused", paused)
				r.Do(func() { r.connector.SetPaused(paused) })
			}
		}
	}()
}
