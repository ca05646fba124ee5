//go:build unix

package cli

import (
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/relicta-tech/releasekit/internal/ui"
)

// watchControlSignals maps SIGUSR1 to pause and SIGUSR2 to resume until
// the returned stop function is called.
func watchControlSignals(control ui.Control, logger *log.Logger) (stop func()) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, unix.SIGUSR1, unix.SIGUSR2)

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case sig := <-sigs:
				switch sig {
				case unix.SIGUSR1:
					if control.Pause() {
						logger.Info("paused by signal", "signal", "SIGUSR1")
					}
				case unix.SIGUSR2:
					if control.Resume() {
						logger.Info("resumed by signal", "signal", "SIGUSR2")
					}
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
		<-exited
	}
}
