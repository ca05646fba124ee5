//go:build !unix

package cli

import (
	"github.com/charmbracelet/log"

	"github.com/relicta-tech/releasekit/internal/ui"
)

// watchControlSignals is a no-op where SIGUSR1 and SIGUSR2 do not exist;
// the control directory still works.
func watchControlSignals(ui.Control, *log.Logger) (stop func()) {
	return func() {}
}
