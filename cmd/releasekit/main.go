// Package main is the entry point for the releasekit CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relicta-tech/releasekit/internal/cli"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
	buildversion "github.com/relicta-tech/releasekit/internal/version"
)

// Version information set by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cli.SetVersionInfo(buildversion.Resolve(version), commit, date)
	os.Exit(run(context.Background(), sigChan, cli.ExecuteContext, os.Stderr, os.Exit))
}

// run executes the CLI and returns the process exit code. The first signal
// cancels the context so a publish can settle its in-flight packages; a
// second signal, or the shutdown timeout, exits immediately.
func run(ctx context.Context, sigChan <-chan os.Signal, execute func(context.Context) error, stderr io.Writer, exit func(int)) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	if sigChan != nil {
		go func() {
			var sig os.Signal
			select {
			case sig = <-sigChan:
			case <-done:
				return
			}
			fmt.Fprintf(stderr, "\nReceived signal %v, cancelling publish...\n", sig)
			cancel()

			shutdownTimer := time.NewTimer(shutdownTimeout)
			defer shutdownTimer.Stop()

			select {
			case <-done:
			case <-shutdownTimer.C:
				fmt.Fprintf(stderr, "\nShutdown timeout (%v) exceeded, forcing exit\n", shutdownTimeout)
				exit(1)
			case sig = <-sigChan:
				fmt.Fprintf(stderr, "\nReceived second signal %v, forcing exit\n", sig)
				exit(130)
			}
		}()
	}

	if err := execute(ctx); err != nil {
		// Check if it was a context cancellation (user interrupted) or a
		// publish stopped through its control directory
		if ctx.Err() != nil || rperrors.IsKind(err, rperrors.KindCanceled) {
			fmt.Fprintln(stderr, "Operation canceled")
			return 130
		}
		// Print the error since SilenceErrors is enabled in cobra
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
