package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	"github.com/relicta-tech/releasekit/internal/application/versioning"
	"github.com/relicta-tech/releasekit/internal/config"
	"github.com/relicta-tech/releasekit/internal/container"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
	"github.com/relicta-tech/releasekit/internal/observability"
	"github.com/relicta-tech/releasekit/internal/ui"
)

// Reasons recorded on packages left out by selection.
const (
	reasonExcluded    = "excluded"
	reasonNotSelected = "not selected"
)

var (
	publishOnly          []string
	publishDryRun        bool
	publishSince         string
	publishConcurrency   int
	publishFailOnBlocked bool
	publishNoTUI         bool
	publishJSON          bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish released packages in dependency order",
	Long: `Compute version bumps and publish every bumped package, level by level.

Each package runs pin, build, publish, poll and verify stages. Transient
failures are retried with exponential backoff. A package whose dependency
failed is blocked.

Control a running publish with the progress view keys, by creating PAUSE or
CANCEL in the control directory, or with SIGUSR1 (pause) and SIGUSR2 (resume).`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringSliceVar(&publishOnly, "only", nil, "publish only these packages")
	publishCmd.Flags().BoolVar(&publishDryRun, "dry-run", false, "log the commands without running them")
	publishCmd.Flags().StringVar(&publishSince, "since", "", "history cutoff tag or commit for every package")
	publishCmd.Flags().IntVar(&publishConcurrency, "concurrency", 0, "packages published at once within a level")
	publishCmd.Flags().BoolVar(&publishFailOnBlocked, "fail-on-blocked", false, "fail the run when packages are blocked")
	publishCmd.Flags().BoolVar(&publishNoTUI, "no-tui", false, "log progress instead of the interactive view")
	publishCmd.Flags().BoolVar(&publishJSON, "json", false, "print the reports as JSON")
}

// plannedWorkspace is a workspace with its bump results, ready to publish.
type plannedWorkspace struct {
	*container.Workspace
	Results []versioning.BumpResult
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainer()
	if err != nil {
		return err
	}
	labels, err := selectedLabels()
	if err != nil {
		return err
	}

	planned := make([]plannedWorkspace, 0, len(labels))
	var names []string
	for _, label := range labels {
		w, err := app.Workspace(label)
		if err != nil {
			return err
		}
		results, err := app.ComputeBumps(ctx, w, publishSince)
		if err != nil {
			return err
		}
		planned = append(planned, plannedWorkspace{Workspace: w, Results: results})
		names = append(names, w.Graph.Names()...)
	}
	if err := checkOnly(publishOnly, names); err != nil {
		return err
	}
	for i := range planned {
		planned[i].Results = selectPackages(planned[i].Results, planned[i].Config, publishOnly)
	}

	applyPublishFlags(cmd)
	dryRun := cfg.Publish.DryRun
	interactive := !publishNoTUI && !publishJSON && term.IsTerminal(int(os.Stdout.Fd()))

	commandLog := io.Writer(os.Stderr)
	if interactive {
		commandLog = io.Discard
	}
	backend, err := app.Backend(container.BackendOptions{
		DryRun:  dryRun,
		Output:  commandLog,
		Verbose: verbose,
	})
	if err != nil {
		return err
	}

	controller := domain.NewController()
	watcher, err := startControlWatcher(app.ControlDir(), controller, logger)
	if err != nil {
		return fmt.Errorf("failed to watch control directory: %w", err)
	}
	defer watcher.Stop()
	stopSignals := watchControlSignals(controller, logger)
	defer stopSignals()

	var metrics *observability.Metrics
	if cfg.Output.MetricsFile != "" {
		metrics = observability.NewMetrics(versionInfo.Version)
	}

	out := cmd.OutOrStdout()
	if !publishJSON && !interactive {
		fmt.Fprintln(out, ui.Banner(bannerTitle(dryRun), styles))
	}

	reports := make([]*apppublish.Report, 0, len(planned))
	for _, pw := range planned {
		report, err := publishWorkspace(ctx, app, pw, backend, controller, metrics, interactive)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}

	if metrics != nil {
		if err := metrics.WriteFile(cfg.Output.MetricsFile); err != nil {
			logger.Warn("failed to write metrics", "path", cfg.Output.MetricsFile, "error", err)
		}
	}

	if err := writeReports(out, reports, publishJSON); err != nil {
		return err
	}

	var errs []error
	for _, r := range reports {
		if err := r.Err(); err != nil {
			errs = append(errs, fmt.Errorf("workspace %s: %w", r.Workspace, err))
		}
	}
	return errors.Join(errs...)
}

func bannerTitle(dryRun bool) string {
	if dryRun {
		return "releasekit publish (dry run)"
	}
	return "releasekit publish"
}

// applyPublishFlags overrides publish settings with flags that were set.
func applyPublishFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		cfg.Publish.DryRun = publishDryRun
	}
	if flags.Changed("concurrency") {
		cfg.Publish.Concurrency = publishConcurrency
	}
	if flags.Changed("fail-on-blocked") {
		cfg.Publish.FailOnBlocked = publishFailOnBlocked
	}
}

// checkOnly rejects --only names that no selected workspace contains.
func checkOnly(only, names []string) error {
	for _, name := range only {
		if !slices.Contains(names, name) {
			return fmt.Errorf("unknown package %q%s", name, suggest(name, names))
		}
	}
	return nil
}

// selectPackages marks excluded packages, and packages outside a non-empty
// only list, as skipped. Results already skipped keep their reason.
func selectPackages(results []versioning.BumpResult, ws config.WorkspaceConfig, only []string) []versioning.BumpResult {
	out := slices.Clone(results)
	for i := range out {
		r := &out[i]
		if r.Skipped {
			continue
		}
		switch {
		case ws.Excluded(r.Name):
			r.Skipped, r.Reason, r.NewVersion = true, reasonExcluded, r.CurrentVersion
		case len(only) > 0 && !slices.Contains(only, r.Name):
			r.Skipped, r.Reason, r.NewVersion = true, reasonNotSelected, r.CurrentVersion
		}
	}
	return out
}

// publishWorkspace runs the scheduler over one workspace, showing progress
// in the interactive view or the log.
func publishWorkspace(ctx context.Context, app *container.Container, pw plannedWorkspace, backend apppublish.Backend, controller *domain.Controller, metrics *observability.Metrics, interactive bool) (*apppublish.Report, error) {
	observers := apppublish.MultiObserver{}
	if metrics != nil {
		observers = append(observers, metrics)
	}

	if !interactive {
		observers = append(observers, ui.NewLogObserver(logger))
		sched, err := app.Scheduler(pw.Label, backend, observers, controller)
		if err != nil {
			return nil, err
		}
		return sched.Run(ctx, pw.Graph, pw.Results)
	}

	program := tea.NewProgram(ui.NewProgressModel("Publishing "+pw.Label, controller), tea.WithContext(ctx))
	observers = append(observers, ui.NewTeaObserver(program))
	sched, err := app.Scheduler(pw.Label, backend, observers, controller)
	if err != nil {
		return nil, err
	}

	// The view owns the terminal until it exits.
	logger.SetOutput(io.Discard)
	defer logger.SetOutput(os.Stderr)

	type result struct {
		report *apppublish.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := sched.Run(ctx, pw.Graph, pw.Results)
		done <- result{report, err}
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		controller.Cancel()
		r := <-done
		return r.report, errors.Join(r.err, fmt.Errorf("progress view: %w", err))
	}
	r := <-done
	return r.report, r.err
}

func writeReports(w io.Writer, reports []*apppublish.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, styles.Header.Render(r.Workspace))
		if err := ui.RenderReport(w, r, styles); err != nil {
			return err
		}
	}
	return nil
}
