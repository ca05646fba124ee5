package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/releasekit/internal/application/versioning"
	"github.com/relicta-tech/releasekit/internal/ui"
)

var (
	planJSON  bool
	planSince string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the version bump of every package",
	Long: `Discover every workspace, compute version bumps from commit history and
print one row per package with its current and next version and the reason
for the bump.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "output the plan as JSON")
	planCmd.Flags().StringVar(&planSince, "since", "", "history cutoff tag or commit for every package")
}

// planEntry is one package in JSON plan output.
type planEntry struct {
	Workspace string `json:"workspace"`
	Name      string `json:"name"`
	Current   string `json:"current"`
	Bump      string `json:"bump"`
	Next      string `json:"next"`
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason"`
	Since     string `json:"since,omitempty"`
	Commits   int    `json:"commits"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainer()
	if err != nil {
		return err
	}
	labels, err := selectedLabels()
	if err != nil {
		return err
	}

	var entries []planEntry
	for _, label := range labels {
		w, err := app.Workspace(label)
		if err != nil {
			return err
		}
		results, err := app.ComputeBumps(ctx, w, planSince)
		if err != nil {
			return err
		}
		entries = append(entries, planEntries(label, results)...)
	}

	return writePlan(cmd.OutOrStdout(), entries, planJSON)
}

func planEntries(label string, results []versioning.BumpResult) []planEntry {
	entries := make([]planEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, planEntry{
			Workspace: label,
			Name:      r.Name,
			Current:   r.CurrentVersion,
			Bump:      r.Bump.String(),
			Next:      r.NewVersion,
			Skipped:   r.Skipped,
			Reason:    r.Reason,
			Since:     r.Since,
			Commits:   r.Commits,
		})
	}
	return entries
}

func writePlan(w io.Writer, entries []planEntry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no packages found")
		return err
	}

	rows := make([]ui.PlanRow, 0, len(entries))
	released := 0
	for _, e := range entries {
		rows = append(rows, ui.PlanRow{
			Workspace: e.Workspace,
			Name:      e.Name,
			Current:   e.Current,
			Bump:      e.Bump,
			Next:      e.Next,
			Reason:    e.Reason,
			Skipped:   e.Skipped,
		})
		if !e.Skipped {
			released++
		}
	}
	if err := ui.RenderPlan(w, rows, styles); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d of %d packages will be released\n", released, len(entries))
	return err
}
