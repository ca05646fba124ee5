package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/releasekit/internal/application/bootstrap"
)

var bootstrapDryRun bool

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed bootstrap_sha from existing release tags",
	Long: `Classify the existing tags of the repository by workspace, pick the newest
release of each workspace and record its commit as the workspace
bootstrap_sha in the config file. Later runs use it as the history cutoff
for packages without a release tag of their own.`,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().BoolVar(&bootstrapDryRun, "dry-run", false, "report the shas without writing the config file")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	app, err := newContainer()
	if err != nil {
		return err
	}
	labels, err := selectedLabels()
	if err != nil {
		return err
	}

	// Write back to the loaded config file, or create one at the root.
	store := app.ConfigStore(cfgPath)
	out, err := app.Bootstrapper(store).Run(cmd.Context(), bootstrap.Input{
		Workspaces: app.TagConfigs(labels),
		DryRun:     bootstrapDryRun,
	})
	if err != nil {
		return err
	}
	return writeBootstrap(cmd.OutOrStdout(), labels, out, store.Path(), bootstrapDryRun)
}

func writeBootstrap(w io.Writer, labels []string, out *bootstrap.Output, path string, dryRun bool) error {
	for _, label := range labels {
		latest, ok := out.Latest[label]
		if !ok {
			fmt.Fprintf(w, "%s  %s\n", styles.Warning.Render(label), styles.Subtle.Render("no release tags found"))
			continue
		}
		fmt.Fprintf(w, "%s  %s  %s\n", styles.Bold.Render(label), latest.Tag, shortSHA(latest.CommitSHA))
	}
	if len(out.Unclassified) > 0 {
		fmt.Fprintln(w, styles.Subtle.Render(fmt.Sprintf("%d tags matched no workspace", len(out.Unclassified))))
	}

	var err error
	switch {
	case dryRun:
		_, err = fmt.Fprintln(w, styles.Info.Render("dry run: config not written"))
	case len(out.Written) > 0:
		_, err = fmt.Fprintln(w, styles.Success.Render(fmt.Sprintf("wrote %d bootstrap shas to %s", len(out.Written), path)))
	}
	return err
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
