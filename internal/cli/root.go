// Package cli provides the command-line interface for releasekit.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/releasekit/internal/config"
	"github.com/relicta-tech/releasekit/internal/ui"
)

var (
	// Version information set by main.
	versionInfo struct {
		Version string
		Commit  string
		Date    string
	}

	// Global flags
	cfgFile        string
	verbose        bool
	quiet          bool
	logFormat      string
	noColor        bool
	workspaceNames []string

	// Global config
	cfg *config.Config
	// cfgPath is the config file that was loaded, if any.
	cfgPath string

	// Logger
	logger *log.Logger

	styles = ui.DefaultStyles()
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "releasekit",
	Short: "Dependency-ordered releases for polyglot monorepos",
	Long: `releasekit releases the packages of a monorepo in dependency order.

It discovers npm, pnpm, Cargo and Python workspaces, computes version bumps
from Conventional Commits, propagates them to dependents, and publishes each
level of the dependency graph with bounded concurrency and retries.

Get started with 'releasekit plan' to see what would be released.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initConfig()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: releasekit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringSliceVarP(&workspaceNames, "workspace", "w", nil, "limit to these workspaces (default: all)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// initConfig loads the configuration and applies global flags.
func initConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfgPath = loader.ConfigPath()

	applyGlobalFlags()
	configureLogger()
	return nil
}

// applyGlobalFlags applies global CLI flags to the configuration.
func applyGlobalFlags() {
	if logFormat != "" {
		cfg.Output.LogFormat = logFormat
	}
	if noColor {
		cfg.Output.NoColor = true
	}
	if cfg.Output.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// configureLogger sets format and level, and routes slog through the
// same logger so application use cases share its output.
func configureLogger() {
	if cfg.Output.LogFormat == "json" {
		logger.SetFormatter(log.JSONFormatter)
	} else {
		logger.SetFormatter(log.TextFormatter)
	}

	switch {
	case verbose:
		logger.SetLevel(log.DebugLevel)
	case quiet:
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	slog.SetDefault(slog.New(logger))
}

// selectedLabels returns the configured workspace labels limited by
// --workspace, in sorted order.
func selectedLabels() ([]string, error) {
	labels := cfg.Labels()
	if len(workspaceNames) == 0 {
		return labels, nil
	}

	var selected []string
	for _, name := range workspaceNames {
		name = strings.ToLower(strings.TrimSpace(name))
		if !slices.Contains(labels, name) {
			return nil, fmt.Errorf("unknown workspace %q%s", name, suggest(name, labels))
		}
		if !slices.Contains(selected, name) {
			selected = append(selected, name)
		}
	}
	slices.Sort(selected)
	return selected, nil
}

// suggest returns a "did you mean" hint for an unknown name.
func suggest(name string, candidates []string) string {
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return ""
	}
	limit := min(len(matches), 3)
	hints := make([]string, 0, limit)
	for _, m := range matches[:limit] {
		hints = append(hints, m.Str)
	}
	return fmt.Sprintf(" (did you mean %s?)", strings.Join(hints, ", "))
}
