// Package config provides configuration management for releasekit.
package config

import (
	"maps"
	"slices"
	"time"
)

// Config is the root configuration for releasekit.
type Config struct {
	// Workspaces maps a workspace label to its settings. Labels are
	// case-insensitive and stored lower-cased.
	Workspaces map[string]WorkspaceConfig `mapstructure:"workspaces" json:"workspaces" yaml:"workspaces"`
	// Publish configures the publish scheduler and command backend.
	Publish PublishConfig `mapstructure:"publish" json:"publish" yaml:"publish"`
	// Output configures logging and report output.
	Output OutputConfig `mapstructure:"output" json:"output" yaml:"output"`
}

// WorkspaceConfig configures one workspace.
type WorkspaceConfig struct {
	// Root is the workspace directory relative to the repository root.
	Root string `mapstructure:"root" json:"root" yaml:"root"`
	// Ecosystem is npm, pnpm, cargo, python or auto.
	Ecosystem string `mapstructure:"ecosystem" json:"ecosystem" yaml:"ecosystem"`
	// Packages overrides the package globs declared by the ecosystem.
	Packages []string `mapstructure:"packages" json:"packages,omitempty" yaml:"packages,omitempty"`
	// TagFormat is the per-package tag template.
	TagFormat string `mapstructure:"tag_format" json:"tag_format" yaml:"tag_format"`
	// SecondaryTagFormat is tried when TagFormat does not match.
	SecondaryTagFormat string `mapstructure:"secondary_tag_format" json:"secondary_tag_format,omitempty" yaml:"secondary_tag_format,omitempty"`
	// UmbrellaTagFormat is the workspace-wide tag template.
	UmbrellaTagFormat string `mapstructure:"umbrella_tag_format" json:"umbrella_tag_format,omitempty" yaml:"umbrella_tag_format,omitempty"`
	// Synchronize releases every package with the workspace maximum bump.
	Synchronize bool `mapstructure:"synchronize" json:"synchronize" yaml:"synchronize"`
	// MajorOnZero lets breaking changes move 0.x packages to 1.0.0.
	MajorOnZero bool `mapstructure:"major_on_zero" json:"major_on_zero" yaml:"major_on_zero"`
	// PropagateBumps patches dependents of bumped packages (default: true).
	PropagateBumps *bool `mapstructure:"propagate_bumps" json:"propagate_bumps,omitempty" yaml:"propagate_bumps,omitempty"`
	// ForceUnchanged republishes packages without changes as a patch.
	ForceUnchanged bool `mapstructure:"force_unchanged" json:"force_unchanged" yaml:"force_unchanged"`
	// Prerelease is the prerelease label, e.g. "rc".
	Prerelease string `mapstructure:"prerelease" json:"prerelease,omitempty" yaml:"prerelease,omitempty"`
	// Since is an explicit history cutoff for every package.
	Since string `mapstructure:"since" json:"since,omitempty" yaml:"since,omitempty"`
	// BootstrapSHA is written by "releasekit bootstrap".
	BootstrapSHA string `mapstructure:"bootstrap_sha" json:"bootstrap_sha,omitempty" yaml:"bootstrap_sha,omitempty"`
	// Exclude lists package names never scheduled.
	Exclude []string `mapstructure:"exclude" json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Propagate reports whether bumps propagate to dependents.
func (w WorkspaceConfig) Propagate() bool {
	if w.PropagateBumps == nil {
		return true
	}
	return *w.PropagateBumps
}

// Excluded reports whether name is in the exclude list.
func (w WorkspaceConfig) Excluded(name string) bool {
	return slices.Contains(w.Exclude, name)
}

// PublishConfig configures publishing.
type PublishConfig struct {
	// Concurrency bounds the pipelines running at once within a level.
	Concurrency int `mapstructure:"concurrency" json:"concurrency" yaml:"concurrency"`
	// MaxRetries bounds retries per stage.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries" yaml:"max_retries"`
	// RetryInitialDelay is the first backoff delay.
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay" json:"retry_initial_delay" yaml:"retry_initial_delay"`
	// RetryMaxDelay caps the backoff.
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay" json:"retry_max_delay" yaml:"retry_max_delay"`
	// StageTimeout limits each stage attempt; 0 disables it.
	StageTimeout time.Duration `mapstructure:"stage_timeout" json:"stage_timeout" yaml:"stage_timeout"`
	// FailOnBlocked makes blocked packages fail the run.
	FailOnBlocked bool `mapstructure:"fail_on_blocked" json:"fail_on_blocked" yaml:"fail_on_blocked"`
	// DryRun logs stages without running them.
	DryRun bool `mapstructure:"dry_run" json:"dry_run" yaml:"dry_run"`
	// Commands override the per-ecosystem stage presets.
	Commands CommandsConfig `mapstructure:"commands" json:"commands" yaml:"commands"`
	// TransientPatterns classify failed command output as retryable.
	TransientPatterns []string `mapstructure:"transient_patterns" json:"transient_patterns,omitempty" yaml:"transient_patterns,omitempty"`
	// ControlDir holds the PAUSE and CANCEL control files.
	ControlDir string `mapstructure:"control_dir" json:"control_dir" yaml:"control_dir"`
	// RateLimitPerMinute bounds publish commands per ecosystem; 0 disables.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	// CircuitBreakerThreshold opens a registry breaker after that many
	// consecutive publish failures; 0 disables.
	CircuitBreakerThreshold int `mapstructure:"circuit_breaker_threshold" json:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	// CircuitBreakerTimeout is how long an open breaker rejects publishes.
	CircuitBreakerTimeout time.Duration `mapstructure:"circuit_breaker_timeout" json:"circuit_breaker_timeout" yaml:"circuit_breaker_timeout"`
	// Shell runs stage commands.
	Shell string `mapstructure:"shell" json:"shell" yaml:"shell"`
}

// CommandsConfig holds stage command templates.
type CommandsConfig struct {
	Build   string `mapstructure:"build" json:"build,omitempty" yaml:"build,omitempty"`
	Publish string `mapstructure:"publish" json:"publish,omitempty" yaml:"publish,omitempty"`
	Poll    string `mapstructure:"poll" json:"poll,omitempty" yaml:"poll,omitempty"`
	Verify  string `mapstructure:"verify" json:"verify,omitempty" yaml:"verify,omitempty"`
}

// Map returns the configured templates keyed by stage name.
func (c CommandsConfig) Map() map[string]string {
	m := make(map[string]string, 4)
	for stage, text := range map[string]string{
		"build":   c.Build,
		"publish": c.Publish,
		"poll":    c.Poll,
		"verify":  c.Verify,
	} {
		if text != "" {
			m[stage] = text
		}
	}
	return m
}

// OutputConfig configures output settings.
type OutputConfig struct {
	// LogFormat is text or json.
	LogFormat string `mapstructure:"log_format" json:"log_format" yaml:"log_format"`
	// NoColor disables styled output.
	NoColor bool `mapstructure:"no_color" json:"no_color" yaml:"no_color"`
	// MetricsFile receives publish metrics in Prometheus text format.
	MetricsFile string `mapstructure:"metrics_file" json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

// Labels returns the workspace labels in sorted order.
func (c *Config) Labels() []string {
	return slices.Sorted(maps.Keys(c.Workspaces))
}

// Default values.
const (
	DefaultTagFormat  = "{name}@{version}"
	DefaultEcosystem  = "auto"
	DefaultControlDir = ".releasekit/control"
	DefaultLogFormat  = "text"
)

// DefaultConfig returns the default configuration. It has a single
// workspace labelled "default" rooted at the repository root.
func DefaultConfig() *Config {
	return &Config{
		Workspaces: map[string]WorkspaceConfig{
			"default": {Root: ".", Ecosystem: DefaultEcosystem, TagFormat: DefaultTagFormat},
		},
		Publish: PublishConfig{
			Concurrency:           4,
			MaxRetries:            3,
			RetryInitialDelay:     time.Second,
			RetryMaxDelay:         30 * time.Second,
			StageTimeout:          10 * time.Minute,
			ControlDir:            DefaultControlDir,
			CircuitBreakerTimeout: 30 * time.Second,
			Shell:                 "sh",
		},
		Output: OutputConfig{
			LogFormat: DefaultLogFormat,
		},
	}
}

// normalize fills per-workspace defaults that viper cannot express for
// map entries.
func (c *Config) normalize() {
	if len(c.Workspaces) == 0 {
		c.Workspaces = DefaultConfig().Workspaces
		return
	}
	for label, ws := range c.Workspaces {
		if ws.Root == "" {
			ws.Root = "."
		}
		if ws.Ecosystem == "" {
			ws.Ecosystem = DefaultEcosystem
		}
		if ws.TagFormat == "" {
			ws.TagFormat = DefaultTagFormat
		}
		c.Workspaces[label] = ws
	}
}
