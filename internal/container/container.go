// Package container wires releasekit's use cases to their infrastructure.
package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/relicta-tech/releasekit/internal/application/bootstrap"
	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	"github.com/relicta-tech/releasekit/internal/application/versioning"
	"github.com/relicta-tech/releasekit/internal/config"
	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
	"github.com/relicta-tech/releasekit/internal/errors"
	"github.com/relicta-tech/releasekit/internal/infrastructure/discovery"
	"github.com/relicta-tech/releasekit/internal/infrastructure/git"
	"github.com/relicta-tech/releasekit/internal/infrastructure/publisher"
)

// Workspace is one discovered workspace and its dependency graph.
type Workspace struct {
	Label    string
	Config   config.WorkspaceConfig
	Packages []monorepo.Package
	Graph    *monorepo.DependencyGraph
}

// BackendOptions controls how the publish backend logs command output.
type BackendOptions struct {
	// DryRun logs the commands instead of running them.
	DryRun bool
	// Output receives command logs; nil means stderr.
	Output io.Writer
	// Verbose logs streamed command output.
	Verbose bool
}

// Container holds the configuration and repository of one invocation and
// builds the use cases that run against them.
type Container struct {
	config *config.Config
	repo   *git.Repository
	logger *slog.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// New opens the repository containing dir.
func New(cfg *config.Config, dir string) (*Container, error) {
	if cfg == nil {
		return nil, errors.Config("container.New", "configuration is required")
	}
	repo, err := git.Open(dir)
	if err != nil {
		return nil, err
	}
	return &Container{
		config:     cfg,
		repo:       repo,
		logger:     slog.Default().With("component", "container"),
		workspaces: make(map[string]*Workspace),
	}, nil
}

// Config returns the configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Repository returns the git repository.
func (c *Container) Repository() *git.Repository {
	return c.repo
}

// Workspace discovers the packages of the labelled workspace and builds
// its dependency graph. Results are cached per label.
func (c *Container) Workspace(label string) (*Workspace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.workspaces[label]; ok {
		return w, nil
	}
	ws, ok := c.config.Workspaces[label]
	if !ok {
		return nil, errors.NotFound("container.Workspace", "unknown workspace "+label)
	}
	w, err := loadWorkspace(c.repo.Root(), label, ws)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("workspace loaded", "workspace", label, "packages", len(w.Packages), "levels", len(w.Graph.Levels()))
	c.workspaces[label] = w
	return w, nil
}

// loadWorkspace discovers the packages of ws under repoRoot. Package paths
// are relative to repoRoot.
func loadWorkspace(repoRoot, label string, ws config.WorkspaceConfig) (*Workspace, error) {
	const op = "container.loadWorkspace"

	pkgs, err := discovery.Discover(discovery.Options{
		Root:      filepath.Join(repoRoot, ws.Root),
		Ecosystem: ws.Ecosystem,
		Packages:  ws.Packages,
		RepoRoot:  repoRoot,
	})
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", label, err)
	}

	graph, err := monorepo.BuildGraph(pkgs)
	if err != nil {
		return nil, errors.GraphWrap(err, op, "workspace "+label)
	}

	return &Workspace{
		Label:    label,
		Config:   ws,
		Packages: pkgs,
		Graph:    graph,
	}, nil
}

// VersioningOptions maps workspace settings onto bump options. A non-empty
// since overrides the configured cutoff.
func VersioningOptions(ws config.WorkspaceConfig, since string) versioning.Options {
	opts := versioning.Options{
		MajorOnZero:        ws.MajorOnZero,
		Synchronized:       ws.Synchronize,
		ForceUnchanged:     ws.ForceUnchanged,
		DisablePropagation: !ws.Propagate(),
		PrereleaseLabel:    ws.Prerelease,
		Since:              ws.Since,
		BootstrapSHA:       ws.BootstrapSHA,
		TagFormat:          ws.TagFormat,
	}
	if since != "" {
		opts.Since = since
	}
	return opts
}

// ComputeBumps runs the bump engine over w.
func (c *Container) ComputeBumps(ctx context.Context, w *Workspace, since string) ([]versioning.BumpResult, error) {
	results, err := versioning.NewEngine(c.repo).ComputeBumps(ctx, w.Packages, w.Graph, VersioningOptions(w.Config, since))
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", w.Label, err)
	}
	return results, nil
}

// Backend builds the publish stage backend from the publish configuration.
func (c *Container) Backend(opts BackendOptions) (apppublish.Backend, error) {
	level := hclog.Info
	if opts.Verbose {
		level = hclog.Debug
	}
	color := hclog.AutoColor
	if c.config.Output.NoColor {
		color = hclog.ColorOff
	}
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	pc := c.config.Publish
	bc := publisher.Config{
		RepoRoot:                c.repo.Root(),
		Commands:                pc.Commands.Map(),
		TransientPatterns:       pc.TransientPatterns,
		RateLimitPerMinute:      pc.RateLimitPerMinute,
		CircuitBreakerThreshold: pc.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   pc.CircuitBreakerTimeout,
		Shell:                   pc.Shell,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:       "publish",
			Level:      level,
			Output:     output,
			JSONFormat: c.config.Output.LogFormat == "json",
			Color:      color,
		}),
	}
	if opts.DryRun {
		b, err := publisher.NewDryRunBackend(bc)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	b, err := publisher.NewCommandBackend(bc)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// SchedulerOptions returns the scheduler options for the labelled workspace.
func (c *Container) SchedulerOptions(label string) apppublish.Options {
	pc := c.config.Publish
	opts := apppublish.DefaultOptions()
	opts.Workspace = label
	opts.Concurrency = pc.Concurrency
	opts.MaxRetries = pc.MaxRetries
	opts.RetryInitialDelay = pc.RetryInitialDelay
	opts.RetryMaxDelay = pc.RetryMaxDelay
	opts.StageTimeout = pc.StageTimeout
	opts.FailOnBlocked = pc.FailOnBlocked
	return opts
}

// Scheduler creates a publish scheduler for the labelled workspace.
func (c *Container) Scheduler(label string, backend apppublish.Backend, observer apppublish.Observer, controller *domain.Controller) (*apppublish.Scheduler, error) {
	return apppublish.NewScheduler(backend, observer, controller, c.SchedulerOptions(label))
}

// ControlDir returns the control directory, resolved against the
// repository root.
func (c *Container) ControlDir() string {
	dir := c.config.Publish.ControlDir
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.repo.Root(), dir)
}

// ConfigStore returns the store bootstrap writes to: path when set,
// otherwise a new config file at the repository root.
func (c *Container) ConfigStore(path string) *config.FileStore {
	if path == "" {
		path = filepath.Join(c.repo.Root(), config.DefaultConfigFile)
	}
	return config.NewFileStore(path)
}

// Bootstrapper creates the bootstrap use case persisting into store.
func (c *Container) Bootstrapper(store bootstrap.Store) *bootstrap.Bootstrapper {
	return bootstrap.NewBootstrapper(c.repo, c.repo, store)
}

// TagConfigs returns the tag templates of the given workspaces.
func (c *Container) TagConfigs(labels []string) map[string]bootstrap.WorkspaceTagConfig {
	out := make(map[string]bootstrap.WorkspaceTagConfig, len(labels))
	for _, label := range labels {
		ws := c.config.Workspaces[label]
		out[label] = bootstrap.WorkspaceTagConfig{
			TagFormat:          ws.TagFormat,
			SecondaryTagFormat: ws.SecondaryTagFormat,
			UmbrellaTagFormat:  ws.UmbrellaTagFormat,
		}
	}
	return out
}
