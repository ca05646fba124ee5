package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relicta-tech/releasekit/internal/domain/changes"
	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	"github.com/relicta-tech/releasekit/internal/domain/tagformat"
	"github.com/relicta-tech/releasekit/internal/domain/version"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// Reasons recorded on results that no commit explains directly.
const (
	ReasonNoChanges = "no releasable changes"
	ReasonForced    = "forced republish"
)

// BumpResult is the bump decision for one package.
type BumpResult struct {
	Name           string
	Bump           version.BumpType
	CurrentVersion string
	NewVersion     string
	// Skipped is true when nothing justified a release.
	Skipped bool
	// Reason is the triggering commit subject or a propagation note.
	Reason string
	// Since is the history cutoff used for the package.
	Since string
	// Commits counts the conventional commits considered.
	Commits int
}

// signal is the direct bump derived from one package's own history.
type signal struct {
	bump    version.BumpType
	reason  string
	since   string
	commits int
}

// Engine computes version bumps.
type Engine struct {
	vcs    VCS
	logger *slog.Logger
}

// NewEngine creates a bump engine reading history from vcs.
func NewEngine(vcs VCS) *Engine {
	return &Engine{
		vcs:    vcs,
		logger: slog.Default().With("usecase", "compute_bumps"),
	}
}

// ComputeBumps returns one result per package, in input order.
//
// Every current version is validated first; all invalid versions are
// reported together and no history is read. Direct bumps come from each
// package's own commits. Then either synchronized mode assigns the
// workspace maximum, or, when graph is non-nil and propagation is enabled,
// packages without a direct bump receive PATCH if any dependency bumped.
func (e *Engine) ComputeBumps(ctx context.Context, pkgs []monorepo.Package, graph *monorepo.DependencyGraph, opts Options) ([]BumpResult, error) {
	const op = "versioning.ComputeBumps"

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	current := make([]version.SemanticVersion, len(pkgs))
	var invalid []error
	for i, p := range pkgs {
		v, err := version.Parse(p.Version)
		if err != nil {
			invalid = append(invalid, fmt.Errorf("package %s: %w", p.Name, err))
			continue
		}
		current[i] = v
	}
	if len(invalid) > 0 {
		return nil, rperrors.VersionWrap(errors.Join(invalid...), op, "invalid current versions")
	}

	direct := make([]signal, len(pkgs))
	for i, p := range pkgs {
		if err := ctx.Err(); err != nil {
			return nil, rperrors.Wrap(err, rperrors.KindCanceled, op, "bump computation canceled")
		}
		sig, err := e.directBump(ctx, p, opts)
		if err != nil {
			return nil, rperrors.GitWrap(err, op, "read history for "+p.Name)
		}
		direct[i] = sig
		e.logger.Debug("direct bump",
			"package", p.Name,
			"bump", sig.bump,
			"since", sig.since,
			"commits", sig.commits)
	}

	bumps := make([]version.BumpType, len(pkgs))
	reasons := make([]string, len(pkgs))
	for i := range direct {
		bumps[i] = direct[i].bump
		reasons[i] = direct[i].reason
	}

	switch {
	case opts.Synchronized:
		synchronize(pkgs, direct, bumps, reasons)
	case graph != nil && !opts.DisablePropagation:
		propagate(pkgs, graph, bumps, reasons)
	}

	if opts.ForceUnchanged {
		for i := range bumps {
			if bumps[i] == version.BumpNone {
				bumps[i] = version.BumpPatch
				reasons[i] = ReasonForced
			}
		}
	}

	results := make([]BumpResult, len(pkgs))
	for i, p := range pkgs {
		bump := applyMajorOnZero(bumps[i], current[i], opts.MajorOnZero)
		r := BumpResult{
			Name:           p.Name,
			Bump:           bump,
			CurrentVersion: p.Version,
			NewVersion:     p.Version,
			Reason:         reasons[i],
			Since:          direct[i].since,
			Commits:        direct[i].commits,
		}
		if bump == version.BumpNone {
			r.Skipped = true
			if r.Reason == "" {
				r.Reason = ReasonNoChanges
			}
		} else {
			r.NewVersion = bump.Apply(current[i], opts.PrereleaseLabel).String()
		}
		results[i] = r
	}

	e.logger.Info("computed bumps",
		"packages", len(results),
		"released", countReleased(results),
		"synchronized", opts.Synchronized)

	return results, nil
}

// directBump reads the package's history, one Log call per path filter,
// and returns the lattice maximum over the parsed commits.
func (e *Engine) directBump(ctx context.Context, p monorepo.Package, opts Options) (signal, error) {
	since, err := e.cutoff(ctx, p, opts)
	if err != nil {
		return signal{}, err
	}

	sig := signal{bump: version.BumpNone, since: since}
	paths := p.HistoryPaths()
	filters := [][]string{nil}
	if len(paths) > 0 {
		filters = filters[:0]
		for _, path := range paths {
			filters = append(filters, []string{path})
		}
	}

	seen := make(map[string]bool)
	for _, filter := range filters {
		lines, err := e.vcs.Log(ctx, since, filter)
		if err != nil {
			return signal{}, err
		}
		for _, line := range lines {
			c := changes.ParseLogLine(line)
			if c == nil || seen[c.SHA()] {
				continue
			}
			seen[c.SHA()] = true
			sig.commits++
			e.logger.Debug("commit",
				"package", p.Name,
				"sha", c.ShortSHA(),
				"type", c.Type(),
				"scope", c.Scope(),
				"standard", c.Type().IsStandard(),
				"bump", c.Bump())
			if b := c.Bump(); b.Rank() > sig.bump.Rank() {
				sig.bump = b
				_, sig.reason, _ = strings.Cut(strings.TrimSpace(line), " ")
			}
		}
	}
	return sig, nil
}

// cutoff picks the history start: an explicit Since, else the tag of the
// current version when it exists, else the bootstrap sha.
func (e *Engine) cutoff(ctx context.Context, p monorepo.Package, opts Options) (string, error) {
	if opts.Since != "" {
		return opts.Since, nil
	}
	tag := tagformat.Render(opts.tagFormat(), p.Name, p.Version)
	ok, err := e.vcs.TagExists(ctx, tag)
	if err != nil {
		return "", err
	}
	if ok {
		return tag, nil
	}
	return opts.BootstrapSHA, nil
}

// synchronize assigns the workspace maximum to every publishable package.
// Packages without their own signal cite the commit behind the maximum.
func synchronize(pkgs []monorepo.Package, direct []signal, bumps []version.BumpType, reasons []string) {
	maxIdx := -1
	maxBump := version.BumpNone
	for i, sig := range direct {
		if sig.bump.Rank() > maxBump.Rank() {
			maxBump = sig.bump
			maxIdx = i
		}
	}
	if maxIdx < 0 {
		return
	}
	for i, p := range pkgs {
		if !p.Publishable {
			continue
		}
		bumps[i] = maxBump
		if direct[i].bump == version.BumpNone {
			reasons[i] = "synchronized: " + direct[maxIdx].reason
		}
	}
}

// propagate walks the graph level by level, giving PATCH to packages
// without a bump when any dependency has one. It never lowers a bump.
func propagate(pkgs []monorepo.Package, graph *monorepo.DependencyGraph, bumps []version.BumpType, reasons []string) {
	index := make(map[string]int, len(pkgs))
	for i, p := range pkgs {
		index[p.Name] = i
	}
	for _, level := range graph.Levels() {
		for _, name := range level {
			i, ok := index[name]
			if !ok || bumps[i] != version.BumpNone {
				continue
			}
			for _, dep := range graph.Dependencies(name) {
				j, ok := index[dep]
				if ok && bumps[j] != version.BumpNone {
					bumps[i] = version.BumpPatch
					reasons[i] = fmt.Sprintf("dependency %s bumped", dep)
					break
				}
			}
		}
	}
}

// applyMajorOnZero downgrades MAJOR to MINOR for 0.x versions unless
// majorOnZero is set.
func applyMajorOnZero(b version.BumpType, current version.SemanticVersion, majorOnZero bool) version.BumpType {
	if b == version.BumpMajor && current.Major() == 0 && !majorOnZero {
		return version.BumpMinor
	}
	return b
}

func countReleased(results []BumpResult) int {
	n := 0
	for _, r := range results {
		if !r.Skipped {
			n++
		}
	}
	return n
}
