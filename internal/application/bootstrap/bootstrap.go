package bootstrap

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// TagResolver resolves a tag to the commit it points at.
type TagResolver interface {
	ResolveTagToSha(ctx context.Context, tag string) (string, error)
}

// TagLister lists every tag in the repository.
type TagLister interface {
	ListTags(ctx context.Context) ([]string, error)
}

// Store persists the bootstrap sha of a workspace.
type Store interface {
	SetBootstrapSHA(label, sha string) error
}

// ResolveCommitShas returns a copy of tags with every missing CommitSHA
// filled in. Tags that already carry a sha are left untouched.
func ResolveCommitShas(ctx context.Context, resolver TagResolver, tags []ClassifiedTag) ([]ClassifiedTag, error) {
	const op = "bootstrap.ResolveCommitShas"

	out := slices.Clone(tags)
	for i := range out {
		if out[i].CommitSHA != "" {
			continue
		}
		sha, err := resolver.ResolveTagToSha(ctx, out[i].Tag)
		if err != nil {
			return nil, rperrors.GitWrap(err, op, "resolve tag "+out[i].Tag)
		}
		out[i].CommitSHA = sha
	}
	return out, nil
}

// Input configures a bootstrap run.
type Input struct {
	Workspaces map[string]WorkspaceTagConfig
	// DryRun reports the shas without persisting them.
	DryRun bool
}

// Output describes what a bootstrap run found.
type Output struct {
	Classified   []ClassifiedTag
	Unclassified []string
	// Latest maps workspace label to its newest tag, sha resolved.
	Latest map[string]ClassifiedTag
	// Written maps workspace label to the persisted bootstrap sha.
	Written map[string]string
}

// Bootstrapper seeds bootstrap_sha for workspaces that already have tags.
type Bootstrapper struct {
	tags     TagLister
	resolver TagResolver
	store    Store
	logger   *slog.Logger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(tags TagLister, resolver TagResolver, store Store) *Bootstrapper {
	return &Bootstrapper{
		tags:     tags,
		resolver: resolver,
		store:    store,
		logger:   slog.Default().With("usecase", "bootstrap"),
	}
}

// Run classifies all tags, resolves the newest tag of each workspace and
// stores its commit as the workspace bootstrap sha.
func (b *Bootstrapper) Run(ctx context.Context, in Input) (*Output, error) {
	const op = "bootstrap.Run"

	tags, err := b.tags.ListTags(ctx)
	if err != nil {
		return nil, rperrors.GitWrap(err, op, "list tags")
	}

	classified, unclassified, err := Classify(tags, in.Workspaces)
	if err != nil {
		return nil, err
	}
	b.logger.Info("classified tags",
		"tags", len(tags),
		"classified", len(classified),
		"unclassified", len(unclassified))

	latest := PickLatest(classified)
	labels := slices.Sorted(maps.Keys(latest))
	picked := make([]ClassifiedTag, 0, len(labels))
	for _, label := range labels {
		picked = append(picked, latest[label])
	}
	resolved, err := ResolveCommitShas(ctx, b.resolver, picked)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Classified:   classified,
		Unclassified: unclassified,
		Latest:       make(map[string]ClassifiedTag, len(resolved)),
		Written:      make(map[string]string),
	}
	for _, ct := range resolved {
		out.Latest[ct.WorkspaceLabel] = ct
		if in.DryRun {
			b.logger.Info("would set bootstrap sha", "workspace", ct.WorkspaceLabel, "tag", ct.Tag, "sha", ct.CommitSHA)
			continue
		}
		if err := b.store.SetBootstrapSHA(ct.WorkspaceLabel, ct.CommitSHA); err != nil {
			return nil, rperrors.ConfigWrap(err, op, "persist bootstrap sha for "+ct.WorkspaceLabel)
		}
		out.Written[ct.WorkspaceLabel] = ct.CommitSHA
		b.logger.Info("set bootstrap sha", "workspace", ct.WorkspaceLabel, "tag", ct.Tag, "sha", ct.CommitSHA)
	}

	for label := range in.Workspaces {
		if _, ok := latest[label]; !ok {
			b.logger.Warn("no release tags found for workspace", "workspace", label)
		}
	}
	return out, nil
}
