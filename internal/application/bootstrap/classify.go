// Package bootstrap reconstructs release history from existing tags so the
// bump engine can start from the last real release of each workspace.
package bootstrap

import (
	"maps"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/relicta-tech/releasekit/internal/domain/tagformat"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// WorkspaceTagConfig holds the tag templates of one workspace. Empty
// formats are not tried.
type WorkspaceTagConfig struct {
	// TagFormat is the per-package format, e.g. "{name}@{version}".
	TagFormat string
	// SecondaryTagFormat is tried when TagFormat does not match.
	SecondaryTagFormat string
	// UmbrellaTagFormat has only {version}, e.g. "py/v{version}".
	UmbrellaTagFormat string
}

// ClassifiedTag is a tag attributed to a workspace release.
type ClassifiedTag struct {
	Tag            string `json:"tag" yaml:"tag"`
	WorkspaceLabel string `json:"workspace" yaml:"workspace"`
	// PackageName is empty for umbrella tags.
	PackageName string `json:"package,omitempty" yaml:"package,omitempty"`
	Version     string `json:"version" yaml:"version"`
	IsUmbrella  bool   `json:"umbrella" yaml:"umbrella"`
	// CommitSHA is empty until resolved.
	CommitSHA string `json:"commit_sha,omitempty" yaml:"commit_sha,omitempty"`
}

type compiledWorkspace struct {
	label     string
	primary   *tagformat.Pattern
	secondary *tagformat.Pattern
	umbrella  *tagformat.Pattern
}

// Classify attributes each tag to the first workspace, in sorted label
// order, whose primary, secondary or umbrella format matches it. Tags no
// workspace claims are returned as unclassified, in input order.
func Classify(tags []string, workspaces map[string]WorkspaceTagConfig) ([]ClassifiedTag, []string, error) {
	compiled, err := compileWorkspaces(workspaces)
	if err != nil {
		return nil, nil, err
	}

	var classified []ClassifiedTag
	var unclassified []string
	for _, tag := range tags {
		if ct, ok := classifyOne(tag, compiled); ok {
			classified = append(classified, ct)
			continue
		}
		unclassified = append(unclassified, tag)
	}
	return classified, unclassified, nil
}

func classifyOne(tag string, workspaces []compiledWorkspace) (ClassifiedTag, bool) {
	for _, ws := range workspaces {
		for _, p := range []*tagformat.Pattern{ws.primary, ws.secondary} {
			if p == nil {
				continue
			}
			if name, ver, ok := p.Match(tag); ok {
				return ClassifiedTag{Tag: tag, WorkspaceLabel: ws.label, PackageName: name, Version: ver}, true
			}
		}
		if ws.umbrella != nil {
			if _, ver, ok := ws.umbrella.Match(tag); ok {
				return ClassifiedTag{Tag: tag, WorkspaceLabel: ws.label, Version: ver, IsUmbrella: true}, true
			}
		}
	}
	return ClassifiedTag{}, false
}

func compileWorkspaces(workspaces map[string]WorkspaceTagConfig) ([]compiledWorkspace, error) {
	const op = "bootstrap.Classify"

	out := make([]compiledWorkspace, 0, len(workspaces))
	for _, label := range slices.Sorted(maps.Keys(workspaces)) {
		cfg := workspaces[label]
		ws := compiledWorkspace{label: label}

		var err error
		if ws.primary, err = compileOptional(cfg.TagFormat, true); err != nil {
			return nil, rperrors.ConfigWrap(err, op, "workspace "+label+" tag_format")
		}
		if ws.secondary, err = compileOptional(cfg.SecondaryTagFormat, true); err != nil {
			return nil, rperrors.ConfigWrap(err, op, "workspace "+label+" secondary_tag_format")
		}
		if ws.umbrella, err = compileOptional(cfg.UmbrellaTagFormat, false); err != nil {
			return nil, rperrors.ConfigWrap(err, op, "workspace "+label+" umbrella_tag_format")
		}
		out = append(out, ws)
	}
	return out, nil
}

func compileOptional(format string, wantName bool) (*tagformat.Pattern, error) {
	if format == "" {
		return nil, nil
	}
	p, err := tagformat.Compile(format)
	if err != nil {
		return nil, err
	}
	if p.HasName() != wantName {
		if wantName {
			return nil, rperrors.Validation("bootstrap.compileOptional", "per-package format needs {name}: "+format)
		}
		return nil, rperrors.Validation("bootstrap.compileOptional", "umbrella format must not contain {name}: "+format)
	}
	return p, nil
}

// PickLatest returns the highest-versioned tag per workspace. A release
// outranks a prerelease of the same version, and tags whose version does
// not parse rank below every parseable one. Ties keep the earlier tag.
func PickLatest(classified []ClassifiedTag) map[string]ClassifiedTag {
	latest := make(map[string]ClassifiedTag)
	for _, ct := range classified {
		cur, ok := latest[ct.WorkspaceLabel]
		if !ok || outranks(ct.Version, cur.Version) {
			latest[ct.WorkspaceLabel] = ct
		}
	}
	return latest
}

func outranks(candidate, current string) bool {
	cv, cerr := semver.StrictNewVersion(candidate)
	if cerr != nil {
		return false
	}
	bv, berr := semver.StrictNewVersion(current)
	if berr != nil {
		return true
	}
	return cv.Compare(bv) > 0
}
