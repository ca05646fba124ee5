// Package versioning computes per-package version bumps from commit history.
package versioning

import "context"

// VCS is the version-control collaborator consumed by the bump engine and
// the bootstrap use case.
type VCS interface {
	// Log returns "sha subject" lines, newest first, for commits after since
	// (a tag or sha; empty means full history) touching any of paths
	// (empty means the whole repository).
	Log(ctx context.Context, since string, paths []string) ([]string, error)
	// TagExists reports whether the tag is present.
	TagExists(ctx context.Context, name string) (bool, error)
	// ResolveTagToSha returns the commit a tag points at.
	ResolveTagToSha(ctx context.Context, tag string) (string, error)
}
