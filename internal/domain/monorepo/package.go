// Package monorepo models the publishable packages of a workspace and the
// dependency graph that orders their releases.
package monorepo

import "slices"

// Ecosystem identifies the package manager a package is released through.
type Ecosystem string

const (
	EcosystemNPM    Ecosystem = "npm"
	EcosystemPnpm   Ecosystem = "pnpm"
	EcosystemCargo  Ecosystem = "cargo"
	EcosystemPython Ecosystem = "python"
)

// Package is one release unit discovered in a workspace. It is immutable for
// the duration of a run; new versions are reported separately.
type Package struct {
	// Name is unique within the workspace, e.g. "@scope/core" or "genkit".
	Name string
	// Version is the current semantic version string.
	Version string
	// Path is the workspace-relative directory of the package.
	Path string
	// Paths are extra history filters; Path is used when empty.
	Paths []string
	// InternalDeps names other packages of the same run.
	InternalDeps []string
	// ExternalDeps is informational only.
	ExternalDeps []string
	// Publishable is false for private packages, which are never scheduled.
	Publishable bool
	// Ecosystem is the package manager the package belongs to.
	Ecosystem Ecosystem
	// Manifest is the workspace-relative manifest file path.
	Manifest string
}

// HistoryPaths returns the path filters used to scope commit history.
func (p Package) HistoryPaths() []string {
	if len(p.Paths) > 0 {
		return slices.Clone(p.Paths)
	}
	if p.Path == "" {
		return nil
	}
	return []string{p.Path}
}
