package version

import "fmt"

// BumpType is a release signal. NONE, PATCH, MINOR and MAJOR form a total
// order; PRERELEASE is a mode applied after the lattice decision.
type BumpType string

const (
	// BumpNone means no release is required.
	BumpNone BumpType = "none"
	// BumpPatch indicates a patch version bump (bug fixes).
	BumpPatch BumpType = "patch"
	// BumpMinor indicates a minor version bump (new features).
	BumpMinor BumpType = "minor"
	// BumpMajor indicates a major version bump (breaking changes).
	BumpMajor BumpType = "major"
	// BumpPrerelease patch-bumps the base and appends a prerelease counter.
	BumpPrerelease BumpType = "prerelease"
)

// DefaultPrereleaseLabel is used when a prerelease bump has no label.
const DefaultPrereleaseLabel = "rc"

// IsValid returns true if the bump type is known.
func (b BumpType) IsValid() bool {
	switch b {
	case BumpNone, BumpPatch, BumpMinor, BumpMajor, BumpPrerelease:
		return true
	default:
		return false
	}
}

// String returns the string representation of the bump type.
func (b BumpType) String() string {
	return string(b)
}

// Rank returns the position of b in the lattice. PRERELEASE and unknown
// values rank with NONE since they never compete in max-selection.
func (b BumpType) Rank() int {
	switch b {
	case BumpPatch:
		return 1
	case BumpMinor:
		return 2
	case BumpMajor:
		return 3
	default:
		return 0
	}
}

// MaxBump returns the lattice maximum of the given bumps, BumpNone for none.
func MaxBump(bumps ...BumpType) BumpType {
	best := BumpNone
	for _, b := range bumps {
		if b.Rank() > best.Rank() {
			best = b
		}
	}
	return best
}

// Apply returns the version produced by bumping v. Prerelease and build
// metadata on v are discarded first. A non-empty label turns any non-NONE
// bump into a prerelease of the bumped version: "<label>1".
func (b BumpType) Apply(v SemanticVersion, label string) SemanticVersion {
	base := v.Core()
	var next SemanticVersion
	switch b {
	case BumpMajor:
		next = NewSemanticVersion(base.major+1, 0, 0)
	case BumpMinor:
		next = NewSemanticVersion(base.major, base.minor+1, 0)
	case BumpPatch:
		next = NewSemanticVersion(base.major, base.minor, base.patch+1)
	case BumpPrerelease:
		if label == "" {
			label = DefaultPrereleaseLabel
		}
		next = NewSemanticVersion(base.major, base.minor, base.patch+1)
	default:
		return v
	}
	if label != "" {
		return next.WithPrerelease(label + "1")
	}
	return next
}

// ApplyBump parses version, applies bump and returns the new version string.
func ApplyBump(version string, bump BumpType, label string) (string, error) {
	if !bump.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBumpType, bump)
	}
	v, err := Parse(version)
	if err != nil {
		return "", err
	}
	return bump.Apply(v, label).String(), nil
}
