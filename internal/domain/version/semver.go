// Package version provides domain types for semantic versioning and the
// bump lattice used to combine release signals.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SemanticVersion is an immutable MAJOR.MINOR.PATCH value with optional
// prerelease and build metadata.
type SemanticVersion struct {
	major      uint64
	minor      uint64
	patch      uint64
	prerelease string
	metadata   string
}

var (
	identRegex = regexp.MustCompile(`^[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*$`)

	// Zero is the zero version (0.0.0).
	Zero = SemanticVersion{}
)

// NewSemanticVersion creates a release version with no prerelease.
func NewSemanticVersion(major, minor, patch uint64) SemanticVersion {
	return SemanticVersion{major: major, minor: minor, patch: patch}
}

// Parse parses s as MAJOR.MINOR.PATCH with optional -prerelease and +build
// suffixes. A leading "v" is accepted. Failures are *InvalidVersionError.
func Parse(s string) (SemanticVersion, error) {
	raw := s
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Zero, &InvalidVersionError{Version: raw, Reason: "empty version"}
	}

	var metadata, prerelease string
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s, metadata = s[:i], s[i+1:]
		if !identRegex.MatchString(metadata) {
			return Zero, &InvalidVersionError{Version: raw, Reason: "malformed build metadata"}
		}
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s, prerelease = s[:i], s[i+1:]
		if !identRegex.MatchString(prerelease) {
			return Zero, &InvalidVersionError{Version: raw, Reason: "malformed prerelease"}
		}
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Zero, &InvalidVersionError{
			Version: raw,
			Reason:  fmt.Sprintf("expected 3 numeric components, got %d", len(parts)),
		}
	}

	var nums [3]uint64
	for i, p := range parts {
		if p == "" || (len(p) > 1 && p[0] == '0') {
			return Zero, &InvalidVersionError{Version: raw, Reason: fmt.Sprintf("malformed component %q", p)}
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Zero, &InvalidVersionError{Version: raw, Reason: fmt.Sprintf("non-numeric component %q", p)}
		}
		nums[i] = n
	}

	return SemanticVersion{
		major:      nums[0],
		minor:      nums[1],
		patch:      nums[2],
		prerelease: prerelease,
		metadata:   metadata,
	}, nil
}

// Major returns the major version component.
func (v SemanticVersion) Major() uint64 { return v.major }

// Minor returns the minor version component.
func (v SemanticVersion) Minor() uint64 { return v.minor }

// Patch returns the patch version component.
func (v SemanticVersion) Patch() uint64 { return v.patch }

// Prerelease returns the prerelease identifier.
func (v SemanticVersion) Prerelease() string { return v.prerelease }

// IsPrerelease returns true if this is a prerelease version.
func (v SemanticVersion) IsPrerelease() bool {
	return v.prerelease != ""
}

// Core returns the version with prerelease and build metadata stripped.
func (v SemanticVersion) Core() SemanticVersion {
	return SemanticVersion{major: v.major, minor: v.minor, patch: v.patch}
}

// WithPrerelease returns a copy carrying the given prerelease identifier.
func (v SemanticVersion) WithPrerelease(pre string) SemanticVersion {
	v.prerelease = pre
	return v
}

// String returns the version without a "v" prefix.
func (v SemanticVersion) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", v.major, v.minor, v.patch)
	if v.prerelease != "" {
		sb.WriteString("-")
		sb.WriteString(v.prerelease)
	}
	if v.metadata != "" {
		sb.WriteString("+")
		sb.WriteString(v.metadata)
	}
	return sb.String()
}

// Compare returns -1, 0 or 1. Build metadata is ignored and a release
// outranks any prerelease of the same core version.
func (v SemanticVersion) Compare(other SemanticVersion) int {
	if c := cmpUint(v.major, other.major); c != 0 {
		return c
	}
	if c := cmpUint(v.minor, other.minor); c != 0 {
		return c
	}
	if c := cmpUint(v.patch, other.patch); c != 0 {
		return c
	}
	switch {
	case v.prerelease == other.prerelease:
		return 0
	case v.prerelease == "":
		return 1
	case other.prerelease == "":
		return -1
	}
	return comparePrerelease(v.prerelease, other.prerelease)
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// comparePrerelease orders dot-separated identifiers, numeric ones
// numerically and below alphanumeric ones.
func comparePrerelease(a, b string) int {
	ap, bp := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(ap) && i < len(bp); i++ {
		an, aerr := strconv.ParseUint(ap[i], 10, 64)
		bn, berr := strconv.ParseUint(bp[i], 10, 64)
		switch {
		case aerr == nil && berr == nil:
			if c := cmpUint(an, bn); c != 0 {
				return c
			}
		case aerr == nil:
			return -1
		case berr == nil:
			return 1
		default:
			if c := strings.Compare(ap[i], bp[i]); c != 0 {
				return c
			}
		}
	}
	return cmpUint(uint64(len(ap)), uint64(len(bp)))
}
