// Package changes parses Conventional Commits and derives release signals.
package changes

import "github.com/relicta-tech/releasekit/internal/domain/version"

// CommitType represents the type token of a conventional commit.
type CommitType string

// Standard conventional commit types.
const (
	CommitTypeFeat     CommitType = "feat"
	CommitTypeFix      CommitType = "fix"
	CommitTypeDocs     CommitType = "docs"
	CommitTypeStyle    CommitType = "style"
	CommitTypeRefactor CommitType = "refactor"
	CommitTypePerf     CommitType = "perf"
	CommitTypeTest     CommitType = "test"
	CommitTypeBuild    CommitType = "build"
	CommitTypeCI       CommitType = "ci"
	CommitTypeChore    CommitType = "chore"
	CommitTypeRevert   CommitType = "revert"
)

// IsStandard returns true for the types listed by the Conventional Commits
// and Angular conventions.
func (t CommitType) IsStandard() bool {
	switch t {
	case CommitTypeFeat, CommitTypeFix, CommitTypeDocs, CommitTypeStyle,
		CommitTypeRefactor, CommitTypePerf, CommitTypeTest, CommitTypeBuild,
		CommitTypeCI, CommitTypeChore, CommitTypeRevert:
		return true
	default:
		return false
	}
}

// String returns the string representation of the commit type.
func (t CommitType) String() string {
	return string(t)
}

// Bump returns the release signal carried by the type alone.
// Any type other than feat, fix and perf carries none.
func (t CommitType) Bump() version.BumpType {
	switch t {
	case CommitTypeFeat:
		return version.BumpMinor
	case CommitTypeFix, CommitTypePerf:
		return version.BumpPatch
	default:
		return version.BumpNone
	}
}
