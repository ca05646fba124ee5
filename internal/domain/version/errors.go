package version

import (
	"errors"
	"fmt"
)

// Domain errors for version operations.
var (
	// ErrInvalidVersion indicates an invalid version string.
	ErrInvalidVersion = errors.New("invalid semantic version")

	// ErrInvalidBumpType indicates an invalid bump type.
	ErrInvalidBumpType = errors.New("invalid bump type")
)

// InvalidVersionError reports a version string that is not MAJOR.MINOR.PATCH.
// It matches ErrInvalidVersion under errors.Is.
type InvalidVersionError struct {
	Version string
	Reason  string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid semantic version %q: %s", e.Version, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidVersion) succeed.
func (e *InvalidVersionError) Is(target error) bool {
	return target == ErrInvalidVersion
}
