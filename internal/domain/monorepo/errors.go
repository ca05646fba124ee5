package monorepo

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for graph construction.
var (
	// ErrCycle indicates the internal dependencies contain a cycle.
	ErrCycle = errors.New("dependency cycle")

	// ErrDuplicatePackage indicates two discovered packages share a name.
	ErrDuplicatePackage = errors.New("duplicate package name")
)

// CycleError names the packages on one dependency cycle. The first name is
// repeated at the end, e.g. [a b c a]. It matches ErrCycle under errors.Is.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// Is lets errors.Is(err, ErrCycle) succeed.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}
