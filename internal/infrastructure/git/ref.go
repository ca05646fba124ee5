package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidGitRef is returned when a reference contains unsafe characters.
var ErrInvalidGitRef = errors.New("invalid git reference")

// gitRefPattern allows package tags such as "@scope/core@1.2.0" in
// addition to branch, tag and hash names.
var gitRefPattern = regexp.MustCompile(`^[a-zA-Z0-9@][a-zA-Z0-9@._/~^+-]*$`)

// dangerousGitRefPatterns could be used for option or command injection.
var dangerousGitRefPatterns = []string{
	"--",
	";",
	"|",
	"&",
	"`",
	"$(",
	"${",
	"\n",
	"\r",
	"..",
}

// ValidateGitRef checks that ref is safe to hand to git tooling.
func ValidateGitRef(ref string) error {
	if ref == "" {
		return nil
	}

	for _, pattern := range dangerousGitRefPatterns {
		if strings.Contains(ref, pattern) {
			return fmt.Errorf("%w: reference %q contains dangerous pattern %q", ErrInvalidGitRef, ref, pattern)
		}
	}

	if len(ref) > 250 {
		return fmt.Errorf("%w: reference %q exceeds maximum length", ErrInvalidGitRef, ref)
	}

	if !gitRefPattern.MatchString(ref) {
		return fmt.Errorf("%w: reference %q contains invalid characters", ErrInvalidGitRef, ref)
	}
	return nil
}
