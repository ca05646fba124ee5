package changes

import (
	"regexp"
	"strings"

	"github.com/relicta-tech/releasekit/internal/domain/version"
)

// BreakingChangeMarker flags a breaking change anywhere in a commit message.
const BreakingChangeMarker = "BREAKING CHANGE"

// ConventionalCommit is a commit whose subject follows
// type(scope)!: description.
type ConventionalCommit struct {
	sha         string
	commitType  CommitType
	scope       string
	description string
	breaking    bool
}

// type token is lowercase letters; "!" must sit directly against the colon.
var conventionalCommitRegex = regexp.MustCompile(`^([a-z]+)(?:\(([^()\r\n]+)\))?(!)?:[ \t]*(.*)$`)

// ParseConventionalCommit parses a commit message. The first line is the
// subject, the rest is the body. It returns nil when the subject does not
// follow the grammar or has an empty description.
func ParseConventionalCommit(sha, message string) *ConventionalCommit {
	subject, body, _ := strings.Cut(strings.TrimLeft(message, "\r\n"), "\n")
	subject = strings.TrimRight(subject, " \t\r")

	m := conventionalCommitRegex.FindStringSubmatch(subject)
	if m == nil {
		return nil
	}
	description := strings.TrimSpace(m[4])
	if description == "" {
		return nil
	}

	return &ConventionalCommit{
		sha:         sha,
		commitType:  CommitType(m[1]),
		scope:       m[2],
		description: description,
		breaking: m[3] == "!" ||
			strings.Contains(subject, BreakingChangeMarker) ||
			strings.Contains(body, BreakingChangeMarker),
	}
}

// ParseLogLine parses one "sha subject" line as produced by the VCS log.
func ParseLogLine(line string) *ConventionalCommit {
	sha, subject, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return nil
	}
	return ParseConventionalCommit(sha, subject)
}

// SHA returns the commit hash.
func (c *ConventionalCommit) SHA() string {
	return c.sha
}

// ShortSHA returns the first 7 characters of the commit hash.
func (c *ConventionalCommit) ShortSHA() string {
	if len(c.sha) > 7 {
		return c.sha[:7]
	}
	return c.sha
}

// Type returns the commit type.
func (c *ConventionalCommit) Type() CommitType {
	return c.commitType
}

// Scope returns the commit scope.
func (c *ConventionalCommit) Scope() string {
	return c.scope
}

// Description returns the text after the colon.
func (c *ConventionalCommit) Description() string {
	return c.description
}

// IsBreaking returns true if this is a breaking change.
func (c *ConventionalCommit) IsBreaking() bool {
	return c.breaking
}

// Bump returns the release signal of this commit. Breaking changes are
// always MAJOR.
func (c *ConventionalCommit) Bump() version.BumpType {
	if c.breaking {
		return version.BumpMajor
	}
	return c.commitType.Bump()
}

// String reconstructs the subject line.
func (c *ConventionalCommit) String() string {
	var sb strings.Builder
	sb.Grow(len(c.commitType) + len(c.scope) + len(c.description) + 5)
	sb.WriteString(string(c.commitType))
	if c.scope != "" {
		sb.WriteString("(")
		sb.WriteString(c.scope)
		sb.WriteString(")")
	}
	if c.breaking {
		sb.WriteString("!")
	}
	sb.WriteString(": ")
	sb.WriteString(c.description)
	return sb.String()
}
