// Package tagformat renders and reverses tag templates such as
// "{name}@{version}" or "py/v{version}".
package tagformat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Template placeholders.
const (
	NamePlaceholder    = "{name}"
	VersionPlaceholder = "{version}"
)

// DefaultPackageFormat is used when a workspace configures none.
const DefaultPackageFormat = "{name}@{version}"

// ErrMissingPlaceholder indicates a template lacks a required placeholder.
var ErrMissingPlaceholder = errors.New("tag format missing placeholder")

// Render substitutes name and version into format.
func Render(format, name, version string) string {
	return strings.NewReplacer(NamePlaceholder, name, VersionPlaceholder, version).Replace(format)
}

// Pattern is a compiled tag template.
type Pattern struct {
	format  string
	re      *regexp.Regexp
	nameIdx int
	verIdx  int
}

// Compile turns format into an anchored regular expression. Literal text is
// quoted; {name} matches lazily and {version} matches a version-shaped
// token, so "{name}-{version}" splits "my-pkg-1.2.0" at the last dash
// before a digit.
func Compile(format string) (*Pattern, error) {
	if !strings.Contains(format, VersionPlaceholder) {
		return nil, fmt.Errorf("%w %s in %q", ErrMissingPlaceholder, VersionPlaceholder, format)
	}

	p := &Pattern{format: format, nameIdx: -1, verIdx: -1}
	var sb strings.Builder
	sb.WriteString("^")
	group := 0
	rest := format
	for rest != "" {
		ni := strings.Index(rest, NamePlaceholder)
		vi := strings.Index(rest, VersionPlaceholder)
		next, token := nextPlaceholder(ni, vi)
		if next < 0 {
			sb.WriteString(regexp.QuoteMeta(rest))
			break
		}
		sb.WriteString(regexp.QuoteMeta(rest[:next]))
		group++
		switch token {
		case NamePlaceholder:
			if p.nameIdx >= 0 {
				return nil, fmt.Errorf("tag format %q repeats %s", format, NamePlaceholder)
			}
			p.nameIdx = group
			sb.WriteString(`(.+?)`)
		case VersionPlaceholder:
			if p.verIdx >= 0 {
				return nil, fmt.Errorf("tag format %q repeats %s", format, VersionPlaceholder)
			}
			p.verIdx = group
			sb.WriteString(`([0-9]+\.[0-9]+\.[0-9]+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)`)
		}
		rest = rest[next+len(token):]
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("compile tag format %q: %w", format, err)
	}
	p.re = re
	return p, nil
}

func nextPlaceholder(ni, vi int) (int, string) {
	switch {
	case ni < 0 && vi < 0:
		return -1, ""
	case ni < 0:
		return vi, VersionPlaceholder
	case vi < 0 || ni < vi:
		return ni, NamePlaceholder
	default:
		return vi, VersionPlaceholder
	}
}

// Format returns the source template.
func (p *Pattern) Format() string {
	return p.format
}

// HasName reports whether the template contains {name}.
func (p *Pattern) HasName() bool {
	return p.nameIdx >= 0
}

// Match extracts name and version from tag. name is empty for templates
// without {name}.
func (p *Pattern) Match(tag string) (name, version string, ok bool) {
	m := p.re.FindStringSubmatch(tag)
	if m == nil {
		return "", "", false
	}
	if p.nameIdx >= 0 {
		name = m[p.nameIdx]
	}
	return name, m[p.verIdx], true
}
