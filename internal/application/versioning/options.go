package versioning

import (
	"regexp"
	"strings"

	"github.com/relicta-tech/releasekit/internal/domain/tagformat"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

var prereleaseLabelRegex = regexp.MustCompile(`^[A-Za-z][0-9A-Za-z-]*$`)

// Options configures one bump computation. Build it once per workspace
// and do not mutate it during a run.
type Options struct {
	// MajorOnZero lets breaking changes move 0.x packages to 1.0.0.
	MajorOnZero bool
	// Synchronized gives every publishable package the workspace maximum.
	Synchronized bool
	// ForceUnchanged turns NONE results into PATCH.
	ForceUnchanged bool
	// DisablePropagation skips transitive PATCH propagation even when a
	// graph is supplied.
	DisablePropagation bool
	// PrereleaseLabel, when set, appends "<label>1" to bumped versions.
	PrereleaseLabel string
	// Since is an explicit history cutoff applied to every package.
	Since string
	// BootstrapSHA is the fallback cutoff when no release tag exists.
	BootstrapSHA string
	// TagFormat renders the tag of a package's current version. Defaults
	// to tagformat.DefaultPackageFormat.
	TagFormat string
}

// Validate checks the options for obvious mistakes.
func (o Options) Validate() error {
	const op = "versioning.Options.Validate"
	if o.PrereleaseLabel != "" && !prereleaseLabelRegex.MatchString(o.PrereleaseLabel) {
		return rperrors.Validation(op, "prerelease label must start with a letter and contain only [0-9A-Za-z-]: "+o.PrereleaseLabel)
	}
	if o.TagFormat != "" {
		if !strings.Contains(o.TagFormat, tagformat.VersionPlaceholder) {
			return rperrors.Validation(op, "tag format must contain {version}: "+o.TagFormat)
		}
		if !strings.Contains(o.TagFormat, tagformat.NamePlaceholder) {
			return rperrors.Validation(op, "per-package tag format must contain {name}: "+o.TagFormat)
		}
	}
	return nil
}

func (o Options) tagFormat() string {
	if o.TagFormat == "" {
		return tagformat.DefaultPackageFormat
	}
	return o.TagFormat
}
