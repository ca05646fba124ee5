// Package version provides the release version of the releasekit binary.
package version

import (
	_ "embed"
	"strings"
)

// VERSION is the release recorded in the VERSION file. It is used when
// ldflags did not set one, as with go install.
//
//go:embed VERSION
var VERSION string

// Get returns the embedded version with a "v" prefix.
func Get() string {
	return "v" + strings.TrimSpace(VERSION)
}

// Resolve returns the ldflags version, or the embedded one for dev builds.
func Resolve(ldflags string) string {
	if ldflags == "" || ldflags == "dev" {
		return Get()
	}
	return ldflags
}
