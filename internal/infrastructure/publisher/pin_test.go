package publisher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
)

func TestPinPackageJSON(t *testing.T) {
	in := `{
  "name": "@acme/web",
  "version": "0.3.0",
  "scripts": {"version": "echo keep"},
  "dependencies": {
    "@acme/core": "^1.2.0",
    "@acme/util": "workspace:*",
    "@acme/exact": "1.0.0",
    "lodash": "^4.17.0"
  },
  "peerDependencies": {"@acme/core": "~1.0.0"},
  "files": ["dist", {"nested": "version"}]
}
`
	deps := map[string]string{"@acme/core": "1.3.0", "@acme/util": "2.0.0", "@acme/exact": "1.0.1"}
	out, err := pinPackageJSON([]byte(in), "0.4.0", deps)
	require.NoError(t, err)

	want := `{
  "name": "@acme/web",
  "version": "0.4.0",
  "scripts": {"version": "echo keep"},
  "dependencies": {
    "@acme/core": "^1.3.0",
    "@acme/util": "workspace:*",
    "@acme/exact": "1.0.1",
    "lodash": "^4.17.0"
  },
  "peerDependencies": {"@acme/core": "~1.3.0"},
  "files": ["dist", {"nested": "version"}]
}
`
	assert.Equal(t, want, string(out))
}

func TestPinPackageJSON_Invalid(t *testing.T) {
	_, err := pinPackageJSON([]byte(`["not", "an", "object"]`), "1.0.0", nil)
	assert.Error(t, err)
	_, err = pinPackageJSON([]byte(`{"version": `), "1.0.0", nil)
	assert.Error(t, err)
}

func TestPinCargoToml(t *testing.T) {
	in := `[package]
name = "acme-cli"
version = "1.1.0" # bumped by release tooling
edition = "2021"

[dependencies]
serde = "1"
core = { package = "acme-core", path = "../core", version = "^0.4.0" }
acme-util = { path = "../util" }
acme-macros = "=0.1.0"

[dependencies.acme-extra]
path = "../extra"
version = "0.2.0"

[target.'cfg(unix)'.dependencies]
acme-sys = "~0.3"
`
	deps := map[string]string{
		"acme-core":   "0.5.0",
		"acme-util":   "0.9.0",
		"acme-macros": "0.1.1",
		"acme-extra":  "0.3.0",
		"acme-sys":    "0.3.2",
	}
	out := pinCargoToml([]byte(in), "1.2.0", deps)

	want := `[package]
name = "acme-cli"
version = "1.2.0" # bumped by release tooling
edition = "2021"

[dependencies]
serde = "1"
core = { package = "acme-core", path = "../core", version = "^0.5.0" }
acme-util = { version = "0.9.0", path = "../util" }
acme-macros = "=0.1.1"

[dependencies.acme-extra]
path = "../extra"
version = "0.3.0"

[target.'cfg(unix)'.dependencies]
acme-sys = "~0.3.2"
`
	assert.Equal(t, want, string(out))
}

func TestPinCargoToml_WorkspaceVersionUntouched(t *testing.T) {
	in := "[package]\nname = \"a\"\nversion.workspace = true\n"
	assert.Equal(t, in, string(pinCargoToml([]byte(in), "2.0.0", nil)))
}

func TestPinPyproject(t *testing.T) {
	in := `[project]
name = "acme-core"
version = "0.9.0"
requires-python = ">=3.10"
dependencies = [
  "requests>=2",
  "Acme_Utils>=0.1.0",
  "acme-loose",
]

[project.optional-dependencies]
test = ["acme-testkit==0.0.1"]

[tool.other]
version = "untouched"
`
	deps := map[string]string{"acme-utils": "0.2.0", "acme-testkit": "0.0.2", "acme-loose": "1.0.0"}
	out := pinPyproject([]byte(in), "1.0.0", deps)

	want := `[project]
name = "acme-core"
version = "1.0.0"
requires-python = ">=3.10"
dependencies = [
  "requests>=2",
  "Acme_Utils>=0.2.0",
  "acme-loose",
]

[project.optional-dependencies]
test = ["acme-testkit==0.0.2"]

[tool.other]
version = "untouched"
`
	assert.Equal(t, want, string(out))
}

func TestPinManifest_WritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"a","version":"1.0.0"}`), 0o600))

	changed, err := PinManifest(path, monorepo.EcosystemNPM, "1.1.0", nil)
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a","version":"1.1.0"}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	changed, err = PinManifest(path, monorepo.EcosystemNPM, "1.1.0", nil)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = PinManifest(path, "maven", "1.0.0", nil)
	assert.Error(t, err)
	_, err = PinManifest(filepath.Join(dir, "missing.json"), monorepo.EcosystemNPM, "1.0.0", nil)
	assert.Error(t, err)
}

func TestRanges(t *testing.T) {
	assert.Equal(t, "^2.0.0", npmRange("^1.0.0", "2.0.0"))
	assert.Equal(t, "~2.0.0", npmRange("~1.0.0", "2.0.0"))
	assert.Equal(t, ">=2.0.0", npmRange(">=1.0.0", "2.0.0"))
	assert.Equal(t, "2.0.0", npmRange("1.0.0", "2.0.0"))
	assert.Equal(t, "workspace:^", npmRange("workspace:^", "2.0.0"))
	assert.Equal(t, "*", npmRange("*", "2.0.0"))

	assert.Equal(t, "=2.0.0", cargoRequirement("=1.0.0", "2.0.0"))
	assert.Equal(t, ">=2.0.0", cargoRequirement(">=1.0.0", "2.0.0"))
	assert.Equal(t, "2.0.0", cargoRequirement("1", "2.0.0"))
}
