package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
	"github.com/relicta-tech/releasekit/internal/fileutil"
)

const cargoToml = "Cargo.toml"

// cargoManifest is the subset of Cargo.toml discovery needs.
type cargoManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"`
		Publish any    `toml:"publish"`
	} `toml:"package"`
	Workspace struct {
		Members []string `toml:"members"`
		Exclude []string `toml:"exclude"`
		Package struct {
			Version string `toml:"version"`
		} `toml:"package"`
	} `toml:"workspace"`
	Dependencies      map[string]any `toml:"dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
}

func loadCargoToml(path string) (*cargoManifest, error) {
	const op = "discovery.loadCargoToml"

	data, err := fileutil.ReadManifest(path)
	if err != nil {
		return nil, err
	}
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, rperrors.DiscoveryWrap(err, op, fmt.Sprintf("failed to parse %s", path))
	}
	return &m, nil
}

func cargoWorkspaceGlobs(root string) ([]string, error) {
	const op = "discovery.cargoWorkspaceGlobs"

	m, err := loadCargoToml(filepath.Join(root, cargoToml))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, rperrors.NotFound(op, "no Cargo.toml at workspace root")
		}
		return nil, err
	}
	globs := append([]string(nil), m.Workspace.Members...)
	for _, ex := range m.Workspace.Exclude {
		globs = append(globs, "!"+ex)
	}
	return globs, nil
}

// readCargoToml returns a reader resolving `version.workspace = true`
// against the root manifest.
func readCargoToml(root string) manifestReader {
	return func(dir string) (*manifest, error) {
		m, err := loadCargoToml(filepath.Join(dir, cargoToml))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		if m.Package.Name == "" {
			return nil, nil
		}

		out := &manifest{
			name: m.Package.Name,
			file: cargoToml,
		}
		switch v := m.Package.Version.(type) {
		case string:
			out.version = v
		case map[string]any:
			if inherit, _ := v["workspace"].(bool); inherit {
				rootManifest, err := loadCargoToml(filepath.Join(root, cargoToml))
				if err != nil {
					return nil, err
				}
				out.version = rootManifest.Workspace.Package.Version
			}
		}
		switch p := m.Package.Publish.(type) {
		case bool:
			out.private = !p
		case []any:
			out.private = len(p) == 0
		}

		out.deps = append(cargoDepNames(m.Dependencies), cargoDepNames(m.BuildDependencies)...)
		out.devDeps = cargoDepNames(m.DevDependencies)
		return out, nil
	}
}

// cargoDepNames returns the crate names of a dependency table, following
// `package = "..."` renames.
func cargoDepNames(deps map[string]any) []string {
	names := make([]string, 0, len(deps))
	for _, key := range sortedKeys(deps) {
		name := key
		if spec, ok := deps[key].(map[string]any); ok {
			if renamed, ok := spec["package"].(string); ok && renamed != "" {
				name = renamed
			}
		}
		names = append(names, name)
	}
	return names
}
