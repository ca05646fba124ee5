package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
	"github.com/relicta-tech/releasekit/internal/fileutil"
)

const packageJSON = "package.json"

// packageManifest is the subset of package.json discovery needs.
type packageManifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Private              bool              `json:"private"`
	Workspaces           json.RawMessage   `json:"workspaces"`
	Dependencies         map[string]string `json:"dependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
}

// pnpmWorkspace is pnpm-workspace.yaml.
type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

func loadPackageJSON(path string) (*packageManifest, error) {
	const op = "discovery.loadPackageJSON"

	data, err := fileutil.ReadManifest(path)
	if err != nil {
		return nil, err
	}
	var m packageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, rperrors.DiscoveryWrap(err, op, fmt.Sprintf("failed to parse %s", path))
	}
	return &m, nil
}

// npmWorkspaceGlobs reads the "workspaces" field, which is either a list
// or an object with a "packages" list.
func npmWorkspaceGlobs(root string) ([]string, error) {
	const op = "discovery.npmWorkspaceGlobs"

	m, err := loadPackageJSON(filepath.Join(root, packageJSON))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, rperrors.NotFound(op, "no package.json at workspace root")
		}
		return nil, err
	}
	if len(m.Workspaces) == 0 {
		return nil, nil
	}

	var globs []string
	if err := json.Unmarshal(m.Workspaces, &globs); err == nil {
		return globs, nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(m.Workspaces, &obj); err != nil {
		return nil, rperrors.DiscoveryWrap(err, op, "invalid workspaces field in package.json")
	}
	return obj.Packages, nil
}

func pnpmWorkspaceGlobs(root string) ([]string, error) {
	const op = "discovery.pnpmWorkspaceGlobs"

	data, err := fileutil.ReadManifest(filepath.Join(root, "pnpm-workspace.yaml"))
	if err != nil {
		return nil, rperrors.IOWrap(err, op, "failed to read pnpm-workspace.yaml")
	}
	var ws pnpmWorkspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil, rperrors.DiscoveryWrap(err, op, "failed to parse pnpm-workspace.yaml")
	}
	return ws.Packages, nil
}

// readPackageJSON reads dir/package.json. Directories without one are
// not packages.
func readPackageJSON(dir string) (*manifest, error) {
	m, err := loadPackageJSON(filepath.Join(dir, packageJSON))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	out := &manifest{
		name:    m.Name,
		version: m.Version,
		private: m.Private,
		file:    packageJSON,
	}
	for _, deps := range []map[string]string{m.Dependencies, m.PeerDependencies, m.OptionalDependencies} {
		out.deps = append(out.deps, sortedKeys(deps)...)
	}
	out.devDeps = sortedKeys(m.DevDependencies)
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
