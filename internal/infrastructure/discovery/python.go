package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
	"github.com/relicta-tech/releasekit/internal/fileutil"
)

const pyprojectToml = "pyproject.toml"

// privateClassifier marks a project that must never be uploaded.
const privateClassifier = "Private :: Do Not Upload"

// pyprojectManifest is the subset of pyproject.toml discovery needs.
type pyprojectManifest struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		Dynamic              []string            `toml:"dynamic"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		Classifiers          []string            `toml:"classifiers"`
	} `toml:"project"`
}

var (
	requirementName = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)`)
	nameSeparators  = regexp.MustCompile(`[-_.]+`)
)

// NormalizePythonName applies PEP 503 name normalization.
func NormalizePythonName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

func readPyproject(dir string) (*manifest, error) {
	const op = "discovery.readPyproject"

	path := filepath.Join(dir, pyprojectToml)
	data, err := fileutil.ReadManifest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, rperrors.IOWrap(err, op, fmt.Sprintf("failed to read %s", path))
	}

	var m pyprojectManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, rperrors.DiscoveryWrap(err, op, fmt.Sprintf("failed to parse %s", path))
	}

	out := &manifest{
		name:        NormalizePythonName(m.Project.Name),
		version:     m.Project.Version,
		private:     slices.Contains(m.Project.Classifiers, privateClassifier),
		file:        pyprojectToml,
		dynamicVers: slices.Contains(m.Project.Dynamic, "version"),
	}
	out.deps = requirementNames(m.Project.Dependencies)
	for _, extra := range sortedKeys(m.Project.OptionalDependencies) {
		out.devDeps = append(out.devDeps, requirementNames(m.Project.OptionalDependencies[extra])...)
	}
	return out, nil
}

func requirementNames(reqs []string) []string {
	names := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if m := requirementName.FindStringSubmatch(r); m != nil {
			names = append(names, NormalizePythonName(m[1]))
		}
	}
	return names
}
