// Package discovery finds the packages of a workspace from its manifests.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// EcosystemAuto selects the ecosystem from the files found at the root.
const EcosystemAuto = "auto"

// Options configures discovery of one workspace.
type Options struct {
	// Root is the workspace directory.
	Root string
	// Ecosystem is npm, pnpm, cargo, python, or auto.
	Ecosystem string
	// Packages are directory globs relative to Root. When empty, the
	// ecosystem's own workspace declaration is used.
	Packages []string
	// RepoRoot makes package paths relative to the repository instead of
	// Root. Empty means Root.
	RepoRoot string
}

// manifestReader reads one package directory.
type manifestReader func(dir string) (*manifest, error)

// manifest is the ecosystem-neutral view of a package manifest.
type manifest struct {
	name        string
	version     string
	private     bool
	file        string
	deps        []string
	devDeps     []string
	dynamicVers bool
}

// Discover returns the workspace packages sorted by name. Internal
// dependencies are those naming another discovered package.
func Discover(opts Options) ([]monorepo.Package, error) {
	const op = "discovery.Discover"

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, rperrors.DiscoveryWrap(err, op, "failed to resolve workspace root")
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, rperrors.Wrap(err, rperrors.KindDiscovery, op, fmt.Sprintf("workspace root %s is not a directory", opts.Root))
	}

	eco := monorepo.Ecosystem(opts.Ecosystem)
	if opts.Ecosystem == "" || opts.Ecosystem == EcosystemAuto {
		if eco, err = Detect(root); err != nil {
			return nil, err
		}
	}

	var (
		globs []string
		read  manifestReader
	)
	switch eco {
	case monorepo.EcosystemNPM:
		globs, err = npmWorkspaceGlobs(root)
		read = readPackageJSON
	case monorepo.EcosystemPnpm:
		globs, err = pnpmWorkspaceGlobs(root)
		read = readPackageJSON
	case monorepo.EcosystemCargo:
		globs, err = cargoWorkspaceGlobs(root)
		read = readCargoToml(root)
	case monorepo.EcosystemPython:
		globs = []string{"packages/*"}
		read = readPyproject
	default:
		return nil, rperrors.New(rperrors.KindDiscovery, fmt.Sprintf("unsupported ecosystem %q", eco))
	}
	if err != nil {
		return nil, err
	}
	if len(opts.Packages) > 0 {
		globs = opts.Packages
	}

	dirs, err := expandGlobs(root, globs)
	if err != nil {
		return nil, err
	}

	base := root
	if opts.RepoRoot != "" {
		if base, err = filepath.Abs(opts.RepoRoot); err != nil {
			return nil, rperrors.DiscoveryWrap(err, op, "failed to resolve repository root")
		}
	}

	manifests := make(map[string]*manifest)
	paths := make(map[string]string)
	var problems []string
	for _, dir := range dirs {
		m, err := read(dir)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		rel, err := filepath.Rel(base, dir)
		if err != nil {
			return nil, rperrors.DiscoveryWrap(err, op, "failed to relativize package path")
		}
		switch {
		case m.name == "":
			problems = append(problems, fmt.Sprintf("%s: missing package name", m.file))
			continue
		case m.dynamicVers:
			problems = append(problems, fmt.Sprintf("%s: dynamic versions are not supported", m.file))
			continue
		}
		if prev, dup := paths[m.name]; dup {
			problems = append(problems, fmt.Sprintf("package %s declared in both %s and %s", m.name, prev, rel))
			continue
		}
		manifests[m.name] = m
		paths[m.name] = filepath.ToSlash(rel)
	}
	if len(problems) > 0 {
		return nil, rperrors.New(rperrors.KindDiscovery, strings.Join(problems, "; "))
	}

	pkgs := make([]monorepo.Package, 0, len(manifests))
	for name, m := range manifests {
		p := monorepo.Package{
			Name:        name,
			Version:     m.version,
			Path:        paths[name],
			Publishable: !m.private,
			Ecosystem:   eco,
			Manifest:    pathJoin(paths[name], m.file),
		}
		for _, dep := range m.deps {
			if _, ok := manifests[dep]; ok && dep != name {
				p.InternalDeps = appendUnique(p.InternalDeps, dep)
			} else if !ok {
				p.ExternalDeps = appendUnique(p.ExternalDeps, dep)
			}
		}
		for _, dep := range m.devDeps {
			if _, ok := manifests[dep]; !ok {
				p.ExternalDeps = appendUnique(p.ExternalDeps, dep)
			}
		}
		sort.Strings(p.InternalDeps)
		sort.Strings(p.ExternalDeps)
		pkgs = append(pkgs, p)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return pkgs, nil
}

// Detect picks the ecosystem from the manifests at root.
func Detect(root string) (monorepo.Ecosystem, error) {
	switch {
	case fileExists(root, "pnpm-workspace.yaml"):
		return monorepo.EcosystemPnpm, nil
	case fileExists(root, "package.json"):
		return monorepo.EcosystemNPM, nil
	case fileExists(root, "Cargo.toml"):
		return monorepo.EcosystemCargo, nil
	case fileExists(root, "pyproject.toml"), dirExists(root, "packages"):
		return monorepo.EcosystemPython, nil
	}
	return "", rperrors.New(rperrors.KindDiscovery, fmt.Sprintf("no supported workspace manifest found in %s", root))
}

// expandGlobs returns the sorted directories matched by globs. A glob
// prefixed with "!" removes matches.
func expandGlobs(root string, globs []string) ([]string, error) {
	const op = "discovery.expandGlobs"

	selected := make(map[string]bool)
	for _, g := range globs {
		exclude := strings.HasPrefix(g, "!")
		g = strings.TrimPrefix(g, "!")
		g = strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(g), "./"), "/")
		if strings.HasSuffix(g, "/**") {
			g = strings.TrimSuffix(g, "/**") + "/*"
		}

		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(g)))
		if err != nil {
			return nil, rperrors.DiscoveryWrap(err, op, fmt.Sprintf("invalid package glob %q", g))
		}
		for _, m := range matches {
			if !exclude {
				if info, err := os.Stat(m); err == nil && info.IsDir() {
					selected[m] = true
				}
				continue
			}
			delete(selected, m)
		}
	}

	dirs := make([]string, 0, len(selected))
	for d := range selected {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func fileExists(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}

func dirExists(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && info.IsDir()
}

func pathJoin(dir, file string) string {
	if dir == "" || dir == "." {
		return file
	}
	return dir + "/" + file
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
