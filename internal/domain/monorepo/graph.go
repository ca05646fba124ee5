package monorepo

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// DependencyGraph is an acyclic graph over the discovered packages with a
// precomputed topological leveling. It is read-only once built.
type DependencyGraph struct {
	packages map[string]Package
	// deps maps name to the internal deps present in the graph.
	deps map[string][]string
	// dependents is the reverse of deps.
	dependents map[string][]string
	levels     [][]string
}

// BuildGraph levels packages with Kahn's algorithm. Level 0 holds packages
// without internal deps; level k holds packages whose deps all sit in
// levels below k. Names within a level are sorted. Dependencies on names
// outside packages are treated as external.
func BuildGraph(packages []Package) (*DependencyGraph, error) {
	g := &DependencyGraph{
		packages:   make(map[string]Package, len(packages)),
		deps:       make(map[string][]string, len(packages)),
		dependents: make(map[string][]string, len(packages)),
	}

	for _, p := range packages {
		if _, ok := g.packages[p.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePackage, p.Name)
		}
		g.packages[p.Name] = p
	}

	inDegree := make(map[string]int, len(packages))
	for _, p := range packages {
		seen := make(map[string]bool, len(p.InternalDeps))
		for _, dep := range p.InternalDeps {
			if _, ok := g.packages[dep]; !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			g.deps[p.Name] = append(g.deps[p.Name], dep)
			g.dependents[dep] = append(g.dependents[dep], p.Name)
		}
		inDegree[p.Name] = len(g.deps[p.Name])
	}
	for name := range g.packages {
		sort.Strings(g.deps[name])
		sort.Strings(g.dependents[name])
	}

	var current []string
	for name, deg := range inDegree {
		if deg == 0 {
			current = append(current, name)
		}
	}

	placed := 0
	for len(current) > 0 {
		sort.Strings(current)
		g.levels = append(g.levels, current)
		placed += len(current)

		var next []string
		for _, name := range current {
			for _, dependent := range g.dependents[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if placed != len(g.packages) {
		return nil, &CycleError{Cycle: g.findCycle(inDegree)}
	}
	return g, nil
}

// findCycle walks unresolved packages along unresolved deps until a name
// repeats. Every unresolved package has at least one unresolved dep, so
// the walk always closes a loop.
func (g *DependencyGraph) findCycle(inDegree map[string]int) []string {
	var remaining []string
	for name, deg := range inDegree {
		if deg > 0 {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)

	pos := make(map[string]int)
	var path []string
	for name := remaining[0]; ; {
		if i, ok := pos[name]; ok {
			return append(slices.Clone(path[i:]), name)
		}
		pos[name] = len(path)
		path = append(path, name)
		for _, dep := range g.deps[name] {
			if inDegree[dep] > 0 {
				name = dep
				break
			}
		}
	}
}

// Levels returns a copy of the topological levels.
func (g *DependencyGraph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = slices.Clone(level)
	}
	return out
}

// Len returns the number of packages in the graph.
func (g *DependencyGraph) Len() int {
	return len(g.packages)
}

// Package returns the package with the given name.
func (g *DependencyGraph) Package(name string) (Package, bool) {
	p, ok := g.packages[name]
	return p, ok
}

// Names returns all package names sorted.
func (g *DependencyGraph) Names() []string {
	return slices.Sorted(maps.Keys(g.packages))
}

// Dependencies returns the internal deps of name present in the graph.
func (g *DependencyGraph) Dependencies(name string) []string {
	return slices.Clone(g.deps[name])
}

// Dependents returns the packages that depend directly on name.
func (g *DependencyGraph) Dependents(name string) []string {
	return slices.Clone(g.dependents[name])
}
