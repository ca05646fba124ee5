package monorepo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkg(name string, deps ...string) Package {
	return Package{Name: name, Version: "1.0.0", Path: "packages/" + name, InternalDeps: deps, Publishable: true}
}

func levelIndex(g *DependencyGraph) map[string]int {
	out := make(map[string]int, g.Len())
	for lvl, names := range g.Levels() {
		for _, name := range names {
			out[name] = lvl
		}
	}
	return out
}

func TestBuildGraph_Levels(t *testing.T) {
	g, err := BuildGraph([]Package{
		pkg("app", "core", "plugin-b"),
		pkg("plugin-b", "core"),
		pkg("plugin-a", "core"),
		pkg("core"),
		pkg("util"),
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"core", "util"},
		{"plugin-a", "plugin-b"},
		{"app"},
	}, g.Levels())
	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []string{"core", "plugin-b"}, g.Dependencies("app"))
	assert.Equal(t, []string{"app", "plugin-a", "plugin-b"}, g.Dependents("core"))

	assert.Equal(t, 2, levelIndex(g)["app"])
	_, ok := g.Package("missing")
	assert.False(t, ok)
}

func TestBuildGraph_EveryDependencyInLowerLevel(t *testing.T) {
	pkgs := []Package{
		pkg("a"),
		pkg("b", "a"),
		pkg("c", "a", "b"),
		pkg("d", "c"),
		pkg("e", "b", "d"),
		pkg("f"),
		pkg("g", "f", "a"),
	}
	g, err := BuildGraph(pkgs)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, level := range g.Levels() {
		for _, name := range level {
			seen[name]++
		}
	}
	levels := levelIndex(g)
	for _, p := range pkgs {
		assert.Equal(t, 1, seen[p.Name], "package %s must appear in exactly one level", p.Name)
		for _, dep := range p.InternalDeps {
			assert.Less(t, levels[dep], levels[p.Name], "%s must be below its dependent %s", dep, p.Name)
		}
	}
}

func TestBuildGraph_ExternalDepsIgnored(t *testing.T) {
	g, err := BuildGraph([]Package{
		pkg("a", "left-pad"),
		pkg("b", "a", "react"),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, g.Levels())
	assert.Empty(t, g.Dependencies("a"))
}

func TestBuildGraph_Cycle(t *testing.T) {
	tests := []struct {
		name string
		pkgs []Package
		want []string
	}{
		{
			name: "two node cycle",
			pkgs: []Package{pkg("a", "b"), pkg("b", "a")},
			want: []string{"a", "b", "a"},
		},
		{
			name: "self dependency",
			pkgs: []Package{pkg("a", "a"), pkg("b")},
			want: []string{"a", "a"},
		},
		{
			name: "cycle downstream of a valid prefix",
			pkgs: []Package{pkg("root"), pkg("x", "root", "z"), pkg("y", "x"), pkg("z", "y")},
			want: []string{"x", "z", "y", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph(tt.pkgs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCycle))

			var cycleErr *CycleError
			require.ErrorAs(t, err, &cycleErr)
			assert.Equal(t, tt.want, cycleErr.Cycle)
			assert.Contains(t, err.Error(), "dependency cycle")
		})
	}
}

func TestBuildGraph_Duplicate(t *testing.T) {
	_, err := BuildGraph([]Package{pkg("a"), pkg("a")})
	assert.ErrorIs(t, err, ErrDuplicatePackage)
}

func TestBuildGraph_Empty(t *testing.T) {
	g, err := BuildGraph(nil)
	require.NoError(t, err)
	assert.Empty(t, g.Levels())
	assert.Empty(t, g.Names())
}

func TestBuildGraph_Deterministic(t *testing.T) {
	pkgs := []Package{pkg("zeta"), pkg("alpha"), pkg("mid", "zeta", "alpha"), pkg("beta")}
	first, err := BuildGraph(pkgs)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := BuildGraph(pkgs)
		require.NoError(t, err)
		assert.Equal(t, first.Levels(), again.Levels())
	}
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, first.Levels()[0])
}

func TestPackage_HistoryPaths(t *testing.T) {
	assert.Equal(t, []string{"packages/a"}, pkg("a").HistoryPaths())

	p := pkg("a")
	p.Paths = []string{"packages/a", "shared/a"}
	assert.Equal(t, []string{"packages/a", "shared/a"}, p.HistoryPaths())

	assert.Nil(t, Package{Name: "root"}.HistoryPaths())
}
