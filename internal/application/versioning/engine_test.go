package versioning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	"github.com/relicta-tech/releasekit/internal/domain/version"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

type logCall struct {
	since string
	paths []string
}

type fakeVCS struct {
	mu     sync.Mutex
	logs   map[string][]string
	tags   map[string]string
	calls  []logCall
	logErr error
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{logs: map[string][]string{}, tags: map[string]string{}}
}

func (f *fakeVCS) commit(path string, lines ...string) {
	f.logs[path] = append(f.logs[path], lines...)
}

func (f *fakeVCS) Log(_ context.Context, since string, paths []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, logCall{since: since, paths: paths})
	if f.logErr != nil {
		return nil, f.logErr
	}
	var out []string
	for _, p := range paths {
		out = append(out, f.logs[p]...)
	}
	return out, nil
}

func (f *fakeVCS) TagExists(_ context.Context, name string) (bool, error) {
	_, ok := f.tags[name]
	return ok, nil
}

func (f *fakeVCS) ResolveTagToSha(_ context.Context, tag string) (string, error) {
	sha, ok := f.tags[tag]
	if !ok {
		return "", errors.New("no such tag")
	}
	return sha, nil
}

func pkg(name, ver string, deps ...string) monorepo.Package {
	return monorepo.Package{Name: name, Version: ver, Path: name, InternalDeps: deps, Publishable: true}
}

func byName(results []BumpResult) map[string]BumpResult {
	m := make(map[string]BumpResult, len(results))
	for _, r := range results {
		m[r.Name] = r
	}
	return m
}

func TestComputeBumps_DirectBumps(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "a1 fix: null deref", "a2 feat(api): add endpoint", "a3 chore: bump deps")
	vcs.commit("b", "b1 docs: readme", "b2 Merge branch 'main'")
	vcs.commit("c", "c1 perf: faster")

	results, err := NewEngine(vcs).ComputeBumps(context.Background(),
		[]monorepo.Package{pkg("a", "1.2.3"), pkg("b", "1.0.0"), pkg("c", "2.0.0")}, nil, Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].Name)
	assert.Equal(t, version.BumpMinor, results[0].Bump)
	assert.Equal(t, "1.3.0", results[0].NewVersion)
	assert.Equal(t, "feat(api): add endpoint", results[0].Reason)
	assert.Equal(t, 3, results[0].Commits)

	assert.Equal(t, version.BumpNone, results[1].Bump)
	assert.True(t, results[1].Skipped)
	assert.Equal(t, "1.0.0", results[1].NewVersion)
	assert.Equal(t, ReasonNoChanges, results[1].Reason)
	assert.Equal(t, 1, results[1].Commits, "non-conventional commits contribute nothing")

	assert.Equal(t, version.BumpPatch, results[2].Bump)
	assert.Equal(t, "2.0.1", results[2].NewVersion)
}

func TestComputeBumps_MajorOnZero(t *testing.T) {
	tests := []struct {
		name        string
		current     string
		majorOnZero bool
		wantBump    version.BumpType
		wantVersion string
	}{
		{"zero major downgraded", "0.5.0", false, version.BumpMinor, "0.6.0"},
		{"zero major allowed", "0.5.0", true, version.BumpMajor, "1.0.0"},
		{"stable ignores flag off", "1.2.0", false, version.BumpMajor, "2.0.0"},
		{"stable ignores flag on", "1.2.0", true, version.BumpMajor, "2.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vcs := newFakeVCS()
			vcs.commit("a", "s1 feat!: new config format")
			results, err := NewEngine(vcs).ComputeBumps(context.Background(),
				[]monorepo.Package{pkg("a", tt.current)}, nil, Options{MajorOnZero: tt.majorOnZero})
			require.NoError(t, err)
			assert.Equal(t, tt.wantBump, results[0].Bump)
			assert.Equal(t, tt.wantVersion, results[0].NewVersion)
		})
	}
}

func TestComputeBumps_Propagation(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "s1 feat: shiny")
	pkgs := []monorepo.Package{pkg("c", "1.0.0", "b"), pkg("b", "1.0.0", "a"), pkg("a", "1.0.0")}
	graph, err := monorepo.BuildGraph(pkgs)
	require.NoError(t, err)

	results, err := NewEngine(vcs).ComputeBumps(context.Background(), pkgs, graph, Options{})
	require.NoError(t, err)
	got := byName(results)

	assert.Equal(t, []string{"c", "b", "a"}, []string{results[0].Name, results[1].Name, results[2].Name})
	assert.Equal(t, version.BumpMinor, got["a"].Bump)
	assert.Equal(t, version.BumpPatch, got["b"].Bump)
	assert.Contains(t, got["b"].Reason, "a")
	assert.Equal(t, "dependency a bumped", got["b"].Reason)
	assert.Equal(t, version.BumpPatch, got["c"].Bump)
	assert.Equal(t, "dependency b bumped", got["c"].Reason)
	assert.False(t, got["c"].Skipped)
}

func TestComputeBumps_PropagationNeverDowngrades(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "s1 fix: bug")
	vcs.commit("b", "s2 feat: feature")
	pkgs := []monorepo.Package{pkg("a", "1.0.0"), pkg("b", "1.0.0", "a")}
	graph, err := monorepo.BuildGraph(pkgs)
	require.NoError(t, err)

	results, err := NewEngine(vcs).ComputeBumps(context.Background(), pkgs, graph, Options{})
	require.NoError(t, err)
	got := byName(results)
	assert.Equal(t, version.BumpMinor, got["b"].Bump)
	assert.Equal(t, "feat: feature", got["b"].Reason)
}

func TestComputeBumps_PropagationDisabledMatchesNoGraph(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "s1 feat: shiny")
	pkgs := []monorepo.Package{pkg("a", "1.0.0"), pkg("b", "1.0.0", "a")}
	graph, err := monorepo.BuildGraph(pkgs)
	require.NoError(t, err)

	engine := NewEngine(vcs)
	disabled, err := engine.ComputeBumps(context.Background(), pkgs, graph, Options{DisablePropagation: true})
	require.NoError(t, err)
	noGraph, err := engine.ComputeBumps(context.Background(), pkgs, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, noGraph, disabled)
	assert.True(t, byName(disabled)["b"].Skipped)
}

func TestComputeBumps_Synchronized(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "s1 feat: feature in a")
	vcs.commit("b", "s2 fix: fix in b")
	private := pkg("internal-tools", "0.1.0")
	private.Publishable = false
	pkgs := []monorepo.Package{pkg("a", "1.0.0"), pkg("b", "1.0.0"), pkg("c", "1.0.0"), private}

	results, err := NewEngine(vcs).ComputeBumps(context.Background(), pkgs, nil, Options{Synchronized: true})
	require.NoError(t, err)
	got := byName(results)

	assert.Equal(t, version.BumpMinor, got["a"].Bump)
	assert.Equal(t, version.BumpMinor, got["b"].Bump)
	assert.Equal(t, "fix: fix in b", got["b"].Reason)
	assert.Equal(t, version.BumpMinor, got["c"].Bump)
	assert.Equal(t, "synchronized: feat: feature in a", got["c"].Reason)
	assert.Equal(t, "1.1.0", got["c"].NewVersion)
	assert.True(t, got["internal-tools"].Skipped)
}

func TestComputeBumps_SynchronizedNothingChanged(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "s1 chore: tidy")
	results, err := NewEngine(vcs).ComputeBumps(context.Background(),
		[]monorepo.Package{pkg("a", "1.0.0"), pkg("b", "1.0.0")}, nil, Options{Synchronized: true})
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Skipped, r.Name)
		assert.Equal(t, version.BumpNone, r.Bump)
	}
}

func TestComputeBumps_ForceUnchanged(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "s1 feat: x")
	results, err := NewEngine(vcs).ComputeBumps(context.Background(),
		[]monorepo.Package{pkg("a", "1.0.0"), pkg("b", "1.0.0")}, nil, Options{ForceUnchanged: true})
	require.NoError(t, err)
	got := byName(results)
	assert.Equal(t, version.BumpMinor, got["a"].Bump)
	assert.Equal(t, version.BumpPatch, got["b"].Bump)
	assert.Equal(t, ReasonForced, got["b"].Reason)
	assert.False(t, got["b"].Skipped)
}

func TestComputeBumps_Prerelease(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("a", "s1 feat: x")
	results, err := NewEngine(vcs).ComputeBumps(context.Background(),
		[]monorepo.Package{pkg("a", "1.2.3-rc1"), pkg("b", "1.0.0")}, nil, Options{PrereleaseLabel: "rc"})
	require.NoError(t, err)
	assert.Equal(t, "1.3.0-rc1", results[0].NewVersion)
	assert.Equal(t, "1.0.0", results[1].NewVersion)
}

func TestComputeBumps_InvalidVersions(t *testing.T) {
	vcs := newFakeVCS()
	_, err := NewEngine(vcs).ComputeBumps(context.Background(),
		[]monorepo.Package{pkg("a", "1.0"), pkg("b", "1.0.0"), pkg("c", "x.y.z")}, nil, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, version.ErrInvalidVersion)
	assert.True(t, rperrors.IsKind(err, rperrors.KindVersion))
	assert.Contains(t, err.Error(), "package a")
	assert.Contains(t, err.Error(), "package c")
	assert.Empty(t, vcs.calls, "no history is read when versions are invalid")
}

func TestComputeBumps_HistoryCutoff(t *testing.T) {
	vcs := newFakeVCS()
	vcs.tags["a@1.0.0"] = "sha-a"

	pkgs := []monorepo.Package{pkg("a", "1.0.0"), pkg("b", "2.0.0")}
	results, err := NewEngine(vcs).ComputeBumps(context.Background(), pkgs, nil, Options{BootstrapSHA: "boot"})
	require.NoError(t, err)
	assert.Equal(t, "a@1.0.0", results[0].Since)
	assert.Equal(t, "boot", results[1].Since)

	vcs.calls = nil
	results, err = NewEngine(vcs).ComputeBumps(context.Background(), pkgs, nil, Options{Since: "explicit", BootstrapSHA: "boot"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "explicit", r.Since)
	}
}

func TestComputeBumps_UnionsPathFilters(t *testing.T) {
	vcs := newFakeVCS()
	vcs.commit("pkg/a", "s1 fix: one", "s2 feat: shared")
	vcs.commit("shared/a", "s2 feat: shared", "s3 fix: two")

	p := pkg("a", "1.0.0")
	p.Paths = []string{"pkg/a", "shared/a"}
	results, err := NewEngine(vcs).ComputeBumps(context.Background(), []monorepo.Package{p}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, results[0].Commits)
	assert.Equal(t, version.BumpMinor, results[0].Bump)
	assert.Len(t, vcs.calls, 2)
}

func TestComputeBumps_VCSError(t *testing.T) {
	vcs := newFakeVCS()
	vcs.logErr = errors.New("repository corrupt")
	_, err := NewEngine(vcs).ComputeBumps(context.Background(), []monorepo.Package{pkg("a", "1.0.0")}, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository corrupt")
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, Options{}.Validate())
	assert.NoError(t, Options{PrereleaseLabel: "beta", TagFormat: "{name}-v{version}"}.Validate())
	assert.Error(t, Options{PrereleaseLabel: "1rc"}.Validate())
	assert.Error(t, Options{PrereleaseLabel: "rc.1"}.Validate())
	assert.Error(t, Options{TagFormat: "v{version}"}.Validate())
	assert.Error(t, Options{TagFormat: "{name}"}.Validate())
}
