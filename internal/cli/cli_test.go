package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/releasekit/internal/application/bootstrap"
	"github.com/relicta-tech/releasekit/internal/application/versioning"
	"github.com/relicta-tech/releasekit/internal/config"
	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
	"github.com/relicta-tech/releasekit/internal/domain/version"
)

// withConfig installs c as the global config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prevCfg, prevNames := cfg, workspaceNames
	cfg = c
	t.Cleanup(func() {
		cfg, workspaceNames = prevCfg, prevNames
	})
}

func multiWorkspaceConfig() *config.Config {
	c := config.DefaultConfig()
	c.Workspaces = map[string]config.WorkspaceConfig{
		"js":     {Root: "js"},
		"python": {Root: "py"},
		"rust":   {Root: "rust"},
	}
	return c
}

func TestSelectedLabels(t *testing.T) {
	withConfig(t, multiWorkspaceConfig())

	workspaceNames = nil
	labels, err := selectedLabels()
	require.NoError(t, err)
	assert.Equal(t, []string{"js", "python", "rust"}, labels)

	workspaceNames = []string{"Rust", "js", "rust"}
	labels, err = selectedLabels()
	require.NoError(t, err)
	assert.Equal(t, []string{"js", "rust"}, labels)

	workspaceNames = []string{"pyhton"}
	_, err = selectedLabels()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown workspace "pyhton"`)
}

func TestSuggest(t *testing.T) {
	candidates := []string{"@acme/core", "@acme/web", "genkit"}

	assert.Contains(t, suggest("core", candidates), "@acme/core")
	assert.Contains(t, suggest("acmeweb", candidates), "@acme/web")
	assert.Empty(t, suggest("zzz", candidates))
}

func TestSelectPackages(t *testing.T) {
	results := []versioning.BumpResult{
		{Name: "a", Bump: version.BumpMinor, CurrentVersion: "1.0.0", NewVersion: "1.1.0"},
		{Name: "b", Bump: version.BumpPatch, CurrentVersion: "1.0.0", NewVersion: "1.0.1"},
		{Name: "c", Bump: version.BumpPatch, CurrentVersion: "2.0.0", NewVersion: "2.0.1"},
		{Name: "d", Bump: version.BumpNone, CurrentVersion: "0.1.0", NewVersion: "0.1.0", Skipped: true, Reason: versioning.ReasonNoChanges},
	}
	ws := config.WorkspaceConfig{Exclude: []string{"b"}}

	got := selectPackages(results, ws, []string{"a", "b", "d"})
	require.Len(t, got, 4)

	assert.False(t, got[0].Skipped)
	assert.Equal(t, "1.1.0", got[0].NewVersion)

	assert.True(t, got[1].Skipped)
	assert.Equal(t, reasonExcluded, got[1].Reason)
	assert.Equal(t, "1.0.0", got[1].NewVersion)

	assert.True(t, got[2].Skipped)
	assert.Equal(t, reasonNotSelected, got[2].Reason)

	assert.Equal(t, versioning.ReasonNoChanges, got[3].Reason)

	// The input is left untouched.
	assert.False(t, results[1].Skipped)

	all := selectPackages(results, config.WorkspaceConfig{}, nil)
	assert.False(t, all[2].Skipped)
}

func TestCheckOnly(t *testing.T) {
	names := []string{"@acme/core", "@acme/web"}
	require.NoError(t, checkOnly(nil, names))
	require.NoError(t, checkOnly([]string{"@acme/web"}, names))

	err := checkOnly([]string{"@acme/wbe"}, names)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown package "@acme/wbe"`)
}

func testGraph(t *testing.T) *monorepo.DependencyGraph {
	t.Helper()
	g, err := monorepo.BuildGraph([]monorepo.Package{
		{Name: "core", Version: "1.0.0", Path: "packages/core", Publishable: true, Ecosystem: monorepo.EcosystemNPM},
		{Name: "web", Version: "0.2.0", Path: "packages/web", Publishable: true, Ecosystem: monorepo.EcosystemNPM, InternalDeps: []string{"core"}},
		{Name: "docs", Version: "0.0.1", Path: "packages/docs", Ecosystem: monorepo.EcosystemNPM, InternalDeps: []string{"web"}},
	})
	require.NoError(t, err)
	return g
}

func TestWriteGraph(t *testing.T) {
	views := []graphView{newGraphView("js", testGraph(t))}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeGraph(&buf, views, "text"))
		out := buf.String()
		assert.Contains(t, out, "js")
		assert.Contains(t, out, "level 0: core")
		assert.Contains(t, out, "level 1: web")
		assert.Contains(t, out, "level 2: docs")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeGraph(&buf, views, "json"))
		var got []graphView
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, [][]string{{"core"}, {"web"}, {"docs"}}, got[0].Levels)
		require.Len(t, got[0].Packages, 3)
		assert.Equal(t, []string{"web"}, got[0].Packages[0].Dependents)
		assert.Equal(t, 1, got[0].Packages[1].Level)
		assert.False(t, got[0].Packages[2].Publishable)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeGraph(&buf, views, "yaml"))
		var got []graphView
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "js", got[0].Workspace)
		assert.Equal(t, []string{"core"}, got[0].Packages[1].Dependencies)
	})

	t.Run("dot", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeGraph(&buf, views, "dot"))
		out := buf.String()
		assert.Contains(t, out, "digraph releasekit {")
		assert.Contains(t, out, `"js/web" -> "js/core";`)
		assert.Contains(t, out, `"js/docs" [style=dashed];`)
	})

	t.Run("unknown", func(t *testing.T) {
		err := writeGraph(io.Discard, views, "svg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "svg")
	})
}

func TestControlWatcher(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "control")
	ctl := domain.NewController()

	w, err := startControlWatcher(dir, ctl, log.New(io.Discard))
	require.NoError(t, err)
	defer w.Stop()

	state := func(want domain.SchedulerState) func() bool {
		return func() bool { return ctl.State() == want }
	}

	pause := filepath.Join(dir, pauseFile)
	require.NoError(t, os.WriteFile(pause, nil, 0o644))
	require.Eventually(t, state(domain.SchedulerPaused), 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(pause))
	require.Eventually(t, state(domain.SchedulerRunning), 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, cancelFile), nil, 0o644))
	require.Eventually(t, state(domain.SchedulerCancelled), 5*time.Second, 10*time.Millisecond)
}

func TestControlWatcher_ExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pauseFile), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, cancelFile), nil, 0o644))
	ctl := domain.NewController()

	w, err := startControlWatcher(dir, ctl, log.New(io.Discard))
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, domain.SchedulerPaused, ctl.State())
	assert.NoFileExists(t, filepath.Join(dir, cancelFile))
}

func TestWriteBootstrap(t *testing.T) {
	out := &bootstrap.Output{
		Latest: map[string]bootstrap.ClassifiedTag{
			"js": {Tag: "@acme/core@1.2.0", WorkspaceLabel: "js", CommitSHA: "0123456789abcdef0123"},
		},
		Unclassified: []string{"random"},
		Written:      map[string]string{"js": "0123456789abcdef0123"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeBootstrap(&buf, []string{"js", "rust"}, out, "releasekit.yaml", false))
	text := buf.String()
	assert.Contains(t, text, "@acme/core@1.2.0")
	assert.Contains(t, text, "0123456789ab")
	assert.NotContains(t, text, "0123456789abc")
	assert.Contains(t, text, "no release tags found")
	assert.Contains(t, text, "1 tags matched no workspace")
	assert.Contains(t, text, "wrote 1 bootstrap shas to releasekit.yaml")

	buf.Reset()
	require.NoError(t, writeBootstrap(&buf, []string{"js"}, out, "releasekit.yaml", true))
	assert.Contains(t, buf.String(), "dry run: config not written")
}

func TestWritePlan(t *testing.T) {
	entries := planEntries("js", []versioning.BumpResult{
		{Name: "@acme/core", Bump: version.BumpMinor, CurrentVersion: "1.0.0", NewVersion: "1.1.0", Reason: "feat(core): add client", Since: "@acme/core@1.0.0", Commits: 1},
		{Name: "@acme/web", Bump: version.BumpNone, CurrentVersion: "1.0.0", NewVersion: "1.0.0", Skipped: true, Reason: versioning.ReasonNoChanges},
	})
	require.Len(t, entries, 2)
	assert.Equal(t, "js", entries[0].Workspace)
	assert.Equal(t, "minor", entries[0].Bump)
	assert.Equal(t, "none", entries[1].Bump)

	var buf bytes.Buffer
	require.NoError(t, writePlan(&buf, entries, true))
	var decoded []planEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, entries, decoded)

	buf.Reset()
	require.NoError(t, writePlan(&buf, entries, false))
	out := buf.String()
	assert.Contains(t, out, "@acme/core")
	assert.Contains(t, out, "1.1.0")
	assert.Contains(t, out, "1 of 2 packages will be released")
}

func TestWritePlan_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePlan(&buf, nil, false))
	assert.Equal(t, "no packages found\n", buf.String())
}
