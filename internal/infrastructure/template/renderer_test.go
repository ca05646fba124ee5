package template

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

type commandData struct {
	Name       string
	Version    string
	Prerelease bool
}

func TestNewRenderer_LoadsPresets(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for _, eco := range []string{"npm", "pnpm", "cargo", "python"} {
		for _, stage := range []string{"build", "publish", "poll", "verify"} {
			assert.True(t, r.Has(PresetName(eco, stage)), "%s/%s", eco, stage)
		}
	}
	assert.False(t, r.Has("npm/pin"))
	assert.Contains(t, r.Names(), "cargo/publish")
}

func TestRenderer_RenderPreset(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	ctx := context.Background()

	out, err := r.Render(ctx, "npm/poll", commandData{Name: "@scope/core", Version: "1.2.0"})
	require.NoError(t, err)
	assert.Equal(t, "npm view '@scope/core@1.2.0' version", out)

	out, err = r.Render(ctx, "npm/publish", commandData{Name: "core", Version: "2.0.0-rc1", Prerelease: true})
	require.NoError(t, err)
	assert.Equal(t, "npm publish --access public --tag next", out)

	out, err = r.Render(ctx, "npm/publish", commandData{Name: "core", Version: "2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "npm publish --access public", out)
}

func TestRenderer_RegisterOverridesPreset(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	require.NoError(t, r.Register("npm/publish", "echo {{ .Name | upper }} {{ title \"building\" }}"))
	out, err := r.Render(context.Background(), "npm/publish", commandData{Name: "core"})
	require.NoError(t, err)
	assert.Equal(t, "echo CORE Building", out)

	err = r.Register("bad", "{{ .Name ")
	assert.True(t, rperrors.IsKind(err, rperrors.KindTemplate))
}

func TestRenderer_Errors(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.Render(ctx, "missing/stage", nil)
	assert.True(t, rperrors.IsKind(err, rperrors.KindNotFound))

	_, err = r.RenderString(ctx, "{{ .Nope }}", commandData{})
	assert.True(t, rperrors.IsKind(err, rperrors.KindTemplate))

	_, err = r.RenderString(ctx, "{{ .missing }}", map[string]string{})
	assert.Error(t, err)

	out, err := r.RenderString(ctx, "{{ default \"latest\" .Version }}", commandData{})
	require.NoError(t, err)
	assert.Equal(t, "latest", out)
}

func TestRenderer_Timeout(t *testing.T) {
	r, err := NewRenderer(WithExecutionTimeout(10 * time.Millisecond))
	require.NoError(t, err)

	slow := map[string]any{"wait": func() string {
		time.Sleep(200 * time.Millisecond)
		return ""
	}}
	_, err = r.RenderString(context.Background(), "{{ call .wait }}", slow)
	assert.True(t, rperrors.IsKind(err, rperrors.KindTimeout))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "''", ShellQuote(""))
	assert.Equal(t, "'plain'", ShellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, ShellQuote("it's"))
	assert.Equal(t, "'$(rm -rf /)'", ShellQuote("$(rm -rf /)"))
}
