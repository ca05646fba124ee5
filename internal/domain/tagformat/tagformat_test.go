package tagformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	assert.Equal(t, "genkit@0.5.0", Render(DefaultPackageFormat, "genkit", "0.5.0"))
	assert.Equal(t, "py/v1.2.3", Render("py/v{version}", "ignored", "1.2.3"))
	assert.Equal(t, "@scope/core-v2.0.0", Render("{name}-v{version}", "@scope/core", "2.0.0"))
}

func TestPattern_Match(t *testing.T) {
	tests := []struct {
		format      string
		tag         string
		wantName    string
		wantVersion string
		wantOK      bool
	}{
		{"{name}@{version}", "genkit@0.5.0", "genkit", "0.5.0", true},
		{"{name}@{version}", "@genkit-ai/core@1.0.0-rc.1", "@genkit-ai/core", "1.0.0-rc.1", true},
		{"{name}@{version}", "random-tag", "", "", false},
		{"{name}-v{version}", "my-pkg-v1.2.0", "my-pkg", "1.2.0", true},
		{"{name}-{version}", "my-pkg-1.2.0", "my-pkg", "1.2.0", true},
		{"py/v{version}", "py/v0.5.0", "", "0.5.0", true},
		{"py/v{version}", "js/v0.5.0", "", "", false},
		{"py/v{version}", "py/v0.5", "", "", false},
		{"v{version}", "v1.2.3+build.5", "", "1.2.3+build.5", true},
		{"release.{version}", "releaseX1.0.0", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.format+"_"+tt.tag, func(t *testing.T) {
			p, err := Compile(tt.format)
			require.NoError(t, err)
			name, ver, ok := p.Match(tt.tag)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantVersion, ver)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile("{name}")
	assert.ErrorIs(t, err, ErrMissingPlaceholder)

	_, err = Compile("{version}-{version}")
	assert.Error(t, err)

	p, err := Compile("v{version}")
	require.NoError(t, err)
	assert.False(t, p.HasName())
	assert.Equal(t, "v{version}", p.Format())
}
