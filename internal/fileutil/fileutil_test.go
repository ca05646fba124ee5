package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileLimited(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		maxSize     int64
		errContains string
	}{
		{name: "small manifest", content: `{"name":"@acme/core"}`, maxSize: 100},
		{name: "exact limit", content: "12345", maxSize: 5},
		{name: "over limit", content: "[package]\nname = \"genkit\"\n", maxSize: 10, errContains: "exceeds maximum"},
		{name: "empty", content: "", maxSize: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "manifest")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			data, err := ReadFileLimited(path, tt.maxSize)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

func TestReadFileLimited_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFileLimited(filepath.Join(dir, "missing.json"), 10)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = ReadFileLimited(dir, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestReadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cargo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[package]\nname = \"genkit\"\n"), 0o644))

	data, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "genkit")
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")

	require.NoError(t, AtomicWriteFile(path, []byte(`{"version":"1.0.0"}`), 0o644))
	require.NoError(t, AtomicWriteFile(path, []byte(`{"version":"1.1.0"}`), 0o640))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"version":"1.1.0"}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestAtomicWriteFile_MissingDirectory(t *testing.T) {
	err := AtomicWriteFile(filepath.Join(t.TempDir(), "missing", "out.prom"), []byte("x"), 0o644)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create temp file")
}

func TestAtomicWriteFile_RenameFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	ops := defaultFSOps()
	ops.rename = func(string, string) error { return errors.New("cross-device link") }

	err := atomicWriteFile(filepath.Join(dir, "metrics.prom"), []byte("x"), 0o644, ops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cross-device link")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAtomicWriteFile_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.prom")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := strings.Repeat(string(rune('a'+i)), 64)
			assert.NoError(t, AtomicWriteFile(path, []byte(content), 0o644))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 64)
	assert.Equal(t, strings.Repeat(string(data[0]), 64), string(data), "content must come from a single writer")
}
