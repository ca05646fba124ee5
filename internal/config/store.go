package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// DefaultConfigFile is created when bootstrap state must be written and
// no config file exists yet.
const DefaultConfigFile = "releasekit.yaml"

// FileStore persists bootstrap state into a config file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore writes to path, creating it on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the config file written by the store.
func (s *FileStore) Path() string {
	return s.path
}

// SetBootstrapSHA records sha as workspaces.<label>.bootstrap_sha. Only the
// settings present in the file are rewritten; defaults and environment
// overrides are not copied into it.
func (s *FileStore) SetBootstrapSHA(label, sha string) error {
	const op = "config.SetBootstrapSHA"

	if strings.TrimSpace(label) == "" {
		return rperrors.Validation(op, "workspace label must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(s.path)
	if _, err := os.Stat(s.path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return rperrors.ConfigWrap(err, op, "failed to read config file "+s.path)
		}
	} else if !os.IsNotExist(err) {
		return rperrors.IOWrap(err, op, "stat "+s.path)
	}

	v.Set("workspaces."+strings.ToLower(label)+".bootstrap_sha", sha)

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rperrors.IOWrap(err, op, "create config directory")
		}
	}
	if err := v.WriteConfigAs(s.path); err != nil {
		return rperrors.ConfigWrap(err, op, "failed to write config file")
	}
	return nil
}
