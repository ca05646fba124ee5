package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// Pre-compiled patterns for environment variable expansion.
var (
	// envVarPattern matches ${VAR} or ${VAR:-default}.
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR (not preceded by $).
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// ConfigFileNames are the base names searched for, in order.
var ConfigFileNames = []string{"releasekit", ".releasekit"}

// ConfigFileExtensions are the supported formats, in search order.
var ConfigFileExtensions = []string{"yaml", "yml", "toml", "json"}

// EnvPrefix prefixes environment overrides, e.g. RELEASEKIT_PUBLISH_CONCURRENCY.
const EnvPrefix = "RELEASEKIT"

// Loader handles configuration loading from files and environment.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{".", ".releasekit"},
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths sets the directories searched for a config file.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = paths
	return l
}

// Load reads, defaults, expands and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to unmarshal config")
	}
	cfg.normalize()
	expandEnvVars(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers defaults for every fixed key so that environment
// overrides are seen by Unmarshal.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("publish.concurrency", defaults.Publish.Concurrency)
	l.v.SetDefault("publish.max_retries", defaults.Publish.MaxRetries)
	l.v.SetDefault("publish.retry_initial_delay", defaults.Publish.RetryInitialDelay)
	l.v.SetDefault("publish.retry_max_delay", defaults.Publish.RetryMaxDelay)
	l.v.SetDefault("publish.stage_timeout", defaults.Publish.StageTimeout)
	l.v.SetDefault("publish.fail_on_blocked", false)
	l.v.SetDefault("publish.dry_run", false)
	l.v.SetDefault("publish.commands.build", "")
	l.v.SetDefault("publish.commands.publish", "")
	l.v.SetDefault("publish.commands.poll", "")
	l.v.SetDefault("publish.commands.verify", "")
	l.v.SetDefault("publish.control_dir", defaults.Publish.ControlDir)
	l.v.SetDefault("publish.rate_limit_per_minute", 0)
	l.v.SetDefault("publish.circuit_breaker_threshold", 0)
	l.v.SetDefault("publish.circuit_breaker_timeout", defaults.Publish.CircuitBreakerTimeout)
	l.v.SetDefault("publish.shell", defaults.Publish.Shell)

	l.v.SetDefault("output.log_format", defaults.Output.LogFormat)
	l.v.SetDefault("output.no_color", false)
	l.v.SetDefault("output.metrics_file", "")
}

// loadConfigFile reads the explicit config path or the first file found in
// the search paths. Finding no file is not an error.
func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	path, err := FindConfigFile(l.searchPaths...)
	if err != nil {
		if rperrors.IsKind(err, rperrors.KindNotFound) {
			return nil
		}
		return err
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// ConfigPath returns the path of the loaded config file, if any.
func (l *Loader) ConfigPath() string {
	return l.v.ConfigFileUsed()
}

// expandEnvVars expands environment variables in string settings.
func expandEnvVars(cfg *Config) {
	for label, ws := range cfg.Workspaces {
		ws.Root = expandEnvVar(ws.Root)
		ws.Since = expandEnvVar(ws.Since)
		ws.BootstrapSHA = expandEnvVar(ws.BootstrapSHA)
		ws.Prerelease = expandEnvVar(ws.Prerelease)
		cfg.Workspaces[label] = ws
	}

	cfg.Publish.Commands.Build = expandEnvVar(cfg.Publish.Commands.Build)
	cfg.Publish.Commands.Publish = expandEnvVar(cfg.Publish.Commands.Publish)
	cfg.Publish.Commands.Poll = expandEnvVar(cfg.Publish.Commands.Poll)
	cfg.Publish.Commands.Verify = expandEnvVar(cfg.Publish.Commands.Verify)
	cfg.Publish.ControlDir = expandEnvVar(cfg.Publish.ControlDir)

	cfg.Output.MetricsFile = expandEnvVar(cfg.Output.MetricsFile)
}

// expandEnvVar expands ${VAR}, ${VAR:-default} and $VAR in s. Unset
// $VAR references are left as written so shell commands keep them.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if value := os.Getenv(submatch[1]); value != "" {
			return value
		}
		if len(submatch) > 2 {
			return submatch[2]
		}
		return ""
	})

	return simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		if value := os.Getenv(match[1:]); value != "" {
			return value
		}
		return match
	})
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// LoadFromDirectory loads configuration from a directory.
func LoadFromDirectory(dir string) (*Config, error) {
	return NewLoader().WithSearchPaths(dir, filepath.Join(dir, ".releasekit")).Load()
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				info, err := os.Stat(configFile)
				if err == nil && !info.IsDir() {
					return configFile, nil
				}
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return "", rperrors.IOWrap(err, "config.FindConfigFile", "stat "+configFile)
				}
			}
		}
	}

	return "", rperrors.NotFound("config.FindConfigFile", "no config file found")
}
