package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/relicta-tech/releasekit/internal/domain/tagformat"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// ValidEcosystems lists the supported workspace ecosystems.
var ValidEcosystems = []string{"auto", "npm", "pnpm", "cargo", "python"}

// ValidLogFormats lists the supported log formats.
var ValidLogFormats = []string{"text", "json"}

var prereleaseLabelRegex = regexp.MustCompile(`^[A-Za-z][0-9A-Za-z-]*$`)

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Validate validates cfg, logging warnings. The returned error wraps the
// full ValidationError text when any check failed.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration.
func (v *Validator) Validate(cfg *Config) error {
	for _, label := range cfg.Labels() {
		v.validateWorkspace(label, cfg.Workspaces[label])
	}
	v.validateUmbrellaOverlap(cfg)
	v.validatePublish(cfg.Publish)
	v.validateOutput(cfg.Output)

	for _, warning := range v.errors.Warnings {
		slog.Warn("configuration warning", "warning", warning)
	}

	if v.errors.HasErrors() {
		return rperrors.Validation("config.Validate", v.errors.Error())
	}
	return nil
}

// Result returns the accumulated errors and warnings.
func (v *Validator) Result() *ValidationError {
	return v.errors
}

func (v *Validator) validateWorkspace(label string, ws WorkspaceConfig) {
	prefix := "workspaces." + label

	switch {
	case strings.TrimSpace(ws.Root) == "":
		v.errors.Addf("%s.root: must not be empty", prefix)
	case filepath.IsAbs(ws.Root):
		v.errors.Addf("%s.root: must be relative to the repository root, got %q", prefix, ws.Root)
	case strings.HasPrefix(filepath.Clean(ws.Root), ".."):
		v.errors.Addf("%s.root: must not leave the repository, got %q", prefix, ws.Root)
	}

	if !slices.Contains(ValidEcosystems, ws.Ecosystem) {
		v.errors.Addf("%s.ecosystem: must be one of %v, got %q", prefix, ValidEcosystems, ws.Ecosystem)
	}

	v.validatePackageFormat(prefix+".tag_format", ws.TagFormat)
	if ws.SecondaryTagFormat != "" {
		v.validatePackageFormat(prefix+".secondary_tag_format", ws.SecondaryTagFormat)
	}
	if ws.UmbrellaTagFormat != "" {
		if !strings.Contains(ws.UmbrellaTagFormat, tagformat.VersionPlaceholder) {
			v.errors.Addf("%s.umbrella_tag_format: must contain %s", prefix, tagformat.VersionPlaceholder)
		}
		if strings.Contains(ws.UmbrellaTagFormat, tagformat.NamePlaceholder) {
			v.errors.Addf("%s.umbrella_tag_format: must not contain %s", prefix, tagformat.NamePlaceholder)
		}
	}

	if ws.Prerelease != "" && !prereleaseLabelRegex.MatchString(ws.Prerelease) {
		v.errors.Addf("%s.prerelease: must start with a letter and contain only [0-9A-Za-z-], got %q", prefix, ws.Prerelease)
	}
	if strings.ContainsAny(ws.Since, " \t\n") {
		v.errors.Addf("%s.since: must be a tag or commit, got %q", prefix, ws.Since)
	}

	if ws.Synchronize && ws.PropagateBumps != nil && *ws.PropagateBumps {
		v.errors.Warnf("%s: propagate_bumps has no effect when synchronize is enabled", prefix)
	}
	if ws.Synchronize && ws.UmbrellaTagFormat == "" {
		v.errors.Warnf("%s: synchronized workspaces usually set umbrella_tag_format", prefix)
	}
}

func (v *Validator) validatePackageFormat(field, format string) {
	if !strings.Contains(format, tagformat.VersionPlaceholder) {
		v.errors.Addf("%s: must contain %s, got %q", field, tagformat.VersionPlaceholder, format)
	}
	if !strings.Contains(format, tagformat.NamePlaceholder) {
		v.errors.Addf("%s: must contain %s, got %q", field, tagformat.NamePlaceholder, format)
	}
}

// validateUmbrellaOverlap warns when two workspaces share an umbrella
// format; only the first label in sorted order would ever claim its tags.
func (v *Validator) validateUmbrellaOverlap(cfg *Config) {
	owner := make(map[string]string)
	for _, label := range cfg.Labels() {
		format := cfg.Workspaces[label].UmbrellaTagFormat
		if format == "" {
			continue
		}
		if first, ok := owner[format]; ok {
			v.errors.Warnf("workspaces.%s.umbrella_tag_format: %q is also used by %s", label, format, first)
			continue
		}
		owner[format] = label
	}
}

func (v *Validator) validatePublish(cfg PublishConfig) {
	if cfg.Concurrency < 1 {
		v.errors.Addf("publish.concurrency: must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.MaxRetries < 0 {
		v.errors.Addf("publish.max_retries: must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.RetryInitialDelay < 0 {
		v.errors.Addf("publish.retry_initial_delay: must not be negative")
	}
	if cfg.RetryMaxDelay < cfg.RetryInitialDelay {
		v.errors.Addf("publish.retry_max_delay: must not be below retry_initial_delay (%s < %s)", cfg.RetryMaxDelay, cfg.RetryInitialDelay)
	}
	if cfg.StageTimeout < 0 {
		v.errors.Addf("publish.stage_timeout: must not be negative")
	}
	if cfg.RateLimitPerMinute < 0 {
		v.errors.Addf("publish.rate_limit_per_minute: must not be negative")
	}
	if cfg.CircuitBreakerThreshold < 0 {
		v.errors.Addf("publish.circuit_breaker_threshold: must not be negative")
	}
	if cfg.CircuitBreakerThreshold > 0 && cfg.CircuitBreakerTimeout <= 0 {
		v.errors.Addf("publish.circuit_breaker_timeout: must be positive when the breaker is enabled")
	}
	for i, pattern := range cfg.TransientPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			v.errors.Addf("publish.transient_patterns[%d]: invalid regex %q: %v", i, pattern, err)
		}
	}
	if strings.TrimSpace(cfg.Shell) == "" {
		v.errors.Addf("publish.shell: must not be empty")
	}
	if cfg.StageTimeout == 0 {
		v.errors.Warnf("publish.stage_timeout: 0 lets a hung command stall the run")
	}
}

func (v *Validator) validateOutput(cfg OutputConfig) {
	if !slices.Contains(ValidLogFormats, cfg.LogFormat) {
		v.errors.Addf("output.log_format: must be one of %v, got %q", ValidLogFormats, cfg.LogFormat)
	}
}
