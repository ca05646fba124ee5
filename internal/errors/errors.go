// Package errors provides structured error types for releasekit.
// Errors carry a Kind for classification and a Recoverable flag that the
// publish pipeline reads as "transient, worth retrying".
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindConfig indicates a configuration error.
	KindConfig
	// KindGit indicates a VCS operation error.
	KindGit
	// KindVersion indicates a version parsing or arithmetic error.
	KindVersion
	// KindGraph indicates a dependency graph error.
	KindGraph
	// KindDiscovery indicates a workspace discovery error.
	KindDiscovery
	// KindPublish indicates a publish pipeline error.
	KindPublish
	// KindTemplate indicates a template rendering error.
	KindTemplate
	// KindState indicates an invalid state transition.
	KindState
	// KindIO indicates a file I/O error.
	KindIO
	// KindValidation indicates a validation error.
	KindValidation
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindTimeout indicates a timeout error.
	KindTimeout
	// KindCanceled indicates the operation was canceled.
	KindCanceled
	// KindInternal indicates an internal error.
	KindInternal
)

var kindNames = map[Kind]string{
	KindConfig:     "configuration",
	KindGit:        "git",
	KindVersion:    "version",
	KindGraph:      "graph",
	KindDiscovery:  "discovery",
	KindPublish:    "publish",
	KindTemplate:   "template",
	KindState:      "state",
	KindIO:         "io",
	KindValidation: "validation",
	KindNotFound:   "not_found",
	KindTimeout:    "timeout",
	KindCanceled:   "canceled",
	KindInternal:   "internal",
}

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is the standard error type for releasekit.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Recoverable marks transient failures that may succeed on retry.
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// A target without Op matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// GetKind returns the Kind of an error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// IsRecoverable returns true if any *Error in the chain is recoverable.
func IsRecoverable(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Recoverable {
			return true
		}
		err = e.Err
	}
	return false
}

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// GitWrap wraps an error as a git error.
func GitWrap(err error, op, message string) *Error {
	return Wrap(err, KindGit, op, message)
}

// VersionWrap wraps an error as a versioning error.
func VersionWrap(err error, op, message string) *Error {
	return Wrap(err, KindVersion, op, message)
}

// GraphWrap wraps an error as a dependency graph error.
func GraphWrap(err error, op, message string) *Error {
	return Wrap(err, KindGraph, op, message)
}

// DiscoveryWrap wraps an error as a workspace discovery error.
func DiscoveryWrap(err error, op, message string) *Error {
	return Wrap(err, KindDiscovery, op, message)
}

// PublishWrap wraps an error as a fatal publish error.
func PublishWrap(err error, op, message string) *Error {
	return Wrap(err, KindPublish, op, message)
}

// Transient wraps an error as a recoverable publish error.
func Transient(err error, op, message string) *Error {
	e := Wrap(err, KindPublish, op, message)
	e.Recoverable = true
	return e
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// ValidationWrap wraps an error as a validation error.
func ValidationWrap(err error, op, message string) *Error {
	return Wrap(err, KindValidation, op, message)
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// IOWrap wraps an error as an I/O error.
func IOWrap(err error, op, message string) *Error {
	return Wrap(err, KindIO, op, message)
}

// TimeoutWrap wraps an error as a timeout error.
func TimeoutWrap(err error, op, message string) *Error {
	e := Wrap(err, KindTimeout, op, message)
	e.Recoverable = true
	return e
}

// Canceled creates a cancellation error.
func Canceled(op, message string) *Error {
	return &Error{Kind: KindCanceled, Op: op, Message: message}
}

// State creates a state transition error.
func State(op, message string) *Error {
	return &Error{Kind: KindState, Op: op, Message: message}
}

// TemplateWrap wraps an error as a template error.
func TemplateWrap(err error, op, message string) *Error {
	return Wrap(err, KindTemplate, op, message)
}

// InternalWrap wraps an error as an internal error.
func InternalWrap(err error, op, message string) *Error {
	return Wrap(err, KindInternal, op, message)
}

// Registry and forge credentials that must never reach logs or the terminal.
var sensitivePatterns = []*regexp.Regexp{
	// GitHub tokens: ghp_, gho_, ghs_, ghr_
	regexp.MustCompile(`\bgh[posr]_[a-zA-Z0-9]{36,}\b`),
	// GitHub fine-grained tokens
	regexp.MustCompile(`\bgithub_pat_[a-zA-Z0-9_]{22,}\b`),
	// npm automation tokens
	regexp.MustCompile(`\bnpm_[a-zA-Z0-9]{36,}\b`),
	// PyPI upload tokens
	regexp.MustCompile(`\bpypi-[a-zA-Z0-9_-]{50,}\b`),
	// crates.io tokens
	regexp.MustCompile(`\bcio[a-zA-Z0-9]{32,}\b`),
	// Generic bearer tokens
	regexp.MustCompile(`\bBearer\s+[a-zA-Z0-9_.-]{20,}\b`),
	// Basic auth with password in URL
	regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`),
}

// RedactSensitive removes credentials from s.
func RedactSensitive(s string) string {
	result := s
	for _, pattern := range sensitivePatterns {
		if strings.HasPrefix(pattern.String(), "://") {
			result = pattern.ReplaceAllString(result, "://[REDACTED]@")
			continue
		}
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// RedactError returns err with credentials removed from its message.
// The original error is returned unchanged when nothing needed redaction.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	redacted := RedactSensitive(err.Error())
	if redacted == err.Error() {
		return err
	}
	return errors.New(redacted)
}
