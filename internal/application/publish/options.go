package publish

import (
	"time"

	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// Options configures a scheduler run.
type Options struct {
	// Workspace labels jobs and reports.
	Workspace string
	// Concurrency bounds the pipelines running at once within a level.
	Concurrency int
	// MaxRetries bounds retries per stage after the first attempt.
	MaxRetries int
	// RetryInitialDelay is the first backoff delay.
	RetryInitialDelay time.Duration
	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration
	// StageTimeout limits each stage attempt; 0 disables it. Timeouts are
	// treated as transient.
	StageTimeout time.Duration
	// FailOnBlocked makes BLOCKED packages fail the run.
	FailOnBlocked bool
	// EventBuffer sizes the observer event channel.
	EventBuffer int
}

// DefaultOptions returns the scheduler defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:       4,
		MaxRetries:        3,
		RetryInitialDelay: time.Second,
		RetryMaxDelay:     30 * time.Second,
		StageTimeout:      10 * time.Minute,
		EventBuffer:       256,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	const op = "publish.Options.Validate"
	switch {
	case o.Concurrency < 1:
		return rperrors.Validation(op, "concurrency must be at least 1")
	case o.MaxRetries < 0:
		return rperrors.Validation(op, "max retries must not be negative")
	case o.RetryInitialDelay < 0 || o.RetryMaxDelay < 0:
		return rperrors.Validation(op, "retry delays must not be negative")
	case o.RetryMaxDelay < o.RetryInitialDelay:
		return rperrors.Validation(op, "retry max delay must not be below the initial delay")
	case o.StageTimeout < 0:
		return rperrors.Validation(op, "stage timeout must not be negative")
	}
	return nil
}
