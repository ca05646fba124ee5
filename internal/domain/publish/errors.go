package publish

import "errors"

// Domain errors for the publish pipeline.
var (
	// ErrInvalidTransition indicates an event the current stage does not accept.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrSchedulerCancelled indicates the run was cancelled.
	ErrSchedulerCancelled = errors.New("scheduler cancelled")
)
