// Package publish models the per-package publish pipeline and the global
// scheduler control state.
package publish

import "slices"

// Stage is the position of one package in its publish pipeline.
type Stage string

const (
	StageWaiting    Stage = "waiting"
	StagePinning    Stage = "pinning"
	StageBuilding   Stage = "building"
	StagePublishing Stage = "publishing"
	StagePolling    Stage = "polling"
	StageVerifying  Stage = "verifying"
	StageRetrying   Stage = "retrying"
	StagePublished  Stage = "published"
	StageFailed     Stage = "failed"
	StageSkipped    Stage = "skipped"
	StageBlocked    Stage = "blocked"
)

// PipelineStages are the working stages in execution order.
var PipelineStages = []Stage{
	StagePinning,
	StageBuilding,
	StagePublishing,
	StagePolling,
	StageVerifying,
}

// IsTerminal returns true for stages a package never leaves.
func (s Stage) IsTerminal() bool {
	switch s {
	case StagePublished, StageFailed, StageSkipped, StageBlocked:
		return true
	default:
		return false
	}
}

// IsPipeline returns true for the working stages.
func (s Stage) IsPipeline() bool {
	return slices.Contains(PipelineStages, s)
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}
