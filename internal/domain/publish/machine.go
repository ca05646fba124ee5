package publish

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// PipelineContext is the context passed to the state machine.
type PipelineContext struct {
	Package string
}

// Event names for the state machine.
const (
	EventStart   statekit.EventType = "START"
	EventAdvance statekit.EventType = "ADVANCE"
	EventRetry   statekit.EventType = "RETRY"
	EventFail    statekit.EventType = "FAIL"
	EventSkip    statekit.EventType = "SKIP"
	EventBlock   statekit.EventType = "BLOCK"
)

// resumeEvent returns the event that leaves RETRYING for stage.
func resumeEvent(stage Stage) statekit.EventType {
	return statekit.EventType("RESUME_" + string(stage))
}

func stateID(s Stage) statekit.StateID {
	return statekit.StateID(s)
}

// PipelineMachine tracks one package through its publish pipeline.
// Only the package's own pipeline task may drive it.
type PipelineMachine struct {
	interpreter *statekit.Interpreter[PipelineContext]
	retryFrom   Stage
}

// NewPipelineMachine builds and starts a machine in WAITING.
func NewPipelineMachine(pkg string) (*PipelineMachine, error) {
	machine, err := statekit.NewMachine[PipelineContext]("publish-" + pkg).
		WithInitial(stateID(StageWaiting)).
		State(stateID(StageWaiting)).
		On(EventStart).Target(stateID(StagePinning)).
		On(EventSkip).Target(stateID(StageSkipped)).
		On(EventBlock).Target(stateID(StageBlocked)).
		On(EventFail).Target(stateID(StageFailed)).
		Done().
		State(stateID(StagePinning)).
		On(EventAdvance).Target(stateID(StageBuilding)).
		On(EventRetry).Target(stateID(StageRetrying)).
		On(EventFail).Target(stateID(StageFailed)).
		Done().
		State(stateID(StageBuilding)).
		On(EventAdvance).Target(stateID(StagePublishing)).
		On(EventRetry).Target(stateID(StageRetrying)).
		On(EventFail).Target(stateID(StageFailed)).
		Done().
		State(stateID(StagePublishing)).
		On(EventAdvance).Target(stateID(StagePolling)).
		On(EventRetry).Target(stateID(StageRetrying)).
		On(EventFail).Target(stateID(StageFailed)).
		Done().
		State(stateID(StagePolling)).
		On(EventAdvance).Target(stateID(StageVerifying)).
		On(EventRetry).Target(stateID(StageRetrying)).
		On(EventFail).Target(stateID(StageFailed)).
		Done().
		State(stateID(StageVerifying)).
		On(EventAdvance).Target(stateID(StagePublished)).
		On(EventRetry).Target(stateID(StageRetrying)).
		On(EventFail).Target(stateID(StageFailed)).
		Done().
		// Retrying returns to the stage that failed.
		State(stateID(StageRetrying)).
		On(resumeEvent(StagePinning)).Target(stateID(StagePinning)).
		On(resumeEvent(StageBuilding)).Target(stateID(StageBuilding)).
		On(resumeEvent(StagePublishing)).Target(stateID(StagePublishing)).
		On(resumeEvent(StagePolling)).Target(stateID(StagePolling)).
		On(resumeEvent(StageVerifying)).Target(stateID(StageVerifying)).
		On(EventFail).Target(stateID(StageFailed)).
		Done().
		State(stateID(StagePublished)).Final().Done().
		State(stateID(StageFailed)).Final().Done().
		State(stateID(StageSkipped)).Final().Done().
		State(stateID(StageBlocked)).Final().Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline machine: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &PipelineMachine{interpreter: interp}, nil
}

// Stage returns the current stage.
func (m *PipelineMachine) Stage() Stage {
	return Stage(m.interpreter.State().Value)
}

// IsDone returns true once a terminal stage is reached.
func (m *PipelineMachine) IsDone() bool {
	return m.Stage().IsTerminal()
}

func (m *PipelineMachine) send(event statekit.EventType) (Stage, error) {
	from := m.Stage()
	m.interpreter.Send(statekit.Event{Type: event})
	to := m.Stage()
	if to == from {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// Start moves WAITING to the first pipeline stage.
func (m *PipelineMachine) Start() (Stage, error) {
	return m.send(EventStart)
}

// Advance moves to the next pipeline stage, or PUBLISHED after VERIFYING.
func (m *PipelineMachine) Advance() (Stage, error) {
	return m.send(EventAdvance)
}

// Retry moves the current pipeline stage to RETRYING and remembers it.
func (m *PipelineMachine) Retry() (Stage, error) {
	from := m.Stage()
	to, err := m.send(EventRetry)
	if err != nil {
		return to, err
	}
	m.retryFrom = from
	return to, nil
}

// Resume leaves RETRYING for the stage that failed.
func (m *PipelineMachine) Resume() (Stage, error) {
	if m.Stage() != StageRetrying {
		return m.Stage(), fmt.Errorf("%w: resume from %s", ErrInvalidTransition, m.Stage())
	}
	return m.send(resumeEvent(m.retryFrom))
}

// Fail moves any non-terminal stage to FAILED.
func (m *PipelineMachine) Fail() (Stage, error) {
	return m.send(EventFail)
}

// Skip moves WAITING to SKIPPED.
func (m *PipelineMachine) Skip() (Stage, error) {
	return m.send(EventSkip)
}

// Block moves WAITING to BLOCKED.
func (m *PipelineMachine) Block() (Stage, error) {
	return m.send(EventBlock)
}
