// Package publish schedules package publish pipelines level by level with
// bounded concurrency, retries and pause/cancel control.
package publish

import (
	"context"

	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
)

// Job is the unit of work handed to a Backend stage.
type Job struct {
	RunID     string
	Workspace string
	Package   monorepo.Package
	// Version is the version being released.
	Version string
	// PreviousVersion is the version before the bump.
	PreviousVersion string
	// DependencyVersions maps internal dependencies to the versions they
	// are released at in this run.
	DependencyVersions map[string]string
	// Attempt is 1 for the first try of a stage.
	Attempt int
}

// Backend performs the work of each pipeline stage for one package.
type Backend interface {
	Pin(ctx context.Context, job Job) error
	Build(ctx context.Context, job Job) error
	Publish(ctx context.Context, job Job) error
	Poll(ctx context.Context, job Job) error
	Verify(ctx context.Context, job Job) error
	// IsTransient reports whether a stage failure may succeed on retry.
	IsTransient(err error) bool
}

// Observer receives scheduler events. Calls come from a single goroutine
// in the order events occur. Implementations must return quickly and must
// not call back into the scheduler's Controller.
type Observer interface {
	OnStageChange(pkg string, stage domain.Stage)
	OnError(pkg string, message string)
	OnLevelStart(level int, pkgs []string)
	OnSchedulerStateChange(state domain.SchedulerState)
	OnComplete()
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStageChange(string, domain.Stage)           {}
func (NopObserver) OnError(string, string)                       {}
func (NopObserver) OnLevelStart(int, []string)                   {}
func (NopObserver) OnSchedulerStateChange(domain.SchedulerState) {}
func (NopObserver) OnComplete()                                  {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnStageChange(pkg string, stage domain.Stage) {
	for _, o := range m {
		o.OnStageChange(pkg, stage)
	}
}

func (m MultiObserver) OnError(pkg string, message string) {
	for _, o := range m {
		o.OnError(pkg, message)
	}
}

func (m MultiObserver) OnLevelStart(level int, pkgs []string) {
	for _, o := range m {
		o.OnLevelStart(level, pkgs)
	}
}

func (m MultiObserver) OnSchedulerStateChange(state domain.SchedulerState) {
	for _, o := range m {
		o.OnSchedulerStateChange(state)
	}
}

func (m MultiObserver) OnComplete() {
	for _, o := range m {
		o.OnComplete()
	}
}
