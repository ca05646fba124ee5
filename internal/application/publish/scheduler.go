package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/relicta-tech/releasekit/internal/application/versioning"
	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// Reasons recorded on packages that never entered the pipeline.
const (
	ReasonNotPublishable = "not publishable"
	ReasonNoBump         = "no bump result"
	ReasonNotDispatched  = "cancelled before dispatch"
	ReasonCancelled      = "cancelled"
)

// transientError marks a failure the retrier may retry.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isMarkedTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// Scheduler runs publish pipelines over a leveled dependency graph.
type Scheduler struct {
	backend    Backend
	observer   Observer
	controller *domain.Controller
	opts       Options
	retrier    retry.Retry[struct{}]
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. A nil observer discards events and a
// nil controller gets a fresh RUNNING controller.
func NewScheduler(backend Backend, observer Observer, controller *domain.Controller, opts Options) (*Scheduler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if controller == nil {
		controller = domain.NewController()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultOptions().EventBuffer
	}

	return &Scheduler{
		backend:    backend,
		observer:   observer,
		controller: controller,
		opts:       opts,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   opts.MaxRetries + 1,
			InitialDelay:  opts.RetryInitialDelay,
			MaxDelay:      opts.RetryMaxDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isMarkedTransient,
		}),
		logger: slog.Default().With("usecase", "publish"),
	}, nil
}

// Controller returns the control state shared with signal handlers.
func (s *Scheduler) Controller() *domain.Controller {
	return s.controller
}

// Run publishes every publishable, non-skipped package of graph. Levels
// run strictly in order; a level is finished only when all its packages
// are terminal. Packages depending on a FAILED or BLOCKED package are
// BLOCKED. Cancelling ctx cancels the controller.
func (s *Scheduler) Run(ctx context.Context, graph *monorepo.DependencyGraph, results []versioning.BumpResult) (*Report, error) {
	const op = "publish.Scheduler.Run"
	if graph == nil {
		return nil, rperrors.Validation(op, "dependency graph is required")
	}

	bumps := make(map[string]versioning.BumpResult, len(results))
	for _, r := range results {
		bumps[r.Name] = r
	}

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "workspace", s.opts.Workspace)
	report := &Report{
		RunID:         runID,
		Workspace:     s.opts.Workspace,
		FailOnBlocked: s.opts.FailOnBlocked,
		StartedAt:     time.Now(),
	}

	bus := newEventBus(s.observer, s.opts.EventBuffer)
	unregister := s.controller.OnChange(bus.state)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.controller.Cancel()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		unregister()
		bus.close()
	}()

	final := make(map[string]domain.Stage, graph.Len())
	for lvl, level := range graph.Levels() {
		cancelled := s.controller.State() == domain.SchedulerCancelled
		if !cancelled {
			bus.level(lvl, level)
			logger.Info("level started", "level", lvl, "packages", len(level))
		}

		reports := make([]*PackageReport, len(level))
		machines := make([]*domain.PipelineMachine, len(level))
		jobs := make([]Job, len(level))
		var dispatch []int

		for i, name := range level {
			pkg, _ := graph.Package(name)
			bump, hasBump := bumps[name]

			rep := &PackageReport{
				Name:            name,
				Level:           lvl,
				Stage:           domain.StageWaiting,
				PreviousVersion: pkg.Version,
				Version:         pkg.Version,
			}
			if hasBump && !bump.Skipped {
				rep.Version = bump.NewVersion
			}
			reports[i] = rep

			m, err := domain.NewPipelineMachine(name)
			if err != nil {
				return nil, rperrors.InternalWrap(err, op, "build pipeline machine for "+name)
			}
			machines[i] = m

			switch {
			case !pkg.Publishable:
				s.settle(bus, m.Skip, rep, ReasonNotPublishable)
			case !hasBump:
				s.settle(bus, m.Skip, rep, ReasonNoBump)
			case bump.Skipped:
				s.settle(bus, m.Skip, rep, bump.Reason)
			default:
				if cancelled {
					s.settle(bus, m.Block, rep, ReasonNotDispatched)
				} else if reason := blockedBy(graph, name, final); reason != "" {
					s.settle(bus, m.Block, rep, reason)
				} else {
					jobs[i] = s.job(runID, pkg, rep, graph, bumps)
					dispatch = append(dispatch, i)
				}
			}
		}

		g, gCtx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(int64(s.opts.Concurrency))
		for _, i := range dispatch {
			g.Go(func() error {
				s.runPackage(gCtx, sem, bus, machines[i], reports[i], jobs[i])
				return nil
			})
		}
		_ = g.Wait()

		for _, rep := range reports {
			final[rep.Name] = rep.Stage
			report.Packages = append(report.Packages, *rep)
			if rep.Stage == domain.StageFailed && rep.Reason != ReasonCancelled {
				logger.Warn("package failed", "package", rep.Name, "error", rep.Error)
			}
		}
	}

	report.Cancelled = s.controller.State() == domain.SchedulerCancelled
	report.Duration = time.Since(report.StartedAt)

	counts := report.Counts()
	logger.Info("publish run finished",
		"published", counts[domain.StagePublished],
		"failed", counts[domain.StageFailed],
		"blocked", counts[domain.StageBlocked],
		"skipped", counts[domain.StageSkipped],
		"cancelled", report.Cancelled,
		"duration", report.Duration)

	return report, nil
}

func (s *Scheduler) job(runID string, pkg monorepo.Package, rep *PackageReport, graph *monorepo.DependencyGraph, bumps map[string]versioning.BumpResult) Job {
	deps := make(map[string]string)
	for _, dep := range graph.Dependencies(pkg.Name) {
		if b, ok := bumps[dep]; ok && !b.Skipped {
			deps[dep] = b.NewVersion
		} else if p, ok := graph.Package(dep); ok {
			deps[dep] = p.Version
		}
	}
	return Job{
		RunID:              runID,
		Workspace:          s.opts.Workspace,
		Package:            pkg,
		Version:            rep.Version,
		PreviousVersion:    rep.PreviousVersion,
		DependencyVersions: deps,
	}
}

// blockedBy names the first dependency that ended FAILED or BLOCKED.
func blockedBy(graph *monorepo.DependencyGraph, name string, final map[string]domain.Stage) string {
	for _, dep := range graph.Dependencies(name) {
		switch final[dep] {
		case domain.StageFailed:
			return fmt.Sprintf("dependency %s failed", dep)
		case domain.StageBlocked:
			return fmt.Sprintf("dependency %s blocked", dep)
		}
	}
	return ""
}

// settle applies a terminal transition to a package that never runs.
func (s *Scheduler) settle(bus *eventBus, transition func() (domain.Stage, error), rep *PackageReport, reason string) {
	stage, err := transition()
	if err != nil {
		s.logger.Error("unexpected transition failure", "package", rep.Name, "error", err)
		return
	}
	rep.Stage = stage
	rep.Reason = reason
	bus.stage(rep.Name, stage)
}

func (s *Scheduler) fail(bus *eventBus, m *domain.PipelineMachine, rep *PackageReport, message string) {
	stage, err := m.Fail()
	if err != nil {
		s.logger.Error("unexpected transition failure", "package", rep.Name, "error", err)
		return
	}
	rep.Stage = stage
	rep.Error = message
	bus.errMsg(rep.Name, message)
	bus.stage(rep.Name, stage)
}

// abort ends a package whose pipeline stopped at a checkpoint because the
// run was cancelled. It counts as cancelled, not as a failure.
func (s *Scheduler) abort(bus *eventBus, m *domain.PipelineMachine, rep *PackageReport) {
	stage, err := m.Fail()
	if err != nil {
		s.logger.Error("unexpected transition failure", "package", rep.Name, "error", err)
		return
	}
	rep.Stage = stage
	rep.Reason = ReasonCancelled
	bus.stage(rep.Name, stage)
}

func (s *Scheduler) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || s.controller.State() == domain.SchedulerCancelled
}

// runPackage is the task of one package: wait for a worker slot and for
// RUNNING, then walk the pipeline stages. Cancellation is checked before
// dispatch and at the top of every stage.
func (s *Scheduler) runPackage(ctx context.Context, sem *semaphore.Weighted, bus *eventBus, m *domain.PipelineMachine, rep *PackageReport, job Job) {
	start := time.Now()
	defer func() { rep.Duration = time.Since(start) }()

	if err := sem.Acquire(ctx, 1); err != nil {
		s.settle(bus, m.Block, rep, ReasonNotDispatched)
		return
	}
	defer sem.Release(1)

	if err := s.controller.WaitUntilRunning(ctx); err != nil {
		s.settle(bus, m.Block, rep, ReasonNotDispatched)
		return
	}

	stage, err := m.Start()
	if err != nil {
		s.fail(bus, m, rep, err.Error())
		return
	}
	rep.Stage = stage
	bus.stage(rep.Name, stage)

	for !m.IsDone() {
		if s.cancelled(ctx) {
			s.abort(bus, m, rep)
			return
		}
		if err := s.runStage(ctx, bus, m, stage, job, rep); err != nil {
			if rperrors.IsKind(err, rperrors.KindCanceled) || ctx.Err() != nil {
				s.abort(bus, m, rep)
				return
			}
			s.fail(bus, m, rep, rperrors.RedactError(err).Error())
			return
		}
		if stage, err = m.Advance(); err != nil {
			s.fail(bus, m, rep, err.Error())
			return
		}
		rep.Stage = stage
		bus.stage(rep.Name, stage)
	}
}

// runStage runs one stage with bounded retries. A transient failure moves
// the package to RETRYING; the next attempt moves it back.
func (s *Scheduler) runStage(ctx context.Context, bus *eventBus, m *domain.PipelineMachine, stage domain.Stage, job Job, rep *PackageReport) error {
	const op = "publish.Scheduler.runStage"

	attempt := 0
	var lastErr error

	_, err := s.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		attempt++
		if attempt > 1 {
			if s.cancelled(ctx) {
				lastErr = rperrors.Canceled(op, stage.String()+" not retried after cancel")
				return struct{}{}, lastErr
			}
			resumed, err := m.Resume()
			if err != nil {
				lastErr = err
				return struct{}{}, err
			}
			bus.stage(rep.Name, resumed)
		}

		job.Attempt = attempt
		err := s.invoke(ctx, stage, job)
		lastErr = err
		if err == nil {
			return struct{}{}, nil
		}
		if attempt > s.opts.MaxRetries || !s.isTransient(err) {
			return struct{}{}, err
		}
		if s.cancelled(ctx) {
			lastErr = rperrors.Canceled(op, stage.String()+" not retried after cancel")
			return struct{}{}, lastErr
		}

		retrying, rerr := m.Retry()
		if rerr != nil {
			return struct{}{}, err
		}
		rep.Retries++
		bus.stage(rep.Name, retrying)
		bus.errMsg(rep.Name, fmt.Sprintf("%s attempt %d failed, retrying: %s",
			stage, attempt, rperrors.RedactError(err)))
		return struct{}{}, transientError{err: err}
	})
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

func (s *Scheduler) isTransient(err error) bool {
	if rperrors.IsKind(err, rperrors.KindTimeout) {
		return true
	}
	return s.backend.IsTransient(err)
}

// invoke calls the backend for stage under the stage timeout.
func (s *Scheduler) invoke(ctx context.Context, stage domain.Stage, job Job) error {
	const op = "publish.Scheduler.invoke"

	var fn func(context.Context, Job) error
	switch stage {
	case domain.StagePinning:
		fn = s.backend.Pin
	case domain.StageBuilding:
		fn = s.backend.Build
	case domain.StagePublishing:
		fn = s.backend.Publish
	case domain.StagePolling:
		fn = s.backend.Poll
	case domain.StageVerifying:
		fn = s.backend.Verify
	default:
		return rperrors.State(op, "no backend step for stage "+stage.String())
	}

	stageCtx := ctx
	if s.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, s.opts.StageTimeout)
		defer cancel()
	}

	err := fn(stageCtx, job)
	if err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return rperrors.TimeoutWrap(err, op, fmt.Sprintf("%s timed out after %s", stage, s.opts.StageTimeout))
	}
	return err
}
