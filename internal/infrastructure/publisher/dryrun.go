package publisher

import (
	"context"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
)

// DryRunBackend logs the commands each stage would run without touching
// manifests or registries.
type DryRunBackend struct {
	inner *CommandBackend
}

var _ apppublish.Backend = (*DryRunBackend)(nil)

// NewDryRunBackend creates a dry-run backend rendering the same commands a
// CommandBackend built from cfg would run.
func NewDryRunBackend(cfg Config) (*DryRunBackend, error) {
	inner, err := NewCommandBackend(cfg)
	if err != nil {
		return nil, err
	}
	return &DryRunBackend{inner: inner}, nil
}

func (d *DryRunBackend) Pin(_ context.Context, job apppublish.Job) error {
	d.inner.logger.Named(job.Package.Name).Info("dry run: would pin manifest",
		"manifest", job.Package.Manifest,
		"version", job.Version,
		"dependencies", len(job.DependencyVersions))
	return nil
}

func (d *DryRunBackend) Build(ctx context.Context, job apppublish.Job) error {
	return d.show(ctx, StageBuild, job)
}

func (d *DryRunBackend) Publish(ctx context.Context, job apppublish.Job) error {
	return d.show(ctx, StagePublish, job)
}

func (d *DryRunBackend) Poll(ctx context.Context, job apppublish.Job) error {
	return d.show(ctx, StagePoll, job)
}

func (d *DryRunBackend) Verify(ctx context.Context, job apppublish.Job) error {
	return d.show(ctx, StageVerify, job)
}

// IsTransient is always false; nothing in a dry run can be retried into
// success.
func (d *DryRunBackend) IsTransient(error) bool {
	return false
}

func (d *DryRunBackend) show(ctx context.Context, stage string, job apppublish.Job) error {
	line, err := d.inner.commandFor(ctx, stage, d.inner.commandData(stage, job))
	if err != nil {
		return err
	}
	logger := d.inner.logger.Named(job.Package.Name).With("stage", stage)
	if line == "" {
		logger.Info("dry run: no command configured")
		return nil
	}
	logger.Info("dry run: would run", "command", d.inner.masker.Mask(line))
	return nil
}
