// Package publisher implements publish stages by pinning manifests and
// running per-ecosystem shell commands.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/hashicorp/go-hclog"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	"github.com/relicta-tech/releasekit/internal/domain/version"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
	"github.com/relicta-tech/releasekit/internal/infrastructure/template"
	"github.com/relicta-tech/releasekit/internal/security"
)

// Stage names used for command templates.
const (
	StageBuild   = "build"
	StagePublish = "publish"
	StagePoll    = "poll"
	StageVerify  = "verify"
)

// customPrefix names templates registered from configuration.
const customPrefix = "custom"

// commandWaitDelay bounds how long a cancelled command may hold its
// output pipes open.
const commandWaitDelay = 2 * time.Second

// DefaultTransientPatterns match registry and network failures worth
// retrying.
var DefaultTransientPatterns = []string{
	`(?i)ETIMEDOUT`,
	`(?i)ECONNRESET`,
	`(?i)EAI_AGAIN`,
	`(?i)socket hang up`,
	`(?i)connection (reset|refused)`,
	`(?i)timed? ?out`,
	`(?i)temporarily unavailable`,
	`(?i)too many requests`,
	`(?i)rate.?limit`,
	`\b(429|502|503|504)\b`,
}

// Config configures a CommandBackend.
type Config struct {
	// RepoRoot is the directory package paths are relative to.
	RepoRoot string
	// Commands override the embedded presets per stage name.
	Commands map[string]string
	// TransientPatterns are regexes matched against failed command output.
	// Nil uses DefaultTransientPatterns.
	TransientPatterns []string
	// RateLimitPerMinute bounds publish commands per ecosystem; 0 disables.
	RateLimitPerMinute int
	// CircuitBreakerThreshold opens a per-ecosystem breaker after that many
	// consecutive publish failures; 0 disables.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long an open breaker rejects publishes.
	CircuitBreakerTimeout time.Duration
	// Shell runs command lines; defaults to "sh".
	Shell string
	// Logger receives command output; each package gets a named sub-logger.
	Logger hclog.Logger
	// Renderer renders command templates; nil creates one.
	Renderer *template.Renderer
}

// CommandData is the template data for stage commands.
type CommandData struct {
	Name            string
	Version         string
	PreviousVersion string
	Path            string
	Dir             string
	Manifest        string
	Ecosystem       string
	Workspace       string
	RunID           string
	Stage           string
	Attempt         int
	Prerelease      bool
	Dependencies    map[string]string
}

// CommandBackend runs the publish stages of a package.
type CommandBackend struct {
	cfg       Config
	renderer  *template.Renderer
	transient []*regexp.Regexp
	logger    hclog.Logger
	limiter   ratelimit.RateLimiter
	masker    *security.Masker

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[struct{}]
}

var _ apppublish.Backend = (*CommandBackend)(nil)

// NewCommandBackend validates cfg and registers configured commands.
func NewCommandBackend(cfg Config) (*CommandBackend, error) {
	const op = "publisher.NewCommandBackend"

	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "publish",
			Level:  hclog.Info,
			Output: os.Stderr,
		})
	}

	renderer := cfg.Renderer
	if renderer == nil {
		var err error
		if renderer, err = template.NewRenderer(); err != nil {
			return nil, err
		}
	}
	for stage, text := range cfg.Commands {
		if !isCommandStage(stage) {
			return nil, rperrors.Validation(op, fmt.Sprintf("unknown command stage %q", stage))
		}
		if err := renderer.Register(template.PresetName(customPrefix, stage), text); err != nil {
			return nil, err
		}
	}

	patterns := cfg.TransientPatterns
	if patterns == nil {
		patterns = DefaultTransientPatterns
	}
	transient := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, rperrors.ValidationWrap(err, op, fmt.Sprintf("invalid transient pattern %q", p))
		}
		transient = append(transient, re)
	}

	b := &CommandBackend{
		cfg:       cfg,
		renderer:  renderer,
		transient: transient,
		logger:    logger,
		masker:    security.NewMasker(os.Environ()),
		breakers:  make(map[string]circuitbreaker.CircuitBreaker[struct{}]),
	}
	if cfg.RateLimitPerMinute > 0 {
		b.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitPerMinute,
			Burst:    cfg.RateLimitPerMinute,
			Interval: time.Minute,
		})
	}
	return b, nil
}

func isCommandStage(stage string) bool {
	switch stage {
	case StageBuild, StagePublish, StagePoll, StageVerify:
		return true
	}
	return false
}

// Pin rewrites the package manifest to the release version and pins its
// internal dependencies.
func (b *CommandBackend) Pin(_ context.Context, job apppublish.Job) error {
	const op = "publisher.Pin"

	if job.Package.Manifest == "" {
		return nil
	}
	path := filepath.Join(b.cfg.RepoRoot, filepath.FromSlash(job.Package.Manifest))
	changed, err := PinManifest(path, job.Package.Ecosystem, job.Version, job.DependencyVersions)
	if err != nil {
		return rperrors.PublishWrap(err, op, fmt.Sprintf("failed to pin %s", job.Package.Manifest))
	}
	b.logger.Named(job.Package.Name).Debug("pinned manifest", "manifest", job.Package.Manifest, "changed", changed)
	return nil
}

// Build runs the build command.
func (b *CommandBackend) Build(ctx context.Context, job apppublish.Job) error {
	return b.run(ctx, StageBuild, job)
}

// Publish runs the publish command, subject to the rate limit and the
// ecosystem's circuit breaker.
func (b *CommandBackend) Publish(ctx context.Context, job apppublish.Job) error {
	const op = "publisher.Publish"

	eco := string(job.Package.Ecosystem)
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, eco); err != nil {
			return rperrors.Wrap(err, rperrors.KindCanceled, op, "rate limit wait aborted")
		}
	}

	breaker := b.breaker(eco)
	if breaker == nil {
		return b.run(ctx, StagePublish, job)
	}

	ran := false
	_, err := breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		ran = true
		return struct{}{}, b.run(ctx, StagePublish, job)
	})
	if err != nil && !ran {
		return rperrors.Transient(err, op, fmt.Sprintf("%s registry circuit open", eco))
	}
	return err
}

// Poll runs the poll command. A failed poll means the release is not
// visible yet, so poll failures are always transient.
func (b *CommandBackend) Poll(ctx context.Context, job apppublish.Job) error {
	const op = "publisher.Poll"

	err := b.run(ctx, StagePoll, job)
	if err != nil && !rperrors.IsRecoverable(err) && ctx.Err() == nil {
		return rperrors.Transient(err, op, fmt.Sprintf("%s@%s not visible yet", job.Package.Name, job.Version))
	}
	return err
}

// Verify runs the verify command.
func (b *CommandBackend) Verify(ctx context.Context, job apppublish.Job) error {
	return b.run(ctx, StageVerify, job)
}

// IsTransient reports whether err was classified as retryable.
func (b *CommandBackend) IsTransient(err error) bool {
	return rperrors.IsRecoverable(err)
}

func (b *CommandBackend) breaker(eco string) circuitbreaker.CircuitBreaker[struct{}] {
	if b.cfg.CircuitBreakerThreshold <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[eco]; ok {
		return cb
	}
	threshold := b.cfg.CircuitBreakerThreshold
	cb := circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    b.cfg.CircuitBreakerTimeout,
		Timeout:     b.cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
		},
	})
	b.breakers[eco] = cb
	return cb
}

// commandFor returns the rendered command line for stage, or "" when no
// template applies.
func (b *CommandBackend) commandFor(ctx context.Context, stage string, data CommandData) (string, error) {
	name := template.PresetName(customPrefix, stage)
	if !b.renderer.Has(name) {
		name = template.PresetName(data.Ecosystem, stage)
		if !b.renderer.Has(name) {
			return "", nil
		}
	}
	return b.renderer.Render(ctx, name, data)
}

// run renders and executes the command for stage in the package directory.
// Output is streamed to the package logger; failures carry the output tail
// and are recoverable when it matches a transient pattern.
func (b *CommandBackend) run(ctx context.Context, stage string, job apppublish.Job) error {
	const op = "publisher.run"

	data := b.commandData(stage, job)
	logger := b.logger.Named(job.Package.Name).With("stage", stage, "attempt", job.Attempt)

	line, err := b.commandFor(ctx, stage, data)
	if err != nil {
		return err
	}
	if line == "" {
		logger.Debug("no command configured, skipping")
		return nil
	}

	tail := newTailBuffer(4096)
	out := newLineWriter(tail, security.NewMaskedWriter(
		logger.StandardWriter(&hclog.StandardLoggerOptions{ForceLevel: hclog.Debug}), b.masker))

	cmd := exec.CommandContext(ctx, b.cfg.Shell, "-c", line) // #nosec G204 -- command comes from release configuration
	cmd.Dir = data.Dir
	cmd.Env = append(os.Environ(), commandEnv(data)...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = commandWaitDelay
	configureProcess(cmd)

	logger.Info("running command", "command", b.masker.Mask(line))
	start := time.Now()
	runErr := cmd.Run()
	out.Flush()
	if runErr == nil {
		logger.Info("command finished", "duration", time.Since(start))
		return nil
	}

	output := b.masker.Mask(strings.TrimSpace(tail.String()))
	msg := fmt.Sprintf("%s command failed for %s", stage, job.Package.Name)
	if output != "" {
		msg += ": " + lastLines(output, 5)
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return rperrors.TimeoutWrap(runErr, op, msg)
		}
		return rperrors.Wrap(ctx.Err(), rperrors.KindCanceled, op, msg)
	}
	if b.matchesTransient(output) {
		return rperrors.Transient(runErr, op, msg)
	}
	return rperrors.PublishWrap(runErr, op, msg)
}

func (b *CommandBackend) matchesTransient(output string) bool {
	for _, re := range b.transient {
		if re.MatchString(output) {
			return true
		}
	}
	return false
}

func (b *CommandBackend) commandData(stage string, job apppublish.Job) CommandData {
	prerelease := false
	if v, err := version.Parse(job.Version); err == nil {
		prerelease = v.IsPrerelease()
	}
	return CommandData{
		Name:            job.Package.Name,
		Version:         job.Version,
		PreviousVersion: job.PreviousVersion,
		Path:            job.Package.Path,
		Dir:             filepath.Join(b.cfg.RepoRoot, filepath.FromSlash(job.Package.Path)),
		Manifest:        job.Package.Manifest,
		Ecosystem:       string(job.Package.Ecosystem),
		Workspace:       job.Workspace,
		RunID:           job.RunID,
		Stage:           stage,
		Attempt:         job.Attempt,
		Prerelease:      prerelease,
		Dependencies:    job.DependencyVersions,
	}
}

func commandEnv(d CommandData) []string {
	return []string{
		"RELEASEKIT_PACKAGE=" + d.Name,
		"RELEASEKIT_VERSION=" + d.Version,
		"RELEASEKIT_PREVIOUS_VERSION=" + d.PreviousVersion,
		"RELEASEKIT_STAGE=" + d.Stage,
		"RELEASEKIT_ATTEMPT=" + strconv.Itoa(d.Attempt),
		"RELEASEKIT_RUN_ID=" + d.RunID,
		"RELEASEKIT_WORKSPACE=" + d.Workspace,
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
