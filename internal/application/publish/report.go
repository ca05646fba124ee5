package publish

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
)

// ErrPublishFailed is returned by Report.Err when the run failed.
var ErrPublishFailed = errors.New("publish failed")

// PackageReport is the final status of one package.
type PackageReport struct {
	Name            string        `json:"name"`
	Level           int           `json:"level"`
	Stage           domain.Stage  `json:"stage"`
	PreviousVersion string        `json:"previous_version"`
	Version         string        `json:"version"`
	Retries         int           `json:"retries"`
	Reason          string        `json:"reason,omitempty"`
	Error           string        `json:"error,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Report summarizes a scheduler run.
type Report struct {
	RunID         string          `json:"run_id"`
	Workspace     string          `json:"workspace"`
	Packages      []PackageReport `json:"packages"`
	Cancelled     bool            `json:"cancelled"`
	FailOnBlocked bool            `json:"fail_on_blocked"`
	StartedAt     time.Time       `json:"started_at"`
	Duration      time.Duration   `json:"duration"`
}

// Counts returns the number of packages per final stage.
func (r *Report) Counts() map[domain.Stage]int {
	counts := make(map[domain.Stage]int)
	for _, p := range r.Packages {
		counts[p.Stage]++
	}
	return counts
}

// Failed reports whether any package ended FAILED, or BLOCKED when
// FailOnBlocked is set. Packages stopped by a cancel are not failures.
func (r *Report) Failed() bool {
	return len(r.failures()) > 0
}

// Err returns an error naming the failing packages. A cancelled run with
// no failures returns a KindCanceled error; a clean run returns nil.
func (r *Report) Err() error {
	if failures := r.failures(); len(failures) > 0 {
		return fmt.Errorf("%w: %s", ErrPublishFailed, strings.Join(failures, ", "))
	}
	if r.Cancelled {
		return rperrors.Canceled("publish.Report", "publish cancelled")
	}
	return nil
}

func (r *Report) failures() []string {
	var names []string
	for _, p := range r.Packages {
		if p.Reason == ReasonCancelled {
			continue
		}
		if p.Stage == domain.StageFailed || (r.FailOnBlocked && p.Stage == domain.StageBlocked) {
			names = append(names, p.Name)
		}
	}
	return names
}

// Package returns the report entry for name.
func (r *Report) Package(name string) (PackageReport, bool) {
	for _, p := range r.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return PackageReport{}, false
}
