// Package observability collects publish run metrics and writes them in
// the Prometheus text exposition format.
package observability

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
	rperrors "github.com/relicta-tech/releasekit/internal/errors"
	"github.com/relicta-tech/releasekit/internal/fileutil"
)

// Metrics is a publish Observer that counts what happens during a run.
// One Metrics may observe several runs; counters accumulate.
type Metrics struct {
	mu  sync.Mutex
	now func() time.Time

	version string

	// Counters
	stageTransitions map[domain.Stage]int64
	finalStages      map[domain.Stage]int64
	stateChanges     map[domain.SchedulerState]int64
	retries          map[string]int64
	errors           int64
	levels           int64
	runs             int64

	// Level latency (simplified summary: count and sum)
	levelStart      time.Time
	levelLatencyCnt int64
	levelLatencySum time.Duration
	runStart        time.Time
	runLatencySum   time.Duration
}

var _ apppublish.Observer = (*Metrics)(nil)

// NewMetrics creates an empty collector labelled with the tool version.
func NewMetrics(version string) *Metrics {
	return &Metrics{
		now:              time.Now,
		version:          version,
		stageTransitions: make(map[domain.Stage]int64),
		finalStages:      make(map[domain.Stage]int64),
		stateChanges:     make(map[domain.SchedulerState]int64),
		retries:          make(map[string]int64),
	}
}

// OnStageChange counts the transition, retries and final outcomes.
func (m *Metrics) OnStageChange(pkg string, stage domain.Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stageTransitions[stage]++
	switch {
	case stage == domain.StageRetrying:
		m.retries[pkg]++
	case stage.IsTerminal():
		m.finalStages[stage]++
	}
}

// OnError counts error notifications.
func (m *Metrics) OnError(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// OnLevelStart closes the previous level's timer and starts a new one.
func (m *Metrics) OnLevelStart(int, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.runStart.IsZero() {
		m.runStart = now
	}
	m.closeLevel(now)
	m.levelStart = now
	m.levels++
}

// OnSchedulerStateChange counts control state changes.
func (m *Metrics) OnSchedulerStateChange(state domain.SchedulerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateChanges[state]++
}

// OnComplete closes the last level and the run.
func (m *Metrics) OnComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.closeLevel(now)
	if !m.runStart.IsZero() {
		m.runLatencySum += now.Sub(m.runStart)
		m.runStart = time.Time{}
	}
	m.runs++
}

func (m *Metrics) closeLevel(now time.Time) {
	if m.levelStart.IsZero() {
		return
	}
	m.levelLatencyCnt++
	m.levelLatencySum += now.Sub(m.levelStart)
	m.levelStart = time.Time{}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StageTransitions map[domain.Stage]int64
	FinalStages      map[domain.Stage]int64
	Retries          int64
	Errors           int64
	Levels           int64
	Runs             int64
	LevelDuration    time.Duration
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var retries int64
	for _, n := range m.retries {
		retries += n
	}
	s := Snapshot{
		StageTransitions: make(map[domain.Stage]int64, len(m.stageTransitions)),
		FinalStages:      make(map[domain.Stage]int64, len(m.finalStages)),
		Retries:          retries,
		Errors:           m.errors,
		Levels:           m.levels,
		Runs:             m.runs,
		LevelDuration:    m.levelLatencySum,
	}
	for k, v := range m.stageTransitions {
		s.StageTransitions[k] = v
	}
	for k, v := range m.finalStages {
		s.FinalStages[k] = v
	}
	return s
}

// WriteTo writes the metrics in Prometheus text format.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	m.mu.Lock()
	var sb strings.Builder

	sb.WriteString("# HELP releasekit_info Build information\n")
	sb.WriteString("# TYPE releasekit_info gauge\n")
	sb.WriteString(fmt.Sprintf("releasekit_info{version=%q} 1\n\n", m.version))

	sb.WriteString("# HELP releasekit_publish_runs_total Completed publish runs\n")
	sb.WriteString("# TYPE releasekit_publish_runs_total counter\n")
	sb.WriteString(fmt.Sprintf("releasekit_publish_runs_total %d\n\n", m.runs))

	sb.WriteString("# HELP releasekit_stage_transitions_total Package stage transitions\n")
	sb.WriteString("# TYPE releasekit_stage_transitions_total counter\n")
	for _, stage := range sortedKeys(m.stageTransitions) {
		sb.WriteString(fmt.Sprintf("releasekit_stage_transitions_total{stage=%q} %d\n", stage, m.stageTransitions[stage]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP releasekit_packages_total Packages by final stage\n")
	sb.WriteString("# TYPE releasekit_packages_total counter\n")
	for _, stage := range sortedKeys(m.finalStages) {
		sb.WriteString(fmt.Sprintf("releasekit_packages_total{stage=%q} %d\n", stage, m.finalStages[stage]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP releasekit_retries_total Stage retries per package\n")
	sb.WriteString("# TYPE releasekit_retries_total counter\n")
	for _, pkg := range sortedKeys(m.retries) {
		sb.WriteString(fmt.Sprintf("releasekit_retries_total{package=%q} %d\n", pkg, m.retries[pkg]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP releasekit_errors_total Error notifications\n")
	sb.WriteString("# TYPE releasekit_errors_total counter\n")
	sb.WriteString(fmt.Sprintf("releasekit_errors_total %d\n\n", m.errors))

	sb.WriteString("# HELP releasekit_scheduler_state_changes_total Scheduler control state changes\n")
	sb.WriteString("# TYPE releasekit_scheduler_state_changes_total counter\n")
	for _, state := range sortedKeys(m.stateChanges) {
		sb.WriteString(fmt.Sprintf("releasekit_scheduler_state_changes_total{state=%q} %d\n", state, m.stateChanges[state]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP releasekit_level_duration_seconds Time spent per graph level\n")
	sb.WriteString("# TYPE releasekit_level_duration_seconds summary\n")
	sb.WriteString(fmt.Sprintf("releasekit_level_duration_seconds_count %d\n", m.levelLatencyCnt))
	sb.WriteString(fmt.Sprintf("releasekit_level_duration_seconds_sum %.3f\n\n", m.levelLatencySum.Seconds()))

	sb.WriteString("# HELP releasekit_publish_duration_seconds Total publish run time\n")
	sb.WriteString("# TYPE releasekit_publish_duration_seconds counter\n")
	sb.WriteString(fmt.Sprintf("releasekit_publish_duration_seconds %.3f\n", m.runLatencySum.Seconds()))
	m.mu.Unlock()

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// WriteFile writes the metrics to path, replacing it atomically.
func (m *Metrics) WriteFile(path string) error {
	const op = "observability.WriteFile"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rperrors.IOWrap(err, op, "create metrics directory")
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return rperrors.IOWrap(err, op, "render metrics")
	}
	if err := fileutil.AtomicWriteFile(path, buf.Bytes(), 0o644); err != nil {
		return rperrors.IOWrap(err, op, "write metrics file")
	}
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
