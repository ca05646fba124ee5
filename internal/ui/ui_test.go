package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
)

type fakeControl struct {
	state domain.SchedulerState
	calls []string
}

func (c *fakeControl) State() domain.SchedulerState { return c.state }

func (c *fakeControl) Pause() bool {
	c.calls = append(c.calls, "pause")
	c.state = domain.SchedulerPaused
	return true
}

func (c *fakeControl) Resume() bool {
	c.calls = append(c.calls, "resume")
	c.state = domain.SchedulerRunning
	return true
}

func (c *fakeControl) Cancel() bool {
	c.calls = append(c.calls, "cancel")
	c.state = domain.SchedulerCancelled
	return true
}

type recordingSender struct {
	msgs []tea.Msg
}

func (s *recordingSender) Send(msg tea.Msg) { s.msgs = append(s.msgs, msg) }

func keyMsg(k string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func update(t *testing.T, m ProgressModel, msg tea.Msg) (ProgressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(ProgressModel)
	require.True(t, ok)
	return pm, cmd
}

func TestProgressModel_TracksEvents(t *testing.T) {
	m := NewProgressModel("releasekit publish", &fakeControl{state: domain.SchedulerRunning})

	m, _ = update(t, m, LevelMsg{Level: 0, Packages: []string{"core"}})
	m, _ = update(t, m, StageMsg{Package: "core", Stage: domain.StagePublishing})
	m, _ = update(t, m, StageMsg{Package: "core", Stage: domain.StageRetrying})
	m, _ = update(t, m, ErrorMsg{Package: "core", Message: "publish attempt 1 failed\nsecond line"})
	m, _ = update(t, m, StageMsg{Package: "core", Stage: domain.StagePublished})
	m, _ = update(t, m, LevelMsg{Level: 1, Packages: []string{"web"}})
	m, _ = update(t, m, StageMsg{Package: "web", Stage: domain.StageBlocked})

	require.Len(t, m.rows, 2)
	assert.Equal(t, domain.StagePublished, m.rows[0].stage)
	assert.Equal(t, 1, m.rows[0].retries)
	assert.Equal(t, 1, m.rows[1].level)

	view := m.View()
	assert.Contains(t, view, "releasekit publish")
	assert.Contains(t, view, "core")
	assert.Contains(t, view, "Published")
	assert.Contains(t, view, "Blocked")
	assert.Contains(t, view, "(retries: 1)")
	assert.Contains(t, view, "core: publish attempt 1 failed")
	assert.NotContains(t, view, "second line")
	assert.Contains(t, view, "p pause/resume")
}

func TestProgressModel_ErrorsAreBounded(t *testing.T) {
	m := NewProgressModel("t", &fakeControl{})
	for i := range maxShownErrors + 3 {
		m, _ = update(t, m, ErrorMsg{Package: "core", Message: strings.Repeat("x", i+1)})
	}
	assert.Len(t, m.errors, maxShownErrors)
	assert.Equal(t, "core: xxxxxxxx", m.errors[maxShownErrors-1])
}

func TestProgressModel_Keys(t *testing.T) {
	control := &fakeControl{state: domain.SchedulerRunning}
	m := NewProgressModel("t", control)

	m, _ = update(t, m, keyMsg("p"))
	m, _ = update(t, m, StateMsg{State: domain.SchedulerPaused})
	assert.Contains(t, m.View(), "paused")

	m, _ = update(t, m, keyMsg("p"))
	m, cmd := update(t, m, keyMsg("c"))
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"pause", "resume", "cancel"}, control.calls)

	m, _ = update(t, m, StateMsg{State: domain.SchedulerCancelled})
	assert.Contains(t, m.View(), "cancelling")
}

func TestProgressModel_QuitCancelsUntilDone(t *testing.T) {
	control := &fakeControl{state: domain.SchedulerRunning}
	m := NewProgressModel("t", control)

	m, cmd := update(t, m, keyMsg("q"))
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"cancel"}, control.calls)

	m, cmd = update(t, m, DoneMsg{})
	assert.True(t, m.Done())
	require.NotNil(t, cmd)
	assert.NotContains(t, m.View(), "pause/resume")
}

func TestTeaObserver_SendsMessages(t *testing.T) {
	s := &recordingSender{}
	o := NewTeaObserver(s)

	o.OnLevelStart(0, []string{"a"})
	o.OnStageChange("a", domain.StagePinning)
	o.OnError("a", "boom")
	o.OnSchedulerStateChange(domain.SchedulerPaused)
	o.OnComplete()

	assert.Equal(t, []tea.Msg{
		LevelMsg{Level: 0, Packages: []string{"a"}},
		StageMsg{Package: "a", Stage: domain.StagePinning},
		ErrorMsg{Package: "a", Message: "boom"},
		StateMsg{State: domain.SchedulerPaused},
		DoneMsg{},
	}, s.msgs)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	o := NewLogObserver(logger)

	o.OnLevelStart(0, []string{"core"})
	o.OnStageChange("core", domain.StageRetrying)
	o.OnError("core", "registry timeout")
	o.OnStageChange("core", domain.StagePublished)
	o.OnStageChange("web", domain.StageBlocked)
	o.OnSchedulerStateChange(domain.SchedulerPaused)
	o.OnComplete()

	out := buf.String()
	for _, want := range []string{
		"starting level", "retrying stage", "registry timeout",
		"package published", "package blocked", "scheduler state changed",
		"publish complete",
	} {
		assert.Contains(t, out, want)
	}
}

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "Publishing", StageLabel(domain.StagePublishing))
	assert.Equal(t, "Blocked", StageLabel(domain.StageBlocked))
}

func TestRenderPlan(t *testing.T) {
	var buf bytes.Buffer
	err := RenderPlan(&buf, []PlanRow{
		{Workspace: "js", Name: "core", Current: "1.0.0", Bump: "minor", Next: "1.1.0", Reason: "feat: add x"},
		{Workspace: "js", Name: "日本語", Current: "0.1.0", Bump: "none", Reason: "no releasable changes", Skipped: true},
	}, DefaultStyles())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PACKAGE")
	assert.Contains(t, lines[1], "1.1.0")
	assert.Contains(t, lines[2], "日本語")
	assert.Contains(t, lines[2], " - ")
}

func TestTable_TruncatesLongCells(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("a", maxCellWidth+20)
	require.NoError(t, Table{Headers: []string{"X"}, Rows: [][]string{{long}}}.Render(&buf, Styles{}))
	assert.Contains(t, buf.String(), "…")
	assert.NotContains(t, buf.String(), long)
}

func TestRenderReport(t *testing.T) {
	report := &apppublish.Report{
		Packages: []apppublish.PackageReport{
			{Name: "core", Level: 0, Stage: domain.StagePublished, PreviousVersion: "1.0.0", Version: "1.1.0", Retries: 1},
			{Name: "web", Level: 1, Stage: domain.StageFailed, PreviousVersion: "2.0.0", Version: "2.0.1", Error: "publish failed\ndetails"},
			{Name: "cli", Level: 1, Stage: domain.StageSkipped, PreviousVersion: "0.1.0", Reason: "no bump result"},
		},
		Cancelled: true,
		Duration:  1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, report, DefaultStyles()))
	out := buf.String()

	assert.Contains(t, out, "1.0.0 → 1.1.0")
	assert.Contains(t, out, "publish failed")
	assert.NotContains(t, out, "details")
	assert.Contains(t, out, "no bump result")
	assert.Contains(t, out, "1 published")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "1 skipped")
	assert.Contains(t, out, "(cancelled)")
	assert.Contains(t, out, "1.5s")
}
