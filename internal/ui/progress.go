package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
)

// maxShownErrors bounds the error lines kept under the package list.
const maxShownErrors = 5

// Control is the part of the scheduler controller the view drives.
type Control interface {
	State() domain.SchedulerState
	Pause() bool
	Resume() bool
	Cancel() bool
}

// Progress messages, sent by TeaObserver.
type (
	StageMsg struct {
		Package string
		Stage   domain.Stage
	}
	ErrorMsg struct {
		Package string
		Message string
	}
	LevelMsg struct {
		Level    int
		Packages []string
	}
	StateMsg struct {
		State domain.SchedulerState
	}
	DoneMsg struct{}
)

type progressKeyMap struct {
	Pause  key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

func defaultProgressKeys() progressKeyMap {
	return progressKeyMap{
		Pause: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p", "pause/resume"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "cancel and quit"),
		),
	}
}

type progressRow struct {
	name    string
	level   int
	stage   domain.Stage
	retries int
}

// ProgressModel is the Bubble Tea model of a running publish.
type ProgressModel struct {
	title   string
	control Control
	spinner spinner.Model
	keys    progressKeyMap
	styles  Styles

	rows   []*progressRow
	index  map[string]int
	level  int
	state  domain.SchedulerState
	errors []string
	done   bool
}

// NewProgressModel creates a progress view driving control.
func NewProgressModel(title string, control Control) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	styles := DefaultStyles()
	s.Style = styles.Info

	return ProgressModel{
		title:   title,
		control: control,
		spinner: s,
		keys:    defaultProgressKeys(),
		styles:  styles,
		index:   make(map[string]int),
		level:   -1,
		state:   domain.SchedulerRunning,
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.done {
				return m, tea.Quit
			}
			m.control.Cancel()
			return m, nil

		case key.Matches(msg, m.keys.Cancel):
			m.control.Cancel()
			return m, nil

		case key.Matches(msg, m.keys.Pause):
			if m.control.State() == domain.SchedulerPaused {
				m.control.Resume()
			} else {
				m.control.Pause()
			}
			return m, nil
		}

	case LevelMsg:
		m.level = msg.Level
		for _, name := range msg.Packages {
			m.row(name).level = msg.Level
		}

	case StageMsg:
		r := m.row(msg.Package)
		if msg.Stage == domain.StageRetrying {
			r.retries++
		}
		r.stage = msg.Stage

	case ErrorMsg:
		m.errors = append(m.errors, fmt.Sprintf("%s: %s", msg.Package, firstLine(msg.Message)))
		if len(m.errors) > maxShownErrors {
			m.errors = m.errors[len(m.errors)-maxShownErrors:]
		}

	case StateMsg:
		m.state = msg.State

	case DoneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// row returns the row of name, appending it when unseen. The pointer stays
// valid because rows holds pointers.
func (m *ProgressModel) row(name string) *progressRow {
	if i, ok := m.index[name]; ok {
		return m.rows[i]
	}
	r := &progressRow{name: name, level: m.level, stage: domain.StageWaiting}
	m.index[name] = len(m.rows)
	m.rows = append(m.rows, r)
	return r
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString(" ")
	b.WriteString(m.renderState())
	b.WriteString("\n\n")

	width := 0
	for _, r := range m.rows {
		width = max(width, runewidth.StringWidth(r.name))
	}
	for _, r := range m.rows {
		b.WriteString(m.renderRow(r, width))
		b.WriteString("\n")
	}

	if len(m.errors) > 0 {
		b.WriteString("\n")
		for _, e := range m.errors {
			b.WriteString(m.styles.Error.Render(e))
			b.WriteString("\n")
		}
	}

	if !m.done {
		b.WriteString("\n")
		b.WriteString(m.styles.Help.Render(m.helpLine()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ProgressModel) renderState() string {
	label := fmt.Sprintf("level %d", max(m.level, 0))
	switch m.state {
	case domain.SchedulerPaused:
		return m.styles.Warning.Render("paused, " + label)
	case domain.SchedulerCancelled:
		return m.styles.Error.Render("cancelling")
	}
	if m.done {
		return m.styles.Subtle.Render("done")
	}
	return m.styles.Subtle.Render(label)
}

func (m ProgressModel) renderRow(r *progressRow, width int) string {
	marker := stageIcon(r.stage)
	if r.stage.IsPipeline() || r.stage == domain.StageRetrying {
		marker = m.spinner.View()
	}
	line := fmt.Sprintf("%s %s  %s", marker, runewidth.FillRight(r.name, width),
		m.styles.StageStyle(r.stage).Render(StageLabel(r.stage)))
	if r.retries > 0 {
		line += m.styles.Subtle.Render(fmt.Sprintf(" (retries: %d)", r.retries))
	}
	return line
}

func (m ProgressModel) helpLine() string {
	bindings := []key.Binding{m.keys.Pause, m.keys.Cancel, m.keys.Quit}
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// Done reports whether the run finished.
func (m ProgressModel) Done() bool {
	return m.done
}

// Sender delivers messages to a running program; *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// TeaObserver forwards scheduler events to a Bubble Tea program.
type TeaObserver struct {
	sender Sender
}

var _ apppublish.Observer = (*TeaObserver)(nil)

// NewTeaObserver creates an observer sending to s.
func NewTeaObserver(s Sender) *TeaObserver {
	return &TeaObserver{sender: s}
}

func (o *TeaObserver) OnStageChange(pkg string, stage domain.Stage) {
	o.sender.Send(StageMsg{Package: pkg, Stage: stage})
}

func (o *TeaObserver) OnError(pkg string, message string) {
	o.sender.Send(ErrorMsg{Package: pkg, Message: message})
}

func (o *TeaObserver) OnLevelStart(level int, pkgs []string) {
	o.sender.Send(LevelMsg{Level: level, Packages: pkgs})
}

func (o *TeaObserver) OnSchedulerStateChange(state domain.SchedulerState) {
	o.sender.Send(StateMsg{State: state})
}

func (o *TeaObserver) OnComplete() {
	o.sender.Send(DoneMsg{})
}
