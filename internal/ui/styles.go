// Package ui provides terminal output for releasekit: publish progress
// views, log observers and plan/report tables.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
)

// Styles are the shared lipgloss styles.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Subtle  lipgloss.Style
	Bold    lipgloss.Style
	Header  lipgloss.Style
	Help    lipgloss.Style
	Status  lipgloss.Style
}

// DefaultStyles returns the default palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1),
		Status: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1),
	}
}

// StageLabel returns the display name of a stage, e.g. "Publishing".
func StageLabel(stage domain.Stage) string {
	return cases.Title(language.English).String(stage.String())
}

// StageStyle picks the style a stage is rendered in.
func (s Styles) StageStyle(stage domain.Stage) lipgloss.Style {
	switch stage {
	case domain.StagePublished:
		return s.Success
	case domain.StageFailed:
		return s.Error
	case domain.StageBlocked, domain.StageRetrying:
		return s.Warning
	case domain.StageSkipped, domain.StageWaiting:
		return s.Subtle
	default:
		return s.Info
	}
}

// stageIcon is a one-cell marker for a stage.
func stageIcon(stage domain.Stage) string {
	switch stage {
	case domain.StagePublished:
		return "✓"
	case domain.StageFailed:
		return "✗"
	case domain.StageBlocked:
		return "⊘"
	case domain.StageSkipped:
		return "-"
	case domain.StageRetrying:
		return "↻"
	case domain.StageWaiting:
		return "·"
	default:
		return "•"
	}
}
