package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	apppublish "github.com/relicta-tech/releasekit/internal/application/publish"
	domain "github.com/relicta-tech/releasekit/internal/domain/publish"
)

// maxCellWidth truncates long cells such as commit subjects.
const maxCellWidth = 60

// Table is a plain column table rendered with display-width aware padding.
type Table struct {
	Headers []string
	Rows    [][]string
	// Style optionally styles a cell; it must not change its width.
	Style func(row, col int, cell string) string
}

// Render writes the table to w.
func (t Table) Render(w io.Writer, styles Styles) error {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = runewidth.StringWidth(h)
	}
	cells := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells[r] = make([]string, len(t.Headers))
		for c := range t.Headers {
			if c >= len(row) {
				continue
			}
			cell := runewidth.Truncate(row[c], maxCellWidth, "…")
			cells[r][c] = cell
			widths[c] = max(widths[c], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	header := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = styles.Header.Render(pad(h, widths[i]))
	}
	b.WriteString(strings.TrimRight(strings.Join(header, "  "), " "))
	b.WriteString("\n")

	for r, row := range cells {
		line := make([]string, len(row))
		for c, cell := range row {
			padded := pad(cell, widths[c])
			if t.Style != nil {
				padded = t.Style(r, c, padded)
			}
			line[c] = padded
		}
		b.WriteString(strings.TrimRight(strings.Join(line, "  "), " "))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// PlanRow is one package in a release plan.
type PlanRow struct {
	Workspace string
	Name      string
	Current   string
	Bump      string
	Next      string
	Reason    string
	Skipped   bool
}

// RenderPlan writes the plan table.
func RenderPlan(w io.Writer, rows []PlanRow, styles Styles) error {
	t := Table{Headers: []string{"WORKSPACE", "PACKAGE", "CURRENT", "BUMP", "NEXT", "REASON"}}
	for _, r := range rows {
		next := r.Next
		if r.Skipped {
			next = "-"
		}
		t.Rows = append(t.Rows, []string{r.Workspace, r.Name, r.Current, r.Bump, next, r.Reason})
	}
	t.Style = func(row, col int, cell string) string {
		if rows[row].Skipped {
			return styles.Subtle.Render(cell)
		}
		if col == 3 || col == 4 {
			return styles.Success.Render(cell)
		}
		return cell
	}
	return t.Render(w, styles)
}

// RenderReport writes the final publish report and a summary line.
func RenderReport(w io.Writer, report *apppublish.Report, styles Styles) error {
	t := Table{Headers: []string{"LEVEL", "PACKAGE", "VERSION", "STAGE", "RETRIES", "DETAIL"}}
	for _, p := range report.Packages {
		detail := p.Reason
		if p.Error != "" {
			detail = p.Error
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprint(p.Level),
			p.Name,
			versionColumn(p),
			stageIcon(p.Stage) + " " + StageLabel(p.Stage),
			fmt.Sprint(p.Retries),
			firstLine(detail),
		})
	}
	t.Style = func(row, col int, cell string) string {
		if col == 3 {
			return styles.StageStyle(report.Packages[row].Stage).Render(cell)
		}
		return cell
	}
	if err := t.Render(w, styles); err != nil {
		return err
	}

	_, err := io.WriteString(w, "\n"+Summary(report, styles)+"\n")
	return err
}

// Summary is a one-line count of final stages.
func Summary(report *apppublish.Report, styles Styles) string {
	counts := report.Counts()
	parts := []string{
		styles.Success.Render(fmt.Sprintf("%d published", counts[domain.StagePublished])),
		styles.Error.Render(fmt.Sprintf("%d failed", counts[domain.StageFailed])),
		styles.Warning.Render(fmt.Sprintf("%d blocked", counts[domain.StageBlocked])),
		styles.Subtle.Render(fmt.Sprintf("%d skipped", counts[domain.StageSkipped])),
	}
	line := strings.Join(parts, ", ")
	if report.Cancelled {
		line += " " + styles.Warning.Render("(cancelled)")
	}
	return fmt.Sprintf("%s in %s", line, report.Duration.Round(10*time.Millisecond))
}

func versionColumn(p apppublish.PackageReport) string {
	if p.Version == "" || p.Version == p.PreviousVersion {
		return p.PreviousVersion
	}
	return p.PreviousVersion + " → " + p.Version
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Banner renders a title line.
func Banner(title string, styles Styles) string {
	return styles.Title.Render(title)
}
