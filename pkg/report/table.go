// Package report renders model results as tables, JSON, YAML and HTML.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/model"
)

// Relativizer maps absolute coverage keys to display paths.
type Relativizer func(string) string

// Border picks box-drawing characters on a terminal and plain ASCII
// everywhere else, so piped output stays greppable.
func Border(w io.Writer) lipgloss.Border {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return lipgloss.NormalBorder()
	}
	return lipgloss.ASCIIBorder()
}

func newTable(border lipgloss.Border, numeric map[int]bool) *table.Table {
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row != table.HeaderRow && numeric[col] {
				return cell.Align(lipgloss.Right)
			}
			return cell
		})
}

// Table renders list rows with a stale marker column. Files whose verdict is
// not ok are marked with the verdict's short code.
func Table(w io.Writer, list *model.ListResult, rel Relativizer) error {
	if len(list.Files) == 0 {
		_, err := fmt.Fprintln(w, "No coverage data found")
		return err
	}
	t := newTable(Border(w), map[int]bool{1: true, 2: true, 3: true}).
		Headers("File", "%", "Covered", "Total", "Stale")

	var lines model.LineTotals
	stale := 0
	for _, r := range list.Files {
		mark := ""
		if r.Stale.Stale() {
			mark = r.Stale.Short()
			stale++
		}
		t.Row(rel(r.File), fmt.Sprintf("%.2f", r.Percentage), fmt.Sprint(r.Covered), fmt.Sprint(r.Total), mark)
		lines.Covered += r.Covered
		lines.Total += r.Total
	}
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return err
	}

	summary := fmt.Sprintf("Files: total %d", len(list.Files))
	if stale > 0 {
		summary += fmt.Sprintf(", stale %d", stale)
	}
	summary += fmt.Sprintf(" | Lines: %d/%d (%.2f%%)", lines.Covered, lines.Total, coverage.Percentage(lines.Covered, lines.Total))
	if _, err := fmt.Fprintln(w, summary); err != nil {
		return err
	}
	if stale > 0 {
		if _, err := fmt.Fprintln(w, "Staleness: M = missing, T = newer than coverage, L = line count mismatch, U = unreadable, E = error"); err != nil {
			return err
		}
	}
	return nil
}

// TotalsTable renders project totals as a two-column table.
func TotalsTable(w io.Writer, totals *model.Totals) error {
	t := newTable(Border(w), map[int]bool{1: true}).Headers("Metric", "Value")
	t.Row("Lines covered", fmt.Sprint(totals.Lines.Covered))
	t.Row("Lines uncovered", fmt.Sprint(totals.Lines.Uncovered))
	t.Row("Lines total", fmt.Sprint(totals.Lines.Total))
	t.Row("Percentage", fmt.Sprintf("%.2f%%", totals.Percentage))
	t.Row("Files total", fmt.Sprint(totals.Files.Total))
	t.Row("Files ok", fmt.Sprint(totals.Files.OK))
	t.Row("Files stale", fmt.Sprint(totals.Files.Stale))
	ex := totals.ExcludedFiles
	for _, r := range []struct {
		name string
		n    int
	}{
		{"Excluded: skipped", ex.Skipped},
		{"Excluded: missing tracked", ex.MissingTracked},
		{"Excluded: newer", ex.Newer},
		{"Excluded: deleted", ex.Deleted},
		{"Excluded: length mismatch", ex.LengthMismatch},
		{"Excluded: unreadable", ex.Unreadable},
	} {
		if r.n > 0 {
			t.Row(r.name, fmt.Sprint(r.n))
		}
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// FileTable renders one row per executable line of a detailed result.
func FileTable(w io.Writer, d *model.FileDetailed, rel Relativizer) error {
	t := newTable(Border(w), map[int]bool{0: true, 1: true}).Headers("Line", "Hits", "Covered")
	for _, l := range d.Lines {
		covered := "no"
		if l.Covered {
			covered = "yes"
		}
		t.Row(fmt.Sprint(l.Line), fmt.Sprint(l.Hits), covered)
	}
	if _, err := fmt.Fprintf(w, "%s  %.2f%% (%d/%d)%s\n", rel(d.File), d.Summary.Percentage, d.Summary.Covered, d.Summary.Total, staleSuffix(d.Stale)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// SummaryLine renders a single-file summary as one line.
func SummaryLine(w io.Writer, s *model.FileSummary, rel Relativizer) error {
	_, err := fmt.Fprintf(w, "%s  %.2f%% (%d/%d)%s\n", rel(s.File), s.Summary.Percentage, s.Summary.Covered, s.Summary.Total, staleSuffix(s.Stale))
	return err
}

// UncoveredLine renders the uncovered line numbers of one file.
func UncoveredLine(w io.Writer, u *model.FileUncovered, rel Relativizer) error {
	if _, err := fmt.Fprintf(w, "%s  %.2f%% (%d/%d)%s\n", rel(u.File), u.Summary.Percentage, u.Summary.Covered, u.Summary.Total, staleSuffix(u.Stale)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Uncovered lines: %s\n", formatLineList(u.Uncovered))
	return err
}

func staleSuffix(v coverage.Verdict) string {
	if !v.Stale() {
		return ""
	}
	return fmt.Sprintf("  [stale: %s]", v)
}

// formatLineList collapses consecutive numbers into ranges: 1-3, 7, 9-10.
func formatLineList(lines []int) string {
	if len(lines) == 0 {
		return "none"
	}
	out := ""
	for i := 0; i < len(lines); {
		j := i
		for j+1 < len(lines) && lines[j+1] == lines[j]+1 {
			j++
		}
		if out != "" {
			out += ", "
		}
		if j == i {
			out += fmt.Sprint(lines[i])
		} else {
			out += fmt.Sprintf("%d-%d", lines[i], lines[j])
		}
		i = j + 1
	}
	return out
}
