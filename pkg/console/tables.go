package console

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/runner"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleSubtle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTitle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// RenderSummary draws a summary for the terminal: headings indented by
// level, tables with rounded borders.
func RenderSummary(s renderer.Summary) string {
	var b strings.Builder
	for _, block := range s.Blocks {
		if block.Heading != "" {
			indent := strings.Repeat("  ", max(block.Level-1, 0))
			b.WriteString(indent + styleTitle.Render(block.Heading) + "\n")
		}
		if block.Table != nil {
			t := newTable(block.Table.Headers...)
			for _, row := range block.Table.Rows {
				cells := make([]string, len(row))
				for i, c := range row {
					cells[i] = strings.ReplaceAll(c, "**", "")
				}
				t.Row(cells...)
			}
			b.WriteString(t.String() + "\n")
		}
	}
	return b.String()
}

// RenderDiagnostics draws IaC findings as one table, files in name order.
func RenderDiagnostics(diags map[string][]runner.Diagnostic) string {
	if len(diags) == 0 {
		return styleSubtle.Render("No IaC findings") + "\n"
	}
	files := make([]string, 0, len(diags))
	for f := range diags {
		files = append(files, f)
	}
	sort.Strings(files)

	t := newTable("File", "Level", "Finding")
	for _, f := range files {
		for _, d := range diags[f] {
			t.Row(f, levelStyle(d.Level).Render(d.Level.String()), d.Message)
		}
	}
	return t.String() + "\n"
}

func levelStyle(l runner.DiagnosticLevel) lipgloss.Style {
	switch l {
	case runner.LevelError:
		return styleError
	case runner.LevelWarning:
		return styleWarning
	}
	return styleSubtle
}
