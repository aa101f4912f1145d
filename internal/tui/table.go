package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a column in a table.
type TableColumn struct {
	Name  string
	Width int
}

// Table renders fixed-width rows. Cells may contain ANSI styling; widths are
// measured on the visible text.
type Table struct {
	w       io.Writer
	header  lipgloss.Style
	columns []TableColumn
}

// NewTable creates a new table with the given columns.
func NewTable(w io.Writer, columns []TableColumn) *Table {
	return &Table{
		w: w,
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}),
		columns: columns,
	}
}

// WriteHeader writes the table header row.
func (t *Table) WriteHeader() {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	_, _ = fmt.Fprintln(t.w, t.header.Render(t.line(names)))
}

// WriteRow writes a data row to the table.
func (t *Table) WriteRow(values ...string) {
	_, _ = fmt.Fprintln(t.w, t.line(values))
}

func (t *Table) line(values []string) string {
	cells := make([]string, len(t.columns))
	for i, col := range t.columns {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		cells[i] = fit(value, col.Width)
	}
	return strings.TrimRight(strings.Join(cells, " "), " ")
}

// fit pads or truncates value to width visible cells.
func fit(value string, width int) string {
	visible := lipgloss.Width(value)
	switch {
	case width <= 0:
		return value
	case visible > width && width > 1:
		runes := []rune(value)
		for lipgloss.Width(string(runes)) > width-1 {
			runes = runes[:len(runes)-1]
		}
		return string(runes) + "…"
	case visible < width:
		return value + strings.Repeat(" ", width-visible)
	default:
		return value
	}
}
