package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// column is one table column. Counts and sizes are right aligned.
type column struct {
	title   string
	numeric bool
}

var (
	jobColumns = []column{
		{title: "ID"},
		{title: "File"},
		{title: "Size", numeric: true},
		{title: "Created"},
	}
	endpointColumns = []column{
		{title: "Endpoint"},
		{title: "Enabled"},
		{title: "Priority", numeric: true},
		{title: "Files", numeric: true},
		{title: "Bytes", numeric: true},
		{title: "Errors", numeric: true},
		{title: "Streak", numeric: true},
		{title: "Last Sync"},
	}
	fieldColumns = []column{{title: "Field"}, {title: "Value"}}
)

// renderTable draws rows under columns. A non-nil footer is drawn as a
// totals line. Short rows are padded.
func renderTable(columns []column, rows [][]string, footer []string, colorize bool) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if colorize {
		tw.Style().Color.Header = text.Colors{text.Bold, text.FgCyan}
		tw.Style().Color.Footer = text.Colors{text.Bold}
	}

	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if c.numeric {
			configs[i].Align = text.AlignRight
			configs[i].AlignFooter = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)

	tw.AppendHeader(padRow(len(columns), func(i int) string { return columns[i].title }))
	for _, row := range rows {
		tw.AppendRow(padRow(len(columns), cellAt(row)))
	}
	if footer != nil {
		tw.AppendFooter(padRow(len(columns), cellAt(footer)))
	}
	return tw.Render()
}

func cellAt(cells []string) func(int) string {
	return func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
}

func padRow(n int, cell func(int) string) table.Row {
	row := make(table.Row, n)
	for i := range row {
		row[i] = cell(i)
	}
	return row
}

// shouldColorize reports whether out is an interactive terminal.
func shouldColorize(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
