package output

import (
	"encoding/json"
	"io"
	"text/tabwriter"
)

// Table is tabular data ready for rendering.
type Table struct {
	Headers []string
	Rows    [][]string
}

func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	for i, h := range t.Headers {
		if i > 0 {
			tw.Write([]byte("\t"))
		}
		tw.Write([]byte(h))
	}
	tw.Write([]byte("\n"))

	for _, row := range t.Rows {
		for i, cell := range row {
			if i > 0 {
				tw.Write([]byte("\t"))
			}
			tw.Write([]byte(cell))
		}
		tw.Write([]byte("\n"))
	}
	return nil
}

// TableFormatter renders a *Table as an ASCII table; anything else
// falls back to indented JSON, since most command results (exec's
// result-set JSON, for instance) are already a formatted string.
type TableFormatter struct{}

func (f *TableFormatter) Format(w io.Writer, data any) error {
	if t, ok := data.(*Table); ok {
		return t.Render(w)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
