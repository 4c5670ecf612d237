// Package output formats ddbsctl command results for a terminal.
package output

import "io"

// Format selects how a command's result is rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Formatter renders data to w.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// New returns the formatter for format, defaulting to table.
func New(format Format) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{}
	}
	return &TableFormatter{}
}
