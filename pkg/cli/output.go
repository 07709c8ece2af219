package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is aligned plain text (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV with a header row.
	FormatCSV OutputFormat = "csv"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", NewConfigError("output", fmt.Sprintf("unknown format %q (want text, json or csv)", s))
}

// Table is implemented by results that render as rows.
type Table interface {
	Header() []string
	Rows() [][]string
}

// Formatter formats command output.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter renders Tables as aligned columns and anything else with %v.
type TextFormatter struct{}

// FormatTo implements Formatter.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Table)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if header := t.Header(); len(header) > 0 {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	for _, row := range t.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTo implements Formatter.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVFormatter formats Tables as CSV.
type CSVFormatter struct{}

// FormatTo implements Formatter. Data that is not a Table is rejected.
func (f *CSVFormatter) FormatTo(w io.Writer, data any) error {
	t, ok := data.(Table)
	if !ok {
		return fmt.Errorf("csv output is not supported for %T", data)
	}

	cw := csv.NewWriter(w)
	if header := t.Header(); len(header) > 0 {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(t.Rows()); err != nil {
		return err
	}
	return cw.Error()
}

// NewFormatter creates a formatter for format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}
