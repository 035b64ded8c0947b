// Package export writes the selected rows of a grid to CSV or XLSX.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/grid/column"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv and xlsx (case-insensitive); empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Extension returns the file extension of f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Table is a rendered export: one header row plus text cells.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// BuildTable projects rows onto the columns named by keys, in the order of
// keys. Unknown keys are skipped.
func BuildTable[R any](name string, defs []column.Def[R], keys []string, rows []R) Table {
	cols := make([]column.Def[R], 0, len(keys))
	for _, key := range keys {
		if def, ok := column.Find(defs, key); ok {
			cols = append(cols, def)
		}
	}
	t := Table{Name: name, Headers: make([]string, 0, len(cols)), Rows: make([][]string, 0, len(rows))}
	for _, def := range cols {
		title := def.Title
		if title == "" {
			title = def.Key
		}
		t.Headers = append(t.Headers, title)
	}
	for _, row := range rows {
		record := make([]string, 0, len(cols))
		for _, def := range cols {
			record = append(record, def.Text(row))
		}
		t.Rows = append(t.Rows, record)
	}
	return t
}

// Write encodes t in format f.
func Write(w io.Writer, f Format, t Table) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}
