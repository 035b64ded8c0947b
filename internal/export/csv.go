package export

import (
	"encoding/csv"
	"io"
)

// WriteCSV emits the header row followed by every record.
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(t.Headers); err != nil {
		return err
	}
	for _, record := range t.Rows {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
