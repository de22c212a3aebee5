// Package output serialises converted datasets.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// CSVWriter renders rows in a fixed column order.
type CSVWriter struct {
	// Columns is the output column order; the header row uses these names.
	Columns []types.Field

	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// Write writes the header and every row to out. Fields a row lacks are
// written blank.
func (w *CSVWriter) Write(out io.Writer, rows []*types.Row) error {
	writer := csv.NewWriter(out)
	if w.Comma != 0 {
		writer.Comma = w.Comma
	}

	header := make([]string, len(w.Columns))
	for i, c := range w.Columns {
		header[i] = string(c)
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(w.Columns))
	for _, r := range rows {
		for i, c := range w.Columns {
			record[i] = r.Str(c)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	return nil
}

// Render returns the CSV bytes.
func (w *CSVWriter) Render(rows []*types.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes data to path, replacing any existing file.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file %q: %w", path, err)
	}
	return nil
}
