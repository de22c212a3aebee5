// =============================================================================
// Accounting Export Converter - CSV Parser Module
// =============================================================================
//
// This module is responsible for parsing CSV exports from the source
// accounting package into a Dataset. It handles:
//   - Different delimiters (comma, pipe, tab, semicolon)
//   - Legacy single-byte encodings (ISO-8859-1, Windows-1252)
//   - A leading byte-order mark
//   - Header markers ("*ContactName" becomes "ContactName")
//   - Rows of varying width
//
// Every cell read from a CSV is text. Numeric or date interpretation is left
// to the rule engine.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const byteOrderMark = "\ufeff"

var utf8BOM = []byte(byteOrderMark)

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns the parsed data.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: The CSV parsing settings from the main configuration.
//
// RETURNS:
//   - The parsed Dataset, one Row per non-empty data line.
//   - types.ErrEmptyDataset when the file holds a header but no data.
//   - A wrapped reader error when the bytes do not decode as CSV.
func Parse(filePath string, settings config.CSVSettings) (*types.Dataset, error) {
	// Open the file.
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseReader(file, settings)
}

// ParseReader parses CSV content from r.
func ParseReader(r io.Reader, settings config.CSVSettings) (*types.Dataset, error) {
	decoder, err := decoderFor(settings.Encoding)
	if err != nil {
		return nil, err
	}

	// A UTF-8 byte-order mark is dropped as raw bytes: single-byte
	// charmaps would otherwise decode it into three letters.
	raw := bufio.NewReader(r)
	if lead, _ := raw.Peek(len(utf8BOM)); bytes.Equal(lead, utf8BOM) {
		raw.Discard(len(utf8BOM))
	}
	reader := bufio.NewReader(transform.NewReader(raw, decoder))

	csvReader := csv.NewReader(reader)
	configureReader(csvReader, settings)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(allRows) == 0 {
		return nil, types.ErrEmptyDataset
	}

	headers := CleanHeaders(allRows[0])
	rows := BuildRows(headers, allRows[1:], 2)
	if len(rows) == 0 {
		return nil, types.ErrEmptyDataset
	}

	return &types.Dataset{Headers: headers, Rows: rows}, nil
}

// decoderFor returns a UTF-8 producing decoder for the named encoding.
// The UTF-8 decoder also honours (and strips) UTF-8 and UTF-16 byte-order
// marks.
func decoderFor(name string) (transform.Transformer, error) {
	var enc encoding.Encoding
	switch strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name)) {
	case "", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "iso88591", "latin1":
		enc = charmap.ISO8859_1
	case "windows1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	switch settings.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Export tools disagree on row width, so allow any number of fields.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// =============================================================================
// HEADER AND ROW HELPERS
// =============================================================================

// CleanHeaders normalises header values.
//
// CLEANING OPERATIONS:
//   - Strip a byte-order mark
//   - Unicode NFC normalisation
//   - Remove "*" required-field markers
//   - Trim whitespace
//   - Name empty headers Column_N
func CleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))

	for i, header := range headers {
		cleaned[i] = CleanHeader(header, i)
	}

	return cleaned
}

// CleanHeader normalises one header at zero-based position i.
func CleanHeader(header string, i int) string {
	header = strings.TrimPrefix(header, byteOrderMark)
	header = norm.NFC.String(header)
	header = strings.ReplaceAll(header, "*", "")
	header = strings.TrimSpace(header)

	if header == "" {
		header = fmt.Sprintf("Column_%d", i+1)
	}
	return header
}

// BuildRows turns raw records into rows keyed by header. Blank records are
// skipped. A record shorter than the header row only carries the fields it
// has; cells beyond the last header are ignored. firstLine is the source
// line number of records[0].
func BuildRows(headers []string, records [][]string, firstLine int) []*types.Row {
	rows := make([]*types.Row, 0, len(records))

	for i, record := range records {
		if isRowEmpty(record) {
			continue
		}

		row := types.NewRow()
		row.Line = firstLine + i
		for col, value := range record {
			if col >= len(headers) {
				break
			}
			// Duplicate headers: the later column wins.
			row.SetText(types.Field(headers[col]), strings.TrimSpace(value))
		}
		rows = append(rows, row)
	}

	return rows
}

// isRowEmpty reports whether every cell is blank.
func isRowEmpty(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
