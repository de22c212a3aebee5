// =============================================================================
// Accounting Export Converter - XLSX Parser Module
// =============================================================================
//
// This module reads spreadsheet exports into a Dataset. It reads either the
// first worksheet or a named one (dual-file document types ship their data
// on fixed sheet names).
//
// CELL TYPES:
//   Cells keep their native kind instead of being coerced to text:
//
//   | Stored cell           | Value kind | Example raw value |
//   |-----------------------|------------|-------------------|
//   | number / unset type   | number     | 45292             |
//   | ISO date (t="d")      | date       | 2024-01-01T00:00Z |
//   | shared/inline string  | text       | 1001              |
//   | boolean               | text       | TRUE              |
//
//   A date formatted cell is stored as a number, so it reaches the rule
//   engine as a spreadsheet serial date and the date rule converts it.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ginjaninja78/accounting-export-converter/internal/csvparser"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/xuri/excelize/v2"
)

// ErrSheetNotFound is returned when a required named sheet is missing.
var ErrSheetNotFound = errors.New("sheet not found")

// isoDateLayouts are tried, in order, for cells stored with the date type.
var isoDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999",
	"2006-01-02",
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a workbook from disk.
//
// PARAMETERS:
//   - filePath: The path to the .xlsx file.
//   - sheet: The worksheet to read; "" reads the first sheet.
//
// RETURNS:
//   - The parsed Dataset.
//   - ErrSheetNotFound if a named sheet is missing.
//   - types.ErrEmptyDataset if the sheet has no data rows.
//   - A wrapped excelize error if the file is not a readable workbook.
func Parse(filePath, sheet string) (*types.Dataset, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return parseFile(f, sheet)
}

func parseFile(f *excelize.File, sheet string) (*types.Dataset, error) {
	name, err := resolveSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	// Raw values keep serial dates and unformatted numbers.
	records, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}

	// Skip leading blank rows to find the header.
	start := 0
	for start < len(records) && isRowEmpty(records[start]) {
		start++
	}
	if start >= len(records) {
		return nil, types.ErrEmptyDataset
	}

	headers := csvparser.CleanHeaders(records[start])

	var rows []*types.Row
	for ri := start + 1; ri < len(records); ri++ {
		record := records[ri]
		if isRowEmpty(record) {
			continue
		}

		row := types.NewRow()
		row.Line = ri + 1
		for col, raw := range record {
			if col >= len(headers) {
				break
			}
			value, err := cellValue(f, name, col+1, ri+1, raw)
			if err != nil {
				return nil, err
			}
			row.Set(types.Field(headers[col]), value)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, types.ErrEmptyDataset
	}

	return &types.Dataset{Headers: headers, Rows: rows, Sheet: name}, nil
}

// resolveSheet picks the sheet to read. Named sheets match exactly first,
// then case-insensitively.
func resolveSheet(f *excelize.File, sheet string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", types.ErrEmptyDataset
	}

	if sheet == "" {
		return f.GetSheetName(0), nil
	}

	for _, s := range sheets {
		if s == sheet {
			return s, nil
		}
	}
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(sheet)) {
			return s, nil
		}
	}

	return "", fmt.Errorf("%w: %q (workbook has %s)", ErrSheetNotFound, sheet, strings.Join(sheets, ", "))
}

// cellValue converts a raw cell to a typed value.
func cellValue(f *excelize.File, sheet string, col, row int, raw string) (types.Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.Text(""), nil
	}

	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return types.Value{}, fmt.Errorf("invalid cell position: %w", err)
	}

	cellType, err := f.GetCellType(sheet, axis)
	if err != nil {
		return types.Value{}, fmt.Errorf("failed to read cell %s: %w", axis, err)
	}

	switch cellType {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return types.Number(n), nil
		}
	case excelize.CellTypeDate:
		for _, layout := range isoDateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return types.Date(t), nil
			}
		}
	case excelize.CellTypeBool:
		if raw == "1" {
			return types.Text("TRUE"), nil
		}
		return types.Text("FALSE"), nil
	}

	return types.Text(raw), nil
}

// isRowEmpty checks if a row is empty (all cells are blank).
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
