// Package ingest decodes uploaded bytes (CSV or spreadsheet) into a Dataset.
//
// Every upload is materialised as a temporary artifact in the work directory
// and removed again before Parse returns, whatever the outcome.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/csvparser"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/ginjaninja78/accounting-export-converter/internal/xlsxparser"
	"github.com/ginjaninja78/accounting-export-converter/pkg/utils"
)

var (
	// ErrNoFile is returned when an upload carries no bytes.
	ErrNoFile = errors.New("no file provided")

	// ErrUnreadableFile is returned when bytes do not decode as the
	// declared format.
	ErrUnreadableFile = errors.New("file could not be read")

	// ErrSheetNotFound is returned when a required named sheet is missing.
	ErrSheetNotFound = xlsxparser.ErrSheetNotFound
)

// zipMagic starts every OOXML workbook.
var zipMagic = []byte("PK\x03\x04")

// Format is an accepted upload format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Upload is one uploaded file.
type Upload struct {
	Name string
	Data []byte
}

// Parser turns uploads into datasets.
type Parser struct {
	workDir string
	csv     config.CSVSettings
}

// NewParser returns a parser writing temporary artifacts to workDir.
func NewParser(workDir string, settings config.CSVSettings) *Parser {
	return &Parser{workDir: workDir, csv: settings}
}

// DetectFormat infers the format from the file extension, falling back to
// content sniffing for unknown extensions.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm", ".xls":
		return FormatXLSX
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// Parse decodes one upload. sheet names the worksheet to read from a
// spreadsheet ("" for the first); it is ignored for CSV.
func (p *Parser) Parse(ctx context.Context, up Upload, sheet string) (*types.Dataset, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(up.Data) == 0 {
		return nil, ErrNoFile
	}

	path, cleanup, err := utils.WriteTempUpload(p.workDir, up.Name, up.Data)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	var ds *types.Dataset
	switch DetectFormat(up.Name, up.Data) {
	case FormatXLSX:
		ds, err = xlsxparser.Parse(path, sheet)
	default:
		ds, err = csvparser.Parse(path, p.csv)
	}
	if err != nil {
		return nil, classify(up.Name, err)
	}

	ds.Source = up.Name
	return ds, nil
}

// classify maps parser failures onto the package's error taxonomy.
func classify(name string, err error) error {
	switch {
	case errors.Is(err, types.ErrEmptyDataset):
		return fmt.Errorf("%s: %w", name, types.ErrEmptyDataset)
	case errors.Is(err, ErrSheetNotFound):
		return fmt.Errorf("%s: %w", name, err)
	default:
		return fmt.Errorf("%s: %w: %v", name, ErrUnreadableFile, err)
	}
}
