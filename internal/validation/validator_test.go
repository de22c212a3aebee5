package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalSpec() *doctype.Spec {
	return &doctype.Spec{
		Slug:       "manual-journal",
		Columns:    []string{"Date", "Description", "TaxRate", "Status"},
		TaxFields:  []string{"TaxRate"},
		DateFields: []string{"Date"},
		Fallbacks:  map[string]string{"Description": "."},
		Constants:  map[string]string{"Status": "POSTED"},
	}
}

func row(date, desc, tax, status string) *types.Row {
	return types.RowOf("Date", date, "Description", desc, "TaxRate", tax, "Status", status)
}

func TestValidateOutputClean(t *testing.T) {
	spec := journalSpec()
	res := ValidateOutput(spec, spec.ColumnFields(), []*types.Row{
		row("01/07/2024", "Accrual", doctype.TaxBASExcluded, "POSTED"),
		row("", ".", doctype.TaxGSTOnExpenses, "POSTED"),
	})

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.RowsValidated)
}

func TestValidateOutputFindings(t *testing.T) {
	spec := journalSpec()
	cols := spec.ColumnFields()

	tests := []struct {
		name     string
		row      *types.Row
		rule     string
		severity string
	}{
		{"bad tax", row("01/07/2024", "x", "GST", "POSTED"), "tax", SeverityError},
		{"passthrough date", row("next week", "x", doctype.TaxBASExcluded, "POSTED"), "date", SeverityWarning},
		{"blank fallback", row("01/07/2024", " ", doctype.TaxBASExcluded, "POSTED"), "fallback", SeverityError},
		{"wrong constant", row("01/07/2024", "x", doctype.TaxBASExcluded, "DRAFT"), "constant", SeverityError},
		{"column drift", types.RowOf("Date", "01/07/2024", "Extra", "1"), "columns", SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.row.Line = 7
			res := ValidateOutput(spec, cols, []*types.Row{tt.row})
			require.Len(t, res.Errors, 1)

			got := res.Errors[0]
			assert.Equal(t, tt.rule, got.Rule)
			assert.Equal(t, tt.severity, got.Severity)
			assert.Equal(t, 1, got.RowNumber)
			assert.Equal(t, 7, got.SourceLine)
			assert.Equal(t, tt.severity == SeverityWarning, res.IsValid)
		})
	}
}

func TestFormatAndWriteErrors(t *testing.T) {
	assert.Equal(t, "No validation errors.", FormatErrors(nil))

	errs := []*ValidationError{{Severity: SeverityWarning, Field: "Date", Value: "soon", Message: "unreadable", RowNumber: 3}}
	assert.Contains(t, FormatErrors(errs), "[WARNING] Row 3, Field 'Date': unreadable (value: 'soon')")

	path := filepath.Join(t.TempDir(), "report.log")
	require.NoError(t, WriteErrorLog(errs, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1 finding(s)")
}
