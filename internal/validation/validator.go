// =============================================================================
// Accounting Export Converter - Output Validation
// =============================================================================
//
// This module checks converted rows against the guarantees a document type
// makes about its output, before the output is stored for download:
//   - Every row carries exactly the final column set, in order
//   - Tax fields hold a value from the tax code enumeration
//   - Date fields are DD/MM/YYYY
//   - Fallback fields are non-blank
//   - Constant fields hold their constant
//
// SEVERITY:
//   - "error"   the rule engine broke a guarantee; the conversion fails
//   - "warning" the source held a value no rule could interpret (an
//               unparseable date passes through unchanged); the conversion
//               succeeds and the warning is logged
//
// =============================================================================

package validation

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation finding.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// Field is the column that failed validation.
	Field string

	// Value is the offending value.
	Value string

	// Rule names the check that failed (columns, tax, date, fallback,
	// constant).
	Rule string

	// Message is a human-readable description.
	Message string

	// RowNumber is the 1-indexed output row (header excluded).
	RowNumber int

	// SourceLine is the line the row came from, when known.
	SourceLine int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] Row %d, Field '%s': %s (value: '%s')",
		strings.ToUpper(e.Severity),
		e.RowNumber,
		e.Field,
		e.Message,
		e.Value,
	)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no errors (warnings allowed).
	IsValid bool

	// Errors contains all findings, warnings included.
	Errors []*ValidationError

	// ErrorCount is the number of errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// RowsValidated is the number of rows checked.
	RowsValidated int
}

// Warnings returns only the warnings.
func (r *ValidationResult) Warnings() []*ValidationError {
	var out []*ValidationError
	for _, e := range r.Errors {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// ValidateOutput checks rows produced for spec against columns, the final
// column set.
func ValidateOutput(spec *doctype.Spec, columns []types.Field, rows []*types.Row) *ValidationResult {
	result := &ValidationResult{
		IsValid:       true,
		Errors:        make([]*ValidationError, 0),
		RowsValidated: len(rows),
	}

	present := make(map[types.Field]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	for i, row := range rows {
		for _, err := range validateRow(spec, columns, present, row) {
			err.RowNumber = i + 1
			err.SourceLine = row.Line
			result.Errors = append(result.Errors, err)
			if err.Severity == SeverityError {
				result.ErrorCount++
				result.IsValid = false
			} else {
				result.WarningCount++
			}
		}
	}

	return result
}

func validateRow(spec *doctype.Spec, columns []types.Field, present map[types.Field]bool, row *types.Row) []*ValidationError {
	var errs []*ValidationError

	if !sameColumns(row.Keys(), columns) {
		errs = append(errs, &ValidationError{
			Severity: SeverityError,
			Field:    "*",
			Value:    joinFields(row.Keys()),
			Rule:     "columns",
			Message:  fmt.Sprintf("expected columns %s", joinFields(columns)),
		})
		return errs
	}

	for _, f := range types.Fields(spec.TaxFields...) {
		if !present[f] {
			continue
		}
		if v := row.Str(f); !doctype.IsTaxCode(v) {
			errs = append(errs, &ValidationError{
				Severity: SeverityError,
				Field:    string(f),
				Value:    v,
				Rule:     "tax",
				Message:  "not a tax code",
			})
		}
	}

	for _, f := range types.Fields(spec.DateFields...) {
		if !present[f] || row.Blank(f) {
			continue
		}
		if v := row.Str(f); !isCanonicalDate(v) {
			errs = append(errs, &ValidationError{
				Severity: SeverityWarning,
				Field:    string(f),
				Value:    v,
				Rule:     "date",
				Message:  "date could not be read and was passed through unchanged",
			})
		}
	}

	for f := range spec.Fallbacks {
		field := types.Field(f)
		if present[field] && row.Blank(field) {
			errs = append(errs, &ValidationError{
				Severity: SeverityError,
				Field:    f,
				Rule:     "fallback",
				Message:  "required field is blank",
			})
		}
	}

	for f, want := range spec.Constants {
		field := types.Field(f)
		if present[field] && row.Str(field) != want {
			errs = append(errs, &ValidationError{
				Severity: SeverityError,
				Field:    f,
				Value:    row.Str(field),
				Rule:     "constant",
				Message:  fmt.Sprintf("expected %q", want),
			})
		}
	}

	return errs
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func isCanonicalDate(s string) bool {
	if len(s) != len(types.DateLayout) {
		return false
	}
	_, err := time.Parse(types.DateLayout, s)
	return err == nil
}

func sameColumns(got, want []types.Field) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func joinFields(fs []types.Field) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation findings for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d finding(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes validation findings to filePath with a timestamped
// header.
func WriteErrorLog(errors []*ValidationError, filePath string) error {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("# Validation report %s\n", time.Now().Format(time.RFC3339)))
	builder.WriteString(FormatErrors(errors))

	if err := os.WriteFile(filePath, []byte(builder.String()), 0644); err != nil {
		return fmt.Errorf("failed to write validation log: %w", err)
	}
	return nil
}
