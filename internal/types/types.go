// =============================================================================
// Accounting Export Converter - Shared Types
// =============================================================================
//
// This package contains the row model shared by every stage of the pipeline.
// Types defined here are used by:
//   - csvparser / xlsxparser (producing datasets)
//   - schema (renaming fields)
//   - rules / reconcile (transforming rows)
//   - output / validation (rendering and checking rows)
//
// A Row is an ordered mapping from a field name to a typed Value. Keys keep
// the order in which they were first set, so a row rendered without a column
// list still follows the source file's header order.
//
// =============================================================================

package types

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyDataset is returned when a parsed input holds no data rows.
var ErrEmptyDataset = errors.New("dataset has no data rows")

// DateLayout is the canonical rendering of every date in output.
const DateLayout = "02/01/2006"

// =============================================================================
// FIELD
// =============================================================================

// Field is a canonical (or, for permissive document types, retained source)
// column name.
type Field string

// Canonical fields the rule engine refers to by name. Document types may
// declare further fields in their vocabulary.
const (
	FieldDescription    Field = "Description"
	FieldQuantity       Field = "Quantity"
	FieldStatus         Field = "Status"
	FieldLineAmountType Field = "LineAmountType"
	FieldType           Field = "Type"
	FieldTotal          Field = "Total"
	FieldLineAmount     Field = "LineAmount"
	FieldReference      Field = "Reference"
	FieldCurrency       Field = "Currency"
)

// =============================================================================
// VALUE
// =============================================================================

// Kind identifies which member of a Value is meaningful.
type Kind int

const (
	// KindText is free text; the zero Value is blank text.
	KindText Kind = iota

	// KindNumber is a native numeric spreadsheet cell. Date rules treat a
	// number as a spreadsheet serial date.
	KindNumber

	// KindDate is a native date cell.
	KindDate
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "text"
	}
}

// Value is one cell of a Row.
type Value struct {
	Kind Kind
	Text string
	Num  float64
	Time time.Time
}

// Text builds a text value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Number builds a numeric value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Date builds a date value. The time-of-day is kept but never rendered.
func Date(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

// String renders the value as it appears in CSV output.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindDate:
		return v.Time.Format(DateLayout)
	default:
		return v.Text
	}
}

// IsBlank reports whether the value renders as whitespace only.
// Numbers and dates are never blank.
func (v Value) IsBlank() bool {
	return v.Kind == KindText && strings.TrimSpace(v.Text) == ""
}

// =============================================================================
// ROW
// =============================================================================

// Row is an ordered field -> value mapping.
type Row struct {
	keys   []Field
	values map[Field]Value

	// Line is the 1-indexed source line (header is line 1). Zero for rows
	// that were not read from a file.
	Line int
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: make(map[Field]Value)}
}

// RowOf builds a row from alternating field/value pairs, in order.
// It is a convenience for tests and small fixtures.
func RowOf(pairs ...string) *Row {
	r := NewRow()
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(Field(pairs[i]), Text(pairs[i+1]))
	}
	return r
}

// Set stores a value. Setting an existing field overwrites it in place;
// a new field is appended to the key order.
func (r *Row) Set(f Field, v Value) {
	if r.values == nil {
		r.values = make(map[Field]Value)
	}
	if _, ok := r.values[f]; !ok {
		r.keys = append(r.keys, f)
	}
	r.values[f] = v
}

// SetText is shorthand for Set(f, Text(s)).
func (r *Row) SetText(f Field, s string) { r.Set(f, Text(s)) }

// Get returns the value for f and whether it is present.
func (r *Row) Get(f Field) (Value, bool) {
	v, ok := r.values[f]
	return v, ok
}

// Str returns the rendered value for f, or "" when absent.
func (r *Row) Str(f Field) string {
	v, ok := r.values[f]
	if !ok {
		return ""
	}
	return v.String()
}

// Has reports whether f is present.
func (r *Row) Has(f Field) bool {
	_, ok := r.values[f]
	return ok
}

// Blank reports whether f is absent or blank.
func (r *Row) Blank(f Field) bool {
	v, ok := r.values[f]
	return !ok || v.IsBlank()
}

// Keys returns the fields in insertion order.
func (r *Row) Keys() []Field {
	out := make([]Field, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Row) Len() int { return len(r.keys) }

// Clone returns an independent copy.
func (r *Row) Clone() *Row {
	c := &Row{
		keys:   make([]Field, len(r.keys)),
		values: make(map[Field]Value, len(r.values)),
		Line:   r.Line,
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Project returns a new row holding exactly the given columns, in order.
// Absent columns become blank text.
func (r *Row) Project(columns []Field) *Row {
	p := &Row{
		keys:   make([]Field, 0, len(columns)),
		values: make(map[Field]Value, len(columns)),
		Line:   r.Line,
	}
	for _, c := range columns {
		v, ok := r.values[c]
		if !ok {
			v = Text("")
		}
		p.Set(c, v)
	}
	return p
}

// =============================================================================
// DATASET
// =============================================================================

// Dataset is an ordered sequence of rows from one parsed file (or one
// conversion).
type Dataset struct {
	// Headers are the normalised source headers (or output columns), in order.
	Headers []string

	// Rows are kept in source order.
	Rows []*Row

	// Source is the original file name the rows came from.
	Source string

	// Sheet is the worksheet the rows came from (spreadsheets only).
	Sheet string
}

// Len returns the number of rows. A nil dataset has zero rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Clone deep-copies the dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	c := &Dataset{
		Headers: append([]string(nil), d.Headers...),
		Rows:    make([]*Row, len(d.Rows)),
		Source:  d.Source,
		Sheet:   d.Sheet,
	}
	for i, r := range d.Rows {
		c.Rows[i] = r.Clone()
	}
	return c
}

// Fields converts a string slice to fields.
func Fields(names ...string) []Field {
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = Field(n)
	}
	return out
}
