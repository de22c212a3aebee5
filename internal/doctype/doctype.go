// =============================================================================
// Accounting Export Converter - Document Type Table
// =============================================================================
//
// This module holds the static configuration for every supported business
// document (chart of accounts, invoices, bills, journals, payments, ...).
// Each Spec is plain data: a header mapping, the output columns and the
// parameters of the rules the engine applies. Adding a document type is a
// table change, not a code change.
//
// TABLE SOURCE:
//   The table ships embedded (doctypes.yaml). MainConfig.DocumentTypesFile
//   replaces it with a file of the same shape.
//
// RULE ORDER (fixed, see internal/rules):
//   fill_down, require, filter, exclude, lookups, signed_amount, tax,
//   dates, fallbacks, tracking, reference, currency, constants, derived,
//   then projection onto the final column set.
//
// =============================================================================

package doctype

import (
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// =============================================================================
// SPEC STRUCTURE
// =============================================================================

// Mode controls what happens to unmapped source headers.
type Mode string

const (
	// ModeStrict drops unmapped headers; output columns are fixed.
	ModeStrict Mode = "strict"

	// ModePermissive keeps unmapped headers; optional columns join the
	// output when populated on any row.
	ModePermissive Mode = "permissive"
)

// Spec is the configuration of one document type.
type Spec struct {
	// Slug identifies the type in routes (e.g. "coa", "invoice").
	Slug string `yaml:"slug"`

	// Name is the human-readable name.
	Name string `yaml:"name"`

	// Mode is strict or permissive.
	Mode Mode `yaml:"mode"`

	// Routes lists the software pairs (e.g. "au-myob-xero") the type is
	// offered on. Empty uses the table defaults.
	Routes []string `yaml:"routes"`

	// Sheet is the worksheet to read from spreadsheet uploads of single-file
	// types. Empty reads the first sheet.
	Sheet string `yaml:"sheet,omitempty"`

	// FieldMapping maps source headers to canonical field names.
	FieldMapping map[string]string `yaml:"field_mapping"`

	// Columns are the mandatory output columns, in order.
	Columns []string `yaml:"columns"`

	// OptionalColumns are appended to the output, in order, when at least
	// one row has a non-blank value for them.
	OptionalColumns []string `yaml:"optional_columns,omitempty"`

	// ==========================================================================
	// RULE PARAMETERS
	// ==========================================================================

	// FillDown fields take the last non-blank value from earlier rows when
	// blank (grouped exports print the customer once per group).
	FillDown []string `yaml:"fill_down,omitempty"`

	// Require drops rows where any listed field is blank.
	Require []string `yaml:"require,omitempty"`

	// Filter keeps only rows whose field matches one of the values.
	Filter *Filter `yaml:"filter,omitempty"`

	// Exclude drops rows whose field matches one of the values.
	Exclude []Exclude `yaml:"exclude,omitempty"`

	// Lookups translate field values (matched case-insensitively). Values
	// with no entry pass through unchanged.
	Lookups map[string]map[string]string `yaml:"lookups,omitempty"`

	// SignedAmount derives a document type from the sign of a total.
	SignedAmount *SignedAmount `yaml:"signed_amount,omitempty"`

	// TaxFields are canonicalised against the tax code enumeration.
	TaxFields []string `yaml:"tax_fields,omitempty"`

	// TaxDefault replaces unknown or blank tax codes.
	TaxDefault string `yaml:"tax_default,omitempty"`

	// DateFields are rendered DD/MM/YYYY.
	DateFields []string `yaml:"date_fields,omitempty"`

	// Fallbacks fill blank fields (Description ".", Quantity "1").
	Fallbacks map[string]string `yaml:"fallbacks,omitempty"`

	// Tracking passes tracking-category pairs through.
	Tracking *Tracking `yaml:"tracking,omitempty"`

	// Reference synthesises a reference for money-movement types.
	Reference *Reference `yaml:"reference,omitempty"`

	// CurrencyField receives the caller's currency code in multi-currency
	// mode when blank.
	CurrencyField string `yaml:"currency_field,omitempty"`

	// Constants are written to every row (Status, LineAmountType, ...).
	Constants map[string]string `yaml:"constants,omitempty"`

	// Derived fields are computed from another field's value.
	Derived []Derived `yaml:"derived,omitempty"`

	// Reconcile marks a dual-file type.
	Reconcile *Reconcile `yaml:"reconcile,omitempty"`
}

// Filter keeps rows whose Field equals one of Equals (case-insensitive).
type Filter struct {
	Field  string   `yaml:"field"`
	Equals []string `yaml:"equals"`
}

// Exclude drops rows whose Field equals one of Values (case-insensitive).
type Exclude struct {
	Field  string   `yaml:"field"`
	Values []string `yaml:"values"`
}

// SignedAmount: TotalField >= 0 gives Positive, < 0 gives Negative, and
// AmountField receives the absolute total.
type SignedAmount struct {
	TotalField  string `yaml:"total_field"`
	AmountField string `yaml:"amount_field"`
	TypeField   string `yaml:"type_field"`
	Positive    string `yaml:"positive"`
	Negative    string `yaml:"negative"`
}

// Tracking lists up to two (name, option) field pairs.
type Tracking struct {
	Pairs       []TrackingPair `yaml:"pairs"`
	DefaultName string         `yaml:"default_name"`
}

// TrackingPair names the fields of one tracking category.
type TrackingPair struct {
	Name   string `yaml:"name"`
	Option string `yaml:"option"`
}

// Reference builds TargetField from Prefix, the prefix of IDField before
// its first "-", and SourceField when present.
type Reference struct {
	Prefix      string `yaml:"prefix"`
	IDField     string `yaml:"id_field"`
	SourceField string `yaml:"source_field"`
	TargetField string `yaml:"target_field"`
}

// Derived sets Field to Then when WhenField equals one of In
// (case-insensitive), otherwise Else.
type Derived struct {
	Field     string   `yaml:"field"`
	WhenField string   `yaml:"when_field"`
	In        []string `yaml:"in"`
	Then      string   `yaml:"then"`
	Else      string   `yaml:"else"`
}

// Reconcile configures the two-file join of a dual-file type.
type Reconcile struct {
	// KeySheet holds the canonical identifiers.
	KeySheet string `yaml:"key_sheet"`

	// ValueSheet holds the transaction lines to rewrite.
	ValueSheet string `yaml:"value_sheet"`

	// KeyField is the identifier (e.g. InvoiceNumber).
	KeyField string `yaml:"key_field"`

	// IDField is the system-assigned internal ID (e.g. InvoiceID).
	IDField string `yaml:"id_field"`
}

// =============================================================================
// SPEC HELPERS
// =============================================================================

// IsDualFile reports whether the type needs two inputs.
func (s *Spec) IsDualFile() bool { return s.Reconcile != nil }

// Strict reports whether unmapped headers are dropped.
func (s *Spec) Strict() bool { return s.Mode != ModePermissive }

// ColumnFields returns the mandatory columns as fields.
func (s *Spec) ColumnFields() []types.Field { return types.Fields(s.Columns...) }

// OptionalFields returns the optional columns as fields.
func (s *Spec) OptionalFields() []types.Field { return types.Fields(s.OptionalColumns...) }

// Vocabulary is the closed set of canonical fields a row of this type may
// carry: every mapping target plus every output column.
func (s *Spec) Vocabulary() map[types.Field]bool {
	vocab := make(map[types.Field]bool, len(s.FieldMapping)+len(s.Columns)+len(s.OptionalColumns))
	for _, canonical := range s.FieldMapping {
		vocab[types.Field(canonical)] = true
	}
	for _, c := range s.Columns {
		vocab[types.Field(c)] = true
	}
	for _, c := range s.OptionalColumns {
		vocab[types.Field(c)] = true
	}
	return vocab
}

// SupportsPair reports whether the type is offered on a software pair.
func (s *Spec) SupportsPair(pair string) bool {
	for _, p := range s.Routes {
		if equalFold(p, pair) {
			return true
		}
	}
	return false
}
