// =============================================================================
// Accounting Export Converter - Transformation Rules
// =============================================================================
//
// This module provides the individual rules a document type is built from.
// Every rule is a named value that transforms the working rows of one
// conversion; most act row by row, a few need the whole dataset (fill-down).
//
// RULE KINDS:
//   - Row selection (require, filter, exclude)
//   - Value canonicalisation (lookups, tax codes, dates)
//   - Defaults (fallbacks, constants, currency)
//   - Derived values (signed amount, tracking, reference, derived flags)
//
// A rule never fails: input it cannot interpret passes through unchanged.
// Dropping rows is the only way a rule can shrink the output.
//
// =============================================================================

package rules

import (
	"sort"
	"strings"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// =============================================================================
// RULE
// =============================================================================

// Options carries per-call parameters.
type Options struct {
	// Currency is the caller's currency code (multi-currency routes).
	Currency string

	// CurrencyMode is single or multi.
	CurrencyMode doctype.CurrencyMode
}

// Rule is one named transformation step.
type Rule struct {
	Name  string
	apply func(rows []*types.Row, opts Options) []*types.Row
}

// Apply runs the rule and returns the surviving rows.
func (r Rule) Apply(rows []*types.Row, opts Options) []*types.Row {
	return r.apply(rows, opts)
}

// rowRule lifts a per-row function into a Rule. fn returns false to drop
// the row.
func rowRule(name string, fn func(r *types.Row, opts Options) bool) Rule {
	return Rule{
		Name: name,
		apply: func(rows []*types.Row, opts Options) []*types.Row {
			kept := rows[:0]
			for _, r := range rows {
				if fn(r, opts) {
					kept = append(kept, r)
				}
			}
			return kept
		},
	}
}

// =============================================================================
// ROW SELECTION
// =============================================================================

// FillDown copies the last non-blank value of each field into blank cells
// below it.
//
// EXAMPLE:
//
//	ContactName: "Acme", "", "", "Bolt", ""
//	->           "Acme", "Acme", "Acme", "Bolt", "Bolt"
func FillDown(fields []string) Rule {
	return Rule{
		Name: "fill_down",
		apply: func(rows []*types.Row, _ Options) []*types.Row {
			for _, f := range types.Fields(fields...) {
				var last types.Value
				seen := false
				for _, r := range rows {
					if !r.Blank(f) {
						last, _ = r.Get(f)
						seen = true
						continue
					}
					if seen {
						r.Set(f, last)
					}
				}
			}
			return rows
		},
	}
}

// Require drops rows where any field is blank.
func Require(fields []string) Rule {
	fs := types.Fields(fields...)
	return rowRule("require", func(r *types.Row, _ Options) bool {
		for _, f := range fs {
			if r.Blank(f) {
				return false
			}
		}
		return true
	})
}

// Filter keeps only rows whose field equals one of the values, ignoring
// case and surrounding whitespace.
func Filter(f doctype.Filter) Rule {
	field := types.Field(f.Field)
	return rowRule("filter", func(r *types.Row, _ Options) bool {
		return matchesAny(r.Str(field), f.Equals)
	})
}

// Exclude drops rows whose field equals one of the values.
func Exclude(ex doctype.Exclude) Rule {
	field := types.Field(ex.Field)
	return rowRule("exclude", func(r *types.Row, _ Options) bool {
		return !matchesAny(r.Str(field), ex.Values)
	})
}

// =============================================================================
// VALUE CANONICALISATION
// =============================================================================

// Lookups translates field values through per-field tables. Keys match
// case-insensitively; unmatched values pass through.
func Lookups(tables map[string]map[string]string) Rule {
	folded := make(map[types.Field]map[string]string, len(tables))
	for field, table := range tables {
		m := make(map[string]string, len(table))
		for from, to := range table {
			m[fold(from)] = to
		}
		folded[types.Field(field)] = m
	}

	return rowRule("lookups", func(r *types.Row, _ Options) bool {
		for field, table := range folded {
			if r.Blank(field) {
				continue
			}
			if to, ok := table[fold(r.Str(field))]; ok {
				r.SetText(field, to)
			}
		}
		return true
	})
}

// Tax canonicalises every tax field. Absent and blank fields receive def.
func Tax(fields []string, def string) Rule {
	fs := types.Fields(fields...)
	return rowRule("tax", func(r *types.Row, _ Options) bool {
		for _, f := range fs {
			r.SetText(f, CanonicalizeTax(r.Str(f), def))
		}
		return true
	})
}

// Dates renders every non-blank date field as DD/MM/YYYY.
func Dates(fields []string) Rule {
	fs := types.Fields(fields...)
	return rowRule("dates", func(r *types.Row, _ Options) bool {
		for _, f := range fs {
			v, ok := r.Get(f)
			if !ok || v.IsBlank() {
				continue
			}
			out, _ := CanonicalizeDate(v)
			r.Set(f, out)
		}
		return true
	})
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Fallbacks fills blank fields with fixed values (Description ".",
// Quantity "1"). Non-blank values are untouched.
func Fallbacks(values map[string]string) Rule {
	fields := sortedKeys(values)
	return rowRule("fallbacks", func(r *types.Row, _ Options) bool {
		for _, f := range fields {
			if r.Blank(types.Field(f)) {
				r.SetText(types.Field(f), values[f])
			}
		}
		return true
	})
}

// Constants writes fixed values to every row, whatever the source held.
func Constants(values map[string]string) Rule {
	fields := sortedKeys(values)
	return rowRule("constants", func(r *types.Row, _ Options) bool {
		for _, f := range fields {
			r.SetText(types.Field(f), values[f])
		}
		return true
	})
}

// Currency fills a blank currency field with the caller's code on
// multi-currency routes. Single-currency routes leave the field alone.
func Currency(field string) Rule {
	f := types.Field(field)
	return rowRule("currency", func(r *types.Row, opts Options) bool {
		code := strings.ToUpper(strings.TrimSpace(opts.Currency))
		if opts.CurrencyMode != doctype.CurrencyMulti || code == "" {
			return true
		}
		if r.Blank(f) {
			r.SetText(f, code)
		}
		return true
	})
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// Signed types each row from the sign of its total and stores the absolute
// amount. Rows with a blank total are left as they are.
func Signed(sa doctype.SignedAmount) Rule {
	total := types.Field(sa.TotalField)
	return rowRule("signed_amount", func(r *types.Row, _ Options) bool {
		v, ok := r.Get(total)
		if !ok || v.IsBlank() {
			return true
		}
		docType, amount, _ := SignedAmount(v, sa.Positive, sa.Negative)
		r.SetText(types.Field(sa.TypeField), docType)
		r.SetText(types.Field(sa.AmountField), amount)
		return true
	})
}

// Tracking keeps a tracking pair only when its option is present. A
// present option with no category name gets the default name.
func Tracking(tr doctype.Tracking) Rule {
	return rowRule("tracking", func(r *types.Row, _ Options) bool {
		for _, p := range tr.Pairs {
			name, option := types.Field(p.Name), types.Field(p.Option)
			if r.Blank(option) {
				r.SetText(name, "")
				r.SetText(option, "")
				continue
			}
			r.SetText(option, strings.TrimSpace(r.Str(option)))
			if r.Blank(name) {
				r.SetText(name, tr.DefaultName)
			}
		}
		return true
	})
}

// Reference synthesises a reference for money-movement rows.
//
// EXAMPLE (prefix "Spend_"):
//
//	TransactionID "55-AA", Reference "CHQ 12" -> "Spend_55_CHQ 12"
//	TransactionID "55-AA", Reference ""       -> "Spend_55"
//	TransactionID "",      Reference "CHQ 12" -> "CHQ 12"
func Reference(ref doctype.Reference) Rule {
	id := types.Field(ref.IDField)
	source := types.Field(ref.SourceField)
	target := types.Field(ref.TargetField)
	return rowRule("reference", func(r *types.Row, _ Options) bool {
		original := ""
		if source != "" {
			original = strings.TrimSpace(r.Str(source))
		}
		prefix := IDPrefix(r.Str(id))
		switch {
		case prefix == "":
			r.SetText(target, original)
		case original == "":
			r.SetText(target, ref.Prefix+prefix)
		default:
			r.SetText(target, ref.Prefix+prefix+"_"+original)
		}
		return true
	})
}

// Derived sets a field to Then when another field matches one of In,
// otherwise Else.
func Derived(d doctype.Derived) Rule {
	field, when := types.Field(d.Field), types.Field(d.WhenField)
	return rowRule("derived", func(r *types.Row, _ Options) bool {
		if matchesAny(r.Str(when), d.In) {
			r.SetText(field, d.Then)
		} else {
			r.SetText(field, d.Else)
		}
		return true
	})
}

// IDPrefix returns the part of a system-assigned ID before its first "-",
// trimmed. An ID without "-" is returned whole.
func IDPrefix(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, "-"); i >= 0 {
		id = id[:i]
	}
	return strings.TrimSpace(id)
}

// =============================================================================
// HELPERS
// =============================================================================

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matchesAny(value string, candidates []string) bool {
	v := fold(value)
	for _, c := range candidates {
		if v == fold(c) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
