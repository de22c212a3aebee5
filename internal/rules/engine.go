// Package rules applies a document type's transformation rules to a mapped
// dataset and projects the result onto the final output columns.
package rules

import (
	"errors"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/schema"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// ErrNoRowsSurvived is returned when every row was dropped.
var ErrNoRowsSurvived = errors.New("no rows survived filtering")

// Result is the outcome of one engine run.
type Result struct {
	// Dataset holds the projected output rows; Headers are the columns.
	Dataset *types.Dataset

	// Columns is the final column set, in output order.
	Columns []types.Field

	// Read is the number of input rows.
	Read int

	// Dropped counts rows removed, per rule name.
	Dropped map[string]int
}

// TotalDropped sums Dropped.
func (r *Result) TotalDropped() int {
	n := 0
	for _, d := range r.Dropped {
		n += d
	}
	return n
}

// Engine holds the ordered rule set of one document type.
type Engine struct {
	spec  *doctype.Spec
	rules []Rule
}

// New compiles spec into its rule set. The order is fixed: fill_down,
// require, filter, exclude, lookups, signed_amount, tax, dates, fallbacks,
// tracking, reference, currency, constants, derived.
func New(spec *doctype.Spec) *Engine {
	var rs []Rule

	if len(spec.FillDown) > 0 {
		rs = append(rs, FillDown(spec.FillDown))
	}
	if len(spec.Require) > 0 {
		rs = append(rs, Require(spec.Require))
	}
	if spec.Filter != nil {
		rs = append(rs, Filter(*spec.Filter))
	}
	for _, ex := range spec.Exclude {
		rs = append(rs, Exclude(ex))
	}
	if len(spec.Lookups) > 0 {
		rs = append(rs, Lookups(spec.Lookups))
	}
	if spec.SignedAmount != nil {
		rs = append(rs, Signed(*spec.SignedAmount))
	}
	if len(spec.TaxFields) > 0 {
		rs = append(rs, Tax(spec.TaxFields, spec.TaxDefault))
	}
	if len(spec.DateFields) > 0 {
		rs = append(rs, Dates(spec.DateFields))
	}
	if len(spec.Fallbacks) > 0 {
		rs = append(rs, Fallbacks(spec.Fallbacks))
	}
	if spec.Tracking != nil {
		rs = append(rs, Tracking(*spec.Tracking))
	}
	if spec.Reference != nil {
		rs = append(rs, Reference(*spec.Reference))
	}
	if spec.CurrencyField != "" {
		rs = append(rs, Currency(spec.CurrencyField))
	}
	if len(spec.Constants) > 0 {
		rs = append(rs, Constants(spec.Constants))
	}
	for _, d := range spec.Derived {
		rs = append(rs, Derived(d))
	}

	return &Engine{spec: spec, rules: rs}
}

// RuleNames lists the compiled rules in application order.
func (e *Engine) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

// Apply runs every rule over a copy of ds. The input dataset is not
// modified, so a job can be converted again.
func (e *Engine) Apply(ds *types.Dataset, opts Options) (*Result, error) {
	if opts.CurrencyMode == "" {
		opts.CurrencyMode = doctype.CurrencySingle
	}

	rows := make([]*types.Row, 0, ds.Len())
	if ds != nil {
		for _, r := range ds.Rows {
			rows = append(rows, r.Clone())
		}
	}

	res := &Result{Read: len(rows), Dropped: make(map[string]int)}
	for _, rule := range e.rules {
		before := len(rows)
		rows = rule.Apply(rows, opts)
		if d := before - len(rows); d > 0 {
			res.Dropped[rule.Name] += d
		}
	}

	if len(rows) == 0 {
		return res, ErrNoRowsSurvived
	}

	res.Columns = schema.Columns(e.spec, rows)
	out := &types.Dataset{
		Headers: make([]string, len(res.Columns)),
		Rows:    make([]*types.Row, len(rows)),
	}
	if ds != nil {
		out.Source, out.Sheet = ds.Source, ds.Sheet
	}
	for i, c := range res.Columns {
		out.Headers[i] = string(c)
	}
	for i, r := range rows {
		out.Rows[i] = r.Project(res.Columns)
	}
	res.Dataset = out
	return res, nil
}
