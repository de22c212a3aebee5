package doctype

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed doctypes.yaml
var embeddedTable []byte

// ErrUnknownDocumentType is returned when no type answers a slug or route.
var ErrUnknownDocumentType = errors.New("unknown document type")

// table is the YAML document shape.
type table struct {
	Defaults struct {
		Routes []string `yaml:"routes"`
	} `yaml:"defaults"`
	DocumentTypes []*Spec `yaml:"document_types"`
}

// Registry holds the validated document type table.
type Registry struct {
	specs map[string]*Spec
	order []string
}

// Load returns the embedded table.
func Load() (*Registry, error) {
	return Parse(embeddedTable)
}

// LoadFile loads a table from disk, or the embedded table when path is "".
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document type table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a table.
func Parse(data []byte) (*Registry, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse document type table: %w", err)
	}
	if len(t.DocumentTypes) == 0 {
		return nil, fmt.Errorf("document type table is empty")
	}

	r := &Registry{specs: make(map[string]*Spec, len(t.DocumentTypes))}
	var problems []string

	for i, spec := range t.DocumentTypes {
		if spec == nil {
			problems = append(problems, fmt.Sprintf("entry %d is empty", i+1))
			continue
		}
		applyDefaults(spec, t.Defaults.Routes)

		if _, dup := r.specs[spec.Slug]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate slug", spec.Slug))
			continue
		}
		for _, p := range Validate(spec) {
			problems = append(problems, spec.Slug+": "+p)
		}
		r.specs[spec.Slug] = spec
		r.order = append(r.order, spec.Slug)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid document type table:\n  %s", strings.Join(problems, "\n  "))
	}
	return r, nil
}

func applyDefaults(spec *Spec, routes []string) {
	spec.Slug = strings.ToLower(strings.TrimSpace(spec.Slug))
	if spec.Mode == "" {
		spec.Mode = ModeStrict
	}
	if len(spec.Routes) == 0 {
		spec.Routes = append([]string(nil), routes...)
	}
	if spec.Tracking != nil && spec.Tracking.DefaultName == "" {
		spec.Tracking.DefaultName = "Class"
	}
	if spec.Reference != nil && spec.Reference.TargetField == "" {
		spec.Reference.TargetField = string(types.FieldReference)
	}
	if len(spec.TaxFields) > 0 && spec.TaxDefault == "" {
		spec.TaxDefault = TaxBASExcluded
	}
}

// Lookup returns the spec for slug.
func (r *Registry) Lookup(slug string) (*Spec, error) {
	spec, ok := r.specs[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, slug)
	}
	return spec, nil
}

// Resolve returns the spec answering a route.
func (r *Registry) Resolve(route Route) (*Spec, error) {
	spec, err := r.Lookup(route.Slug)
	if err != nil {
		return nil, err
	}
	if !spec.SupportsPair(route.Pair()) {
		return nil, fmt.Errorf("%w: %q is not offered on %s", ErrUnknownDocumentType, route.Slug, route.Pair())
	}
	return spec, nil
}

// All returns the specs in table order.
func (r *Registry) All() []*Spec {
	out := make([]*Spec, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.specs[slug])
	}
	return out
}

// =============================================================================
// TABLE VALIDATION
// =============================================================================

// Validate returns every problem found in spec. Rule fields must belong to
// the type's vocabulary.
func Validate(spec *Spec) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if spec.Slug == "" {
		add("missing slug")
	}
	if strings.Contains(spec.Slug, "/") {
		add("slug must not contain '/'")
	}
	if spec.Mode != ModeStrict && spec.Mode != ModePermissive {
		add("unknown mode %q", spec.Mode)
	}
	if len(spec.Columns) == 0 {
		add("no output columns")
	}
	if len(spec.FieldMapping) == 0 {
		add("no field mapping")
	}
	for _, route := range spec.Routes {
		if _, err := ParseRoute(route, "", spec.Slug); err != nil {
			add("route %q: %v", route, err)
		}
	}

	seen := make(map[string]bool)
	for _, c := range append(append([]string(nil), spec.Columns...), spec.OptionalColumns...) {
		if seen[c] {
			add("column %q listed twice", c)
		}
		seen[c] = true
	}

	vocab := spec.Vocabulary()
	known := func(what string, fields ...string) {
		for _, f := range fields {
			if f == "" {
				add("%s: empty field name", what)
			} else if !vocab[types.Field(f)] {
				add("%s: field %q is not in the vocabulary", what, f)
			}
		}
	}

	known("fill_down", spec.FillDown...)
	known("require", spec.Require...)
	if spec.Filter != nil {
		known("filter", spec.Filter.Field)
		if len(spec.Filter.Equals) == 0 {
			add("filter: no values")
		}
	}
	for _, ex := range spec.Exclude {
		known("exclude", ex.Field)
	}
	for f := range spec.Lookups {
		known("lookups", f)
	}
	if sa := spec.SignedAmount; sa != nil {
		known("signed_amount", sa.TotalField, sa.AmountField, sa.TypeField)
		if sa.Positive == "" || sa.Negative == "" {
			add("signed_amount: positive and negative types are required")
		}
	}
	known("tax_fields", spec.TaxFields...)
	if spec.TaxDefault != "" && !IsTaxCode(spec.TaxDefault) {
		add("tax_default %q is not a tax code", spec.TaxDefault)
	}
	known("date_fields", spec.DateFields...)
	for f := range spec.Fallbacks {
		known("fallbacks", f)
	}
	if tr := spec.Tracking; tr != nil {
		if len(tr.Pairs) == 0 || len(tr.Pairs) > 2 {
			add("tracking: 1 or 2 pairs expected, got %d", len(tr.Pairs))
		}
		for _, p := range tr.Pairs {
			known("tracking", p.Name, p.Option)
		}
	}
	if ref := spec.Reference; ref != nil {
		known("reference", ref.IDField, ref.TargetField)
		if ref.SourceField != "" {
			known("reference", ref.SourceField)
		}
		if ref.Prefix == "" {
			add("reference: missing prefix")
		}
	}
	if spec.CurrencyField != "" {
		known("currency_field", spec.CurrencyField)
	}
	for f := range spec.Constants {
		known("constants", f)
	}
	for _, d := range spec.Derived {
		known("derived", d.Field, d.WhenField)
	}
	if rc := spec.Reconcile; rc != nil {
		if rc.KeySheet == "" || rc.ValueSheet == "" {
			add("reconcile: key_sheet and value_sheet are required")
		}
		known("reconcile", rc.KeyField, rc.IDField)
	}

	return problems
}
