// Package schema renames source columns to a document type's canonical
// field names and computes the final output column set.
package schema

import (
	"strings"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// Mapper applies one document type's field mapping.
type Mapper struct {
	spec   *doctype.Spec
	exact  map[string]types.Field
	folded map[string]types.Field
}

// NewMapper prepares the header lookup for spec.
func NewMapper(spec *doctype.Spec) *Mapper {
	m := &Mapper{
		spec:   spec,
		exact:  make(map[string]types.Field, len(spec.FieldMapping)),
		folded: make(map[string]types.Field, len(spec.FieldMapping)),
	}
	for source, canonical := range spec.FieldMapping {
		m.exact[source] = types.Field(canonical)
		m.folded[foldHeader(source)] = types.Field(canonical)
	}
	return m
}

// Canonical returns the canonical name for a source header. Exact matches
// win over case-insensitive ones.
func (m *Mapper) Canonical(header string) (types.Field, bool) {
	if f, ok := m.exact[header]; ok {
		return f, true
	}
	f, ok := m.folded[foldHeader(header)]
	return f, ok
}

// Map returns a new dataset with every row renamed.
//
// Unmapped headers are dropped for strict types and kept verbatim for
// permissive ones. When two source headers map to the same canonical field
// the later column overwrites the earlier one.
func (m *Mapper) Map(ds *types.Dataset) *types.Dataset {
	out := &types.Dataset{
		Rows:   make([]*types.Row, 0, len(ds.Rows)),
		Source: ds.Source,
		Sheet:  ds.Sheet,
	}

	seen := make(map[string]bool)
	for _, h := range ds.Headers {
		name, keep := m.rename(h)
		if keep && !seen[string(name)] {
			seen[string(name)] = true
			out.Headers = append(out.Headers, string(name))
		}
	}

	for _, row := range ds.Rows {
		mapped := types.NewRow()
		mapped.Line = row.Line
		for _, key := range row.Keys() {
			name, keep := m.rename(string(key))
			if !keep {
				continue
			}
			v, _ := row.Get(key)
			mapped.Set(name, v)
		}
		out.Rows = append(out.Rows, mapped)
	}

	return out
}

func (m *Mapper) rename(header string) (types.Field, bool) {
	if f, ok := m.Canonical(header); ok {
		return f, true
	}
	if m.spec.Strict() {
		return "", false
	}
	return types.Field(header), true
}

// Columns computes the final output column set: the mandatory columns in
// order, then (permissive types only) each optional column that holds a
// non-blank value on at least one row.
func Columns(spec *doctype.Spec, rows []*types.Row) []types.Field {
	cols := spec.ColumnFields()
	if spec.Strict() {
		return cols
	}

	for _, opt := range spec.OptionalFields() {
		for _, r := range rows {
			if !r.Blank(opt) {
				cols = append(cols, opt)
				break
			}
		}
	}
	return cols
}

func foldHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}
