// Package reconcile joins the two inputs of a dual-file document type.
//
// The key sheet lists the document numbers the source system issued; the
// value sheet holds the authorised (or paid) lines. Two systems number
// documents independently, so a visible number can be reused by distinct
// records. Where that happens the system-assigned internal ID is the only
// reliable disambiguator, and the joiner folds its prefix into the number.
package reconcile

import (
	"strings"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/rules"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// Index counts normalised identifier occurrences in a key dataset.
type Index map[string]int

// BuildIndex counts every non-blank value of field.
func BuildIndex(rows []*types.Row, field types.Field) Index {
	ix := make(Index)
	for _, r := range rows {
		if id := Normalize(r.Str(field)); id != "" {
			ix[id]++
		}
	}
	return ix
}

// Ambiguous reports whether id occurs more than once.
func (ix Index) Ambiguous(id string) bool {
	return ix[Normalize(id)] > 1
}

// Normalize trims and case-folds an identifier.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Stats counts what Join changed.
type Stats struct {
	// Synthesized rows had no identifier and received their ID prefix.
	Synthesized int

	// Rewritten rows carried an ambiguous identifier and were prefixed.
	Rewritten int

	// Ambiguous is the number of distinct ambiguous identifiers.
	Ambiguous int
}

// Join returns a copy of the value rows with identifiers disambiguated
// against the key rows. Both datasets must already be mapped to canonical
// fields.
//
// For each value row:
//   - a blank identifier becomes the row's ID prefix (text before the
//     first "-"); with no prefix it stays blank
//   - otherwise, when the identifier's suffix (text after the first "_",
//     or the whole identifier) is ambiguous in the key sheet and the
//     prefix is not already applied, it becomes "<prefix>_<suffix>"
func Join(keys, values *types.Dataset, rc doctype.Reconcile) (*types.Dataset, Stats, error) {
	var st Stats
	if keys.Len() == 0 || values.Len() == 0 {
		return nil, st, types.ErrEmptyDataset
	}

	keyField, idField := types.Field(rc.KeyField), types.Field(rc.IDField)
	ix := BuildIndex(keys.Rows, keyField)
	for _, n := range ix {
		if n > 1 {
			st.Ambiguous++
		}
	}

	out := values.Clone()
	for _, r := range out.Rows {
		id := strings.TrimSpace(r.Str(keyField))
		prefix := rules.IDPrefix(r.Str(idField))

		if id == "" {
			if prefix != "" {
				r.SetText(keyField, prefix)
				st.Synthesized++
			}
			continue
		}

		if prefix == "" || strings.HasPrefix(id, prefix+"_") {
			continue
		}
		suffix := id
		if i := strings.Index(id, "_"); i >= 0 {
			suffix = id[i+1:]
		}
		if ix.Ambiguous(suffix) {
			r.SetText(keyField, prefix+"_"+suffix)
			st.Rewritten++
		}
	}

	return out, st, nil
}
