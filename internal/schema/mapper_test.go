package schema

import (
	"testing"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strictSpec() *doctype.Spec {
	return &doctype.Spec{
		Slug: "coa",
		Mode: doctype.ModeStrict,
		FieldMapping: map[string]string{
			"Account Number": "Code",
			"Code":           "Code",
			"Account Name":   "Name",
		},
		Columns: []string{"Code", "Name"},
	}
}

func permissiveSpec() *doctype.Spec {
	return &doctype.Spec{
		Slug: "invoice",
		Mode: doctype.ModePermissive,
		FieldMapping: map[string]string{
			"Co./Last Name": "ContactName",
			"Job":           "TrackingOption1",
		},
		Columns:         []string{"ContactName"},
		OptionalColumns: []string{"TrackingName1", "TrackingOption1", "InventoryItemCode"},
	}
}

func TestMapStrictDropsUnmapped(t *testing.T) {
	ds := &types.Dataset{
		Headers: []string{"Account Number", "Account Name", "Notes"},
		Rows:    []*types.Row{types.RowOf("Account Number", "090", "Account Name", "Bank", "Notes", "x")},
	}

	out := NewMapper(strictSpec()).Map(ds)

	assert.Equal(t, []string{"Code", "Name"}, out.Headers)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, []types.Field{"Code", "Name"}, out.Rows[0].Keys())
	assert.Equal(t, "090", out.Rows[0].Str("Code"))
}

func TestMapPermissiveKeepsUnmapped(t *testing.T) {
	ds := &types.Dataset{
		Headers: []string{"Co./Last Name", "Job", "Salesperson"},
		Rows:    []*types.Row{types.RowOf("Co./Last Name", "Acme", "Job", "J1", "Salesperson", "Kim")},
	}

	out := NewMapper(permissiveSpec()).Map(ds)

	assert.Equal(t, []string{"ContactName", "TrackingOption1", "Salesperson"}, out.Headers)
	assert.Equal(t, "Kim", out.Rows[0].Str("Salesperson"))
	assert.Equal(t, "J1", out.Rows[0].Str("TrackingOption1"))
}

func TestMapCollidingHeadersLastWriteWins(t *testing.T) {
	row := types.NewRow()
	row.SetText("Account Number", "first")
	row.SetText("Code", "second")
	ds := &types.Dataset{Headers: []string{"Account Number", "Code"}, Rows: []*types.Row{row}}

	out := NewMapper(strictSpec()).Map(ds)

	assert.Equal(t, []string{"Code"}, out.Headers)
	assert.Equal(t, "second", out.Rows[0].Str("Code"))
}

func TestCanonicalIsCaseInsensitive(t *testing.T) {
	m := NewMapper(strictSpec())

	f, ok := m.Canonical("account  NUMBER")
	require.True(t, ok)
	assert.Equal(t, types.Field("Code"), f)

	_, ok = m.Canonical("Balance")
	assert.False(t, ok)
}

func TestColumns(t *testing.T) {
	rows := []*types.Row{
		types.RowOf("ContactName", "A", "TrackingOption1", ""),
		types.RowOf("ContactName", "B", "TrackingOption1", "North", "InventoryItemCode", " "),
	}

	got := Columns(permissiveSpec(), rows)
	assert.Equal(t, types.Fields("ContactName", "TrackingOption1"), got)

	assert.Equal(t, types.Fields("Code", "Name"), Columns(strictSpec(), rows))
}
