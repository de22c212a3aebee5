package rules

import (
	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
)

// CanonicalizeTax maps a source tax code onto the fixed enumeration.
//
// Matching ignores case and whitespace ("bas excluded", "BASEXCLUDED").
// Blank or unrecognised input yields def; an empty def means BAS Excluded.
//
// EXAMPLE:
//
//	CanonicalizeTax("INPUT", "")         -> "GST on Expenses"
//	CanonicalizeTax("VAT", "Tax Exempt") -> "Tax Exempt"
func CanonicalizeTax(raw, def string) string {
	if code, ok := doctype.LookupTaxCode(raw); ok {
		return code
	}
	if def == "" {
		return doctype.TaxBASExcluded
	}
	return def
}
