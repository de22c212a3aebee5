package doctype

import "strings"

// Canonical tax codes of the destination ledger. Every tax field in output
// holds one of these.
const (
	TaxBASExcluded     = "BAS Excluded"
	TaxGSTOnExpenses   = "GST on Expenses"
	TaxGSTOnIncome     = "GST on Income"
	TaxGSTFreeExpenses = "GST Free Expenses"
	TaxGSTFreeIncome   = "GST Free Income"
	TaxInputTaxed      = "Input Taxed"
	TaxGSTOnImports    = "GST on Imports"
	TaxGSTOnCapital    = "GST on Capital"
	TaxGSTFreeCapital  = "GST Free Capital"
	TaxExempt          = "Tax Exempt"
)

// TaxCodes lists the enumeration in display order.
var TaxCodes = []string{
	TaxBASExcluded,
	TaxGSTOnExpenses,
	TaxGSTOnIncome,
	TaxGSTFreeExpenses,
	TaxGSTFreeIncome,
	TaxInputTaxed,
	TaxGSTOnImports,
	TaxGSTOnCapital,
	TaxGSTFreeCapital,
	TaxExempt,
}

// taxAliases maps a tax code key (upper case, no spaces) to its canonical
// value. Source ledgers export the short report codes; the spelled-out
// forms map to themselves so already converted files survive a re-run.
var taxAliases = map[string]string{
	"BASEXCLUDED":    TaxBASExcluded,
	"INPUT":          TaxGSTOnExpenses,
	"OUTPUT":         TaxGSTOnIncome,
	"EXEMPTEXPENSES": TaxGSTFreeExpenses,
	"EXEMPTOUTPUT":   TaxGSTFreeIncome,
	"INPUTTAXED":     TaxInputTaxed,
	"GSTONIMPORTS":   TaxGSTOnImports,
	"CAPEXINPUT":     TaxGSTOnCapital,
	"EXEMPTCAPITAL":  TaxGSTFreeCapital,
	"TAXEXEMPT":      TaxExempt,
}

func init() {
	for _, code := range TaxCodes {
		taxAliases[TaxKey(code)] = code
	}
}

// TaxKey normalises a tax code for lookup: upper case with all whitespace
// removed.
func TaxKey(code string) string {
	return strings.Join(strings.Fields(strings.ToUpper(code)), "")
}

// LookupTaxCode returns the canonical tax code for raw, if known.
func LookupTaxCode(raw string) (string, bool) {
	code, ok := taxAliases[TaxKey(raw)]
	return code, ok
}

// IsTaxCode reports whether s is exactly one of the canonical codes.
func IsTaxCode(s string) bool {
	for _, code := range TaxCodes {
		if code == s {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
