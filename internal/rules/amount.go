package rules

import (
	"strings"

	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/shopspring/decimal"
)

// ParseAmount reads a money value. Text may carry a currency symbol,
// thousands separators, or accounting parentheses for negatives.
func ParseAmount(v types.Value) (decimal.Decimal, bool) {
	if v.Kind == types.KindNumber {
		return decimal.NewFromFloat(v.Num), true
	}

	s := strings.TrimSpace(v.Text)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// SignedAmount types a line from the sign of its total.
//
// EXAMPLE:
//
//	SignedAmount("150.00", "Invoice", "Credit Note") -> "Invoice", "150.00"
//	SignedAmount("-75.50", "Invoice", "Credit Note") -> "Credit Note", "75.50"
//
// A total that cannot be read keeps the primary type and passes through
// unchanged (ok=false).
func SignedAmount(total types.Value, positive, negative string) (docType, amount string, ok bool) {
	d, parsed := ParseAmount(total)
	if !parsed {
		return positive, strings.TrimSpace(total.String()), false
	}
	if d.IsNegative() {
		return negative, d.Abs().StringFixed(2), true
	}
	return positive, d.StringFixed(2), true
}
