package doctype

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRoute is returned for malformed route segments.
var ErrInvalidRoute = errors.New("invalid route")

// CurrencyMode selects single- or multi-currency conversion.
type CurrencyMode string

const (
	CurrencySingle CurrencyMode = "single"
	CurrencyMulti  CurrencyMode = "multi"
)

// Route addresses one document type on one software pair:
// {country}-{source}-{dest}/{currencyMode}/{operation}-{slug}.
type Route struct {
	Country      string
	Source       string
	Dest         string
	CurrencyMode CurrencyMode
	Slug         string
}

// ParseRoute builds a route from its URL segments.
func ParseRoute(pair, currencyMode, slug string) (Route, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(pair)), "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Route{}, fmt.Errorf("%w: software pair %q is not {country}-{source}-{dest}", ErrInvalidRoute, pair)
	}

	mode := CurrencyMode(strings.ToLower(strings.TrimSpace(currencyMode)))
	if mode == "" {
		mode = CurrencySingle
	}
	if mode != CurrencySingle && mode != CurrencyMulti {
		return Route{}, fmt.Errorf("%w: currency mode %q", ErrInvalidRoute, currencyMode)
	}

	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return Route{}, fmt.Errorf("%w: missing document type", ErrInvalidRoute)
	}

	return Route{
		Country:      parts[0],
		Source:       parts[1],
		Dest:         parts[2],
		CurrencyMode: mode,
		Slug:         slug,
	}, nil
}

// SplitOperation splits "upload-coa" into ("upload", "coa").
func SplitOperation(segment string) (op, slug string, err error) {
	op, slug, ok := strings.Cut(segment, "-")
	if !ok || op == "" || slug == "" {
		return "", "", fmt.Errorf("%w: operation segment %q", ErrInvalidRoute, segment)
	}
	return strings.ToLower(op), slug, nil
}

// Pair returns "{country}-{source}-{dest}".
func (r Route) Pair() string {
	return r.Country + "-" + r.Source + "-" + r.Dest
}

// String returns "{pair}/{currencyMode}/{slug}".
func (r Route) String() string {
	return r.Pair() + "/" + string(r.CurrencyMode) + "/" + r.Slug
}

// Path returns the URL path of an operation on this route.
func (r Route) Path(op string) string {
	return "/" + r.Pair() + "/" + string(r.CurrencyMode) + "/" + op + "-" + r.Slug
}
