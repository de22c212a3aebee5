package rules

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// serialEpochOffset is the number of days between the spreadsheet epoch
// (1899-12-30) and the Unix epoch.
const serialEpochOffset = 25569

// dayMonthYear matches D/M/Y text with "/" or "-" separators and a two- or
// four-digit year.
var dayMonthYear = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2}|\d{4})$`)

// isoLayouts are tried in order for text that is not D/M/Y.
var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
}

// CanonicalizeDate renders a date value as DD/MM/YYYY text.
//
// Accepted inputs:
//   - a native date cell
//   - a numeric cell, read as a spreadsheet serial date
//   - D/M/Y text (2- or 4-digit year, "/" or "-")
//   - ISO-style text (2024-03-05, 2024-03-05T10:00:00Z, ...)
//
// Anything else is returned unchanged with ok=false. Text already in
// DD/MM/YYYY form comes back identical.
func CanonicalizeDate(v types.Value) (types.Value, bool) {
	switch v.Kind {
	case types.KindDate:
		return types.Text(v.Time.Format(types.DateLayout)), true
	case types.KindNumber:
		t, ok := SerialToTime(v.Num)
		if !ok {
			return v, false
		}
		return types.Text(t.Format(types.DateLayout)), true
	}

	s := strings.TrimSpace(v.Text)
	if s == "" {
		return v, false
	}

	if t, ok := parseDayMonthYear(s); ok {
		return types.Text(t.Format(types.DateLayout)), true
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return types.Text(t.Format(types.DateLayout)), true
		}
	}
	return v, false
}

// SerialToTime converts a spreadsheet serial date. The fractional part is
// the time of day. Serials below 1 are rejected.
func SerialToTime(serial float64) (time.Time, bool) {
	if serial < 1 || math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, false
	}
	secs := math.Round((serial - serialEpochOffset) * 86400)
	return time.Unix(int64(secs), 0).UTC(), true
}

func parseDayMonthYear(s string) (time.Time, bool) {
	m := dayMonthYear.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31/02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
