// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals kept at two fractional digits.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// maxAmount bounds parsed input to keep totals well inside sane ranges.
var maxAmount = decimal.New(1, 12)

// ParseAmount converts a decimal string to an amount rounded to two places.
//
// Commas are read as thousands separators when every comma opens a group of
// exactly three digits, or when a dot is also present. A single comma that
// does not open a three-digit group is a decimal separator. Rounding is
// half-up on the third decimal place. Signs are rejected: the kind of a
// transaction carries its polarity.
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34
//	ParseAmount("12,34")     -> 12.34
//	ParseAmount("25,000")    -> 25000
//	ParseAmount("25,000.50") -> 25000.50
//	ParseAmount("0")         -> 0
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s, ok := normalizeSeparators(s)
	if !ok {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.GreaterThan(maxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// normalizeSeparators rewrites s to use a single dot as decimal point and no
// grouping. It reports false for commas that are neither valid grouping nor
// a lone decimal comma.
func normalizeSeparators(s string) (string, bool) {
	if !strings.Contains(s, ",") {
		return s, true
	}
	intPart, frac, hasDot := strings.Cut(s, ".")
	if isGrouped(intPart) {
		out := strings.ReplaceAll(intPart, ",", "")
		if hasDot {
			out += "." + frac
		}
		return out, true
	}
	if hasDot || strings.Count(s, ",") > 1 || strings.HasSuffix(s, ",") {
		return "", false
	}
	return strings.Replace(s, ",", ".", 1), true
}

// isGrouped reports whether s is digits split by commas into a leading group
// of one to three digits followed by groups of exactly three.
func isGrouped(s string) bool {
	groups := strings.Split(s, ",")
	if len(groups) < 2 || len(groups[0]) < 1 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// FormatAmount renders an amount with two decimals and thousands separators.
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
