package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// cleanAmount keeps digits, separators and the sign, then rewrites the
// separators so the result uses '.' as the only decimal mark.
func cleanAmount(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

// ParseAmount parses a localized amount, reporting whether the text held a
// number at all.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := cleanAmount(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// NormalizeAmount is ParseAmount with failures mapped to zero.
func NormalizeAmount(raw string) decimal.Decimal {
	d, _ := ParseAmount(raw)
	return d
}

// MinorUnits reads an integer count of cents, e.g. "0000000012345" -> 123.45.
func MinorUnits(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return decimal.Zero, false
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	d = d.Div(hundred)
	if neg {
		d = d.Neg()
	}
	return d, true
}
