package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCents parses a decimal amount such as "12", "12.5" or "12.50".
// Negative amounts and more than two fractional digits are rejected.
func ParseCents(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount: %w", ErrValidation)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("amount %q: %w", s, ErrValidation)
	}
	var hundredths int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("amount %q: %w", s, ErrValidation)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		hundredths, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || hundredths < 0 {
			return 0, fmt.Errorf("amount %q: %w", s, ErrValidation)
		}
	}
	return Cents(units*100 + hundredths), nil
}

// CentsFromFloat converts a decimal number to cents, rounding half away from zero.
func CentsFromFloat(f float64) Cents {
	return Cents(math.Round(f * 100))
}
