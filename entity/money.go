package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// CentsFromDecimal converts a decimal dollar amount ("49.99") to integer
// cents, rounding half away from zero. Amounts are stored exclusively as
// cents; negative amounts are rejected.
func CentsFromDecimal(amount string) (int64, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("amount must not be negative: %q", amount)
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	dollars, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}
	cents := dollars * 100

	if fracPart == "" {
		return cents, nil
	}
	for _, r := range fracPart {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", amount)
		}
	}
	if len(fracPart) > 3 {
		fracPart = fracPart[:3]
	}
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	milli, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}
	cents += milli / 10
	if milli%10 >= 5 {
		cents++
	}
	return cents, nil
}

// FormatCents renders cents back as a decimal dollar string, the inverse of
// CentsFromDecimal to the cent.
func FormatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// NormalizeCurrency applies the fixed default when the caller left the
// currency unset.
func NormalizeCurrency(currency string) string {
	if currency == "" {
		return DefaultCurrency
	}
	return strings.ToLower(currency)
}
