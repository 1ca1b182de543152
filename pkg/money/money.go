// Package money provides decimal parsing, rounding and display formatting
// for currency amounts and billable quantities.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of decimal places kept on currency amounts.
const CurrencyPlaces = 2

// Parse converts a scalar into a decimal. Accepts numbers and strings,
// tolerating thousands separators ("1,50,000" or "12,500.00").
func Parse(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return val, nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case string:
		return decimal.NewFromString(strings.ReplaceAll(val, ",", ""))
	default:
		return decimal.Zero, fmt.Errorf("cannot parse %T as a decimal amount", v)
	}
}

// RoundCurrency rounds an amount to currency precision, half away from
// zero. Applied exactly once per billing row; totals sum the already
// rounded rows and are never re-rounded.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// FormatCurrency renders an amount with grouped thousands and two decimal
// places, e.g. "12,500.00".
func FormatCurrency(d decimal.Decimal) string {
	s := d.StringFixed(CurrencyPlaces)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)
	out := strings.Join(groups, ",") + "." + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// FormatQuantity renders a quantity without trailing noise: integral
// values print bare ("15"), fractional values keep two places ("7.50").
func FormatQuantity(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}
