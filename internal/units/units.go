// Package units converts between human decimal amounts ("1.5") and integer
// base units at a token's decimals.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse converts a decimal string into base units. More fractional digits
// than decimals is an error rather than a silent truncation.
func Parse(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("units: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("units: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("units: negative amount %q", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("units: %q has more than %d decimal places", s, decimals)
	}
	return scaled.BigInt(), nil
}

// MustParse is Parse for constants known to be valid.
func MustParse(s string, decimals int32) *big.Int {
	v, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders base units as a decimal string without trailing zeros.
func Format(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// FormatFixed renders base units with exactly places fractional digits,
// rounding half away from zero.
func FormatFixed(v *big.Int, decimals, places int32) string {
	if v == nil {
		v = big.NewInt(0)
	}
	return decimal.NewFromBigInt(v, -decimals).StringFixed(places)
}
