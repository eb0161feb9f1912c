// Package fixedpoint converts between human decimal strings and the 1e18
// fixed-point integers used for all on-chain price arithmetic.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const decimals = 18

// Parse converts a decimal string such as "1.5" into a 1e18-scaled integer.
// Digits beyond 18 fractional places are truncated, never rounded up.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %q", s)
	}
	return d.Shift(decimals).Truncate(0).BigInt(), nil
}

// Format renders a 1e18-scaled integer with the given number of fractional
// places, e.g. Format(1500000000000000000, 6) == "1.500000".
func Format(v *big.Int, places int32) string {
	if v == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(v, -decimals).StringFixed(places)
}

// Raw renders the unscaled integer form, matching the on-chain value.
func Raw(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
