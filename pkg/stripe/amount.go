package stripe

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimal lists currencies Stripe charges in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true,
	"xpf": true,
}

func exponent(currency string) int32 {
	if zeroDecimal[strings.ToLower(strings.TrimSpace(currency))] {
		return 0
	}
	return 2
}

// ToMinorUnits converts a whole-unit amount into the smallest unit Stripe
// expects for the currency.
func ToMinorUnits(amount int64, currency string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("amount cannot be negative")
	}
	minor := decimal.NewFromInt(amount).Shift(exponent(currency))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %s is not representable in %s", minor, currency)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts a Stripe amount back to whole units, rejecting
// fractional results.
func FromMinorUnits(minor int64, currency string) (int64, error) {
	whole := decimal.NewFromInt(minor).Shift(-exponent(currency))
	if !whole.IsInteger() {
		return 0, fmt.Errorf("amount %s %s has a fractional part", whole, currency)
	}
	return whole.IntPart(), nil
}
