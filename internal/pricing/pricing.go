package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// MaxManualDiscountPercent is the hard business ceiling on manually
// entered line discounts.
const MaxManualDiscountPercent = 40.0

var hundred = decimal.NewFromInt(100)

// ValidOr returns f when it is a finite number and fallback otherwise.
// Partially-filled forms routinely send NaN-ish values; total computation
// must never fail on them.
func ValidOr(f float64, fallback float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

// AmountFromFloat converts an untrusted float into a decimal amount,
// normalizing non-finite input to zero.
func AmountFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(ValidOr(f, 0))
}

// DiscountRate derives the discount percentage implied by selling at
// discounted instead of actual. Each argument falls back to the other
// when non-finite, then to zero when both are invalid; a zero actual
// price yields zero.
func DiscountRate(actual, discounted float64) float64 {
	a := ValidOr(actual, ValidOr(discounted, 0))
	d := ValidOr(discounted, ValidOr(actual, 0))
	if a == 0 {
		return 0
	}
	return (a - d) / a * 100
}

// MarginCappedDiscount returns the discount amount for the requested
// percentage, clamped so realized revenue never drops below cost. The
// result is never negative, even when cost exceeds the selling subtotal.
func MarginCappedDiscount(sellingSubtotal, costSubtotal decimal.Decimal, discountPercent float64) decimal.Decimal {
	pct := decimal.NewFromFloat(ValidOr(discountPercent, 0))
	requested := sellingSubtotal.Mul(pct).Div(hundred)
	maxAllowed := sellingSubtotal.Sub(costSubtotal)
	if maxAllowed.IsNegative() {
		maxAllowed = decimal.Zero
	}
	if requested.IsNegative() {
		return decimal.Zero
	}
	if requested.GreaterThan(maxAllowed) {
		return maxAllowed
	}
	return requested
}

// ClampDiscountPercent normalizes a manual discount percentage into the
// allowed [0, MaxManualDiscountPercent] range.
func ClampDiscountPercent(p float64) float64 {
	p = ValidOr(p, 0)
	if p < 0 {
		return 0
	}
	if p > MaxManualDiscountPercent {
		return MaxManualDiscountPercent
	}
	return p
}

// Policy carries branch-level pricing configuration. It is passed in
// explicitly at call time; there is no ambient tax state.
type Policy struct {
	TaxRate decimal.Decimal // decimal fraction, e.g. 0.05 for 5%
}

func (p Policy) Tax(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(p.TaxRate)
}
