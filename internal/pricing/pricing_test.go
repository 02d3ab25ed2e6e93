package pricing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDiscountRateSamePriceIsZero(t *testing.T) {
	for _, p := range []float64{1, 49.99, 1200, 0.01} {
		if got := DiscountRate(p, p); got != 0 {
			t.Fatalf("DiscountRate(%v, %v) = %v, want 0", p, p, got)
		}
	}
}

func TestDiscountRateZeroActualIsZero(t *testing.T) {
	if got := DiscountRate(0, 75); got != 0 {
		t.Fatalf("expected 0 for zero actual price, got %v", got)
	}
}

func TestDiscountRateBasic(t *testing.T) {
	if got := DiscountRate(100, 80); got != 20 {
		t.Fatalf("DiscountRate(100, 80) = %v, want 20", got)
	}
}

func TestDiscountRateNormalizesBadInput(t *testing.T) {
	// A non-finite argument falls back to the other, which makes the two
	// equal and the rate zero.
	if got := DiscountRate(math.NaN(), 50); got != 0 {
		t.Fatalf("NaN actual should fall back to discounted, got %v", got)
	}
	if got := DiscountRate(50, math.Inf(1)); got != 0 {
		t.Fatalf("Inf discounted should fall back to actual, got %v", got)
	}
	if got := DiscountRate(math.NaN(), math.NaN()); got != 0 {
		t.Fatalf("both invalid should yield 0, got %v", got)
	}
}

func TestMarginCappedDiscountScenarios(t *testing.T) {
	cases := []struct {
		name    string
		selling string
		cost    string
		percent float64
		want    string
	}{
		{"within margin", "100", "70", 20, "20"},
		{"capped at margin", "100", "70", 50, "30"},
		{"cost above selling clamps to zero", "100", "120", 10, "0"},
		{"zero percent", "100", "70", 0, "0"},
		{"negative percent clamps to zero", "100", "70", -15, "0"},
	}

	for _, tc := range cases {
		selling := decimal.RequireFromString(tc.selling)
		cost := decimal.RequireFromString(tc.cost)
		want := decimal.RequireFromString(tc.want)
		got := MarginCappedDiscount(selling, cost, tc.percent)
		if !got.Equal(want) {
			t.Fatalf("%s: got %s, want %s", tc.name, got, want)
		}
	}
}

func TestMarginCappedDiscountNeverExceedsMargin(t *testing.T) {
	selling := decimal.NewFromInt(250)
	cost := decimal.NewFromInt(190)
	margin := selling.Sub(cost)
	for pct := 0.0; pct <= 100; pct += 7.5 {
		got := MarginCappedDiscount(selling, cost, pct)
		if got.IsNegative() {
			t.Fatalf("discount negative at %.1f%%: %s", pct, got)
		}
		if got.GreaterThan(margin) {
			t.Fatalf("discount %s exceeds margin %s at %.1f%%", got, margin, pct)
		}
	}
}

func TestClampDiscountPercent(t *testing.T) {
	if got := ClampDiscountPercent(55); got != MaxManualDiscountPercent {
		t.Fatalf("expected clamp to %v, got %v", MaxManualDiscountPercent, got)
	}
	if got := ClampDiscountPercent(-3); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
	if got := ClampDiscountPercent(math.NaN()); got != 0 {
		t.Fatalf("expected NaN to normalize to 0, got %v", got)
	}
	if got := ClampDiscountPercent(12.5); got != 12.5 {
		t.Fatalf("expected 12.5 to pass through, got %v", got)
	}
}

func TestPolicyTax(t *testing.T) {
	p := Policy{TaxRate: decimal.RequireFromString("0.1")}
	got := p.Tax(decimal.NewFromInt(200))
	if !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("tax = %s, want 20", got)
	}

	zero := Policy{}
	if !zero.Tax(decimal.NewFromInt(200)).Equal(decimal.Zero) {
		t.Fatalf("zero-rate policy should produce zero tax")
	}
}

func TestAmountFromFloat(t *testing.T) {
	if !AmountFromFloat(math.Inf(-1)).Equal(decimal.Zero) {
		t.Fatalf("expected -Inf to normalize to zero")
	}
	if !AmountFromFloat(12.5).Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected 12.5 to convert exactly")
	}
}
