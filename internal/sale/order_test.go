package sale

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/pricing"
)

func testOrder() *Order {
	return NewOrder(pricing.Policy{})
}

func catalogUnit(id, productID string, cost, selling float64) *domain.StockUnit {
	return &domain.StockUnit{
		ID:           id,
		ExternalID:   "ext-" + id,
		CostPrice:    decimal.NewFromFloat(cost),
		SellingPrice: decimal.NewFromFloat(selling),
		Status:       domain.UnitStatusReserved,
		Product: &domain.ProductRef{
			ID:   productID,
			Name: "Product " + productID,
		},
	}
}

func TestAddStockUnitFoldsStructuralMatches(t *testing.T) {
	order := testOrder()
	order.AddStockUnit(catalogUnit("a", "prod-1", 70, 100))
	order.AddStockUnit(catalogUnit("b", "prod-1", 70, 100))

	lines := order.LineItems()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Quantity() != 2 {
		t.Fatalf("expected quantity 2, got %d", lines[0].Quantity())
	}
}

func TestAddStockUnitSplitsOnPricingDifference(t *testing.T) {
	order := testOrder()
	order.AddStockUnit(catalogUnit("a", "prod-1", 70, 100))
	order.AddStockUnit(catalogUnit("b", "prod-1", 70, 95)) // same product, cheaper unit

	if len(order.LineItems()) != 2 {
		t.Fatalf("expected 2 lines for diverging pricing, got %d", len(order.LineItems()))
	}
}

func TestAddStockUnitSplitsOnOfferDifference(t *testing.T) {
	order := testOrder()
	withOffer := catalogUnit("a", "prod-1", 70, 100)
	withOffer.OfferPrice = decimal.NullDecimal{Decimal: decimal.NewFromInt(90), Valid: true}
	order.AddStockUnit(withOffer)
	order.AddStockUnit(catalogUnit("b", "prod-1", 70, 100))

	if len(order.LineItems()) != 2 {
		t.Fatalf("expected offer mismatch to open a new line")
	}
}

func TestAddNonStockItemFullPattern(t *testing.T) {
	order := testOrder()
	line := order.AddNonStockItem("Gift Wrap 5 2 10%")

	if !line.Synthetic() {
		t.Fatalf("expected synthetic line")
	}
	if line.Name != "Gift Wrap" {
		t.Fatalf("name = %q, want %q", line.Name, "Gift Wrap")
	}
	if line.Quantity() != 2 {
		t.Fatalf("quantity = %d, want 2", line.Quantity())
	}
	if line.DiscountPercent() != 10 {
		t.Fatalf("discount = %v, want 10", line.DiscountPercent())
	}
	for _, u := range line.Units() {
		if !u.SellingPrice.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("unit selling price = %s, want 5", u.SellingPrice)
		}
		if !u.CostPrice.Equal(decimal.RequireFromString("3.75")) {
			t.Fatalf("unit cost price = %s, want 3.75", u.CostPrice)
		}
		if u.Product != nil {
			t.Fatalf("synthetic unit must not reference the catalog")
		}
	}
}

func TestAddNonStockItemPatternFallbacks(t *testing.T) {
	cases := []struct {
		text     string
		name     string
		price    string
		qty      int
		discount float64
	}{
		{"Alteration Service 12.50 3", "Alteration Service", "12.5", 3, 0},
		{"Ribbon 2.25", "Ribbon", "2.25", 1, 0},
		{"Misc", "Misc", "0", 1, 0},
		{"", "", "0", 1, 0},
	}

	for _, tc := range cases {
		order := testOrder()
		line := order.AddNonStockItem(tc.text)
		if line.Name != tc.name {
			t.Fatalf("%q: name = %q, want %q", tc.text, line.Name, tc.name)
		}
		if line.Quantity() != tc.qty {
			t.Fatalf("%q: qty = %d, want %d", tc.text, line.Quantity(), tc.qty)
		}
		if line.DiscountPercent() != tc.discount {
			t.Fatalf("%q: discount = %v, want %v", tc.text, line.DiscountPercent(), tc.discount)
		}
		want := decimal.RequireFromString(tc.price)
		if line.Quantity() > 0 && !line.Units()[0].SellingPrice.Equal(want) {
			t.Fatalf("%q: price = %s, want %s", tc.text, line.Units()[0].SellingPrice, want)
		}
	}
}

func TestRemoveLineItem(t *testing.T) {
	order := testOrder()
	order.AddStockUnit(catalogUnit("a", "prod-1", 70, 100))
	order.AddStockUnit(catalogUnit("b", "prod-2", 10, 20))

	removed, err := order.RemoveLineItem(0)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if removed.Units()[0].ID != "a" {
		t.Fatalf("removed wrong line")
	}
	if len(order.LineItems()) != 1 {
		t.Fatalf("expected 1 remaining line")
	}

	if _, err := order.RemoveLineItem(5); !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestPaymentStatusRule(t *testing.T) {
	order := testOrder()
	order.AddStockUnit(catalogUnit("a", "prod-1", 70, 100))

	if order.PaymentStatus() != domain.PaymentStatusUnpaid {
		t.Fatalf("new order should be unpaid")
	}

	order.AddPayment(domain.Payment{Method: domain.PaymentMethodCash, Amount: decimal.NewFromInt(40)})
	if order.PaymentStatus() != domain.PaymentStatusUnpaid {
		t.Fatalf("partial coverage must not flip status to paid")
	}

	order.AddPayment(domain.Payment{Method: domain.PaymentMethodCard, Amount: decimal.NewFromInt(60)})
	if order.PaymentStatus() != domain.PaymentStatusPaid {
		t.Fatalf("full coverage should mark the order paid, got %s", order.PaymentStatus())
	}
}

func TestAddPaymentDefaults(t *testing.T) {
	order := testOrder()
	p := order.AddPayment(domain.Payment{})
	if p.Method != domain.PaymentMethodCash {
		t.Fatalf("default method = %s, want cash", p.Method)
	}
	if p.Date.IsZero() {
		t.Fatalf("expected payment date to default to now")
	}
	if !p.Amount.Equal(decimal.Zero) {
		t.Fatalf("default amount should be zero")
	}
}

func TestOrderTotalsAreSummedPerLine(t *testing.T) {
	policy := pricing.Policy{TaxRate: decimal.RequireFromString("0.05")}
	order := NewOrder(policy)

	a := order.AddStockUnit(catalogUnit("a", "prod-1", 70, 100))
	a.SetDiscountPercent(20)
	b := order.AddStockUnit(catalogUnit("b", "prod-2", 30, 60))
	b.SetDiscountPercent(10)

	if !order.Subtotal().Equal(decimal.NewFromInt(160)) {
		t.Fatalf("subtotal = %s, want 160", order.Subtotal())
	}
	// line a: discount 20, line b: discount 6
	if !order.DiscountTotal().Equal(decimal.NewFromInt(26)) {
		t.Fatalf("discount total = %s, want 26", order.DiscountTotal())
	}
	// taxed bases 80 and 54 at 5%
	wantTax := decimal.RequireFromString("6.7")
	if !order.Tax().Equal(wantTax) {
		t.Fatalf("tax = %s, want %s", order.Tax(), wantTax)
	}
	wantTotal := decimal.RequireFromString("140.7")
	if !order.Total().Equal(wantTotal) {
		t.Fatalf("total = %s, want %s", order.Total(), wantTotal)
	}
}

func TestExchangeReturnTotalHydratedShape(t *testing.T) {
	order := testOrder()
	order.SetExchangeReturn(&domain.ExchangeReturn{
		OriginalSaleRef: "sale-9",
		Lines: []domain.ExchangeReturnLine{
			{ProductName: "Shirt", UnitPrice: decimal.NewFromInt(25), Quantity: 2, LineTotal: decimal.NullDecimal{Decimal: decimal.NewFromInt(50), Valid: true}},
			{ProductName: "Belt", UnitPrice: decimal.NewFromInt(10), Quantity: 1, LineTotal: decimal.NullDecimal{Decimal: decimal.NewFromInt(10), Valid: true}},
		},
	})
	if !order.ExchangeReturnTotal().Equal(decimal.NewFromInt(60)) {
		t.Fatalf("hydrated total = %s, want 60", order.ExchangeReturnTotal())
	}
}

func TestExchangeReturnTotalStagedShape(t *testing.T) {
	order := testOrder()
	order.SetExchangeReturn(&domain.ExchangeReturn{
		OriginalSaleRef: "sale-9",
		Lines: []domain.ExchangeReturnLine{
			{ProductName: "Shirt", UnitPrice: decimal.NewFromInt(25), Quantity: 2},
			{ProductName: "Belt", UnitPrice: decimal.NewFromInt(10), Quantity: 1},
		},
	})
	// Staged returns carry only unit prices; those are what get summed.
	if !order.ExchangeReturnTotal().Equal(decimal.NewFromInt(35)) {
		t.Fatalf("staged total = %s, want 35", order.ExchangeReturnTotal())
	}
}

func TestExchangeReturnTotalEmpty(t *testing.T) {
	order := testOrder()
	if !order.ExchangeReturnTotal().Equal(decimal.Zero) {
		t.Fatalf("no exchange return should total zero")
	}
}

func TestRecordProjection(t *testing.T) {
	order := testOrder()
	order.InvoiceNumber = "INV-TEST"
	order.AddStockUnit(catalogUnit("a", "prod-1", 70, 100))
	order.AddNonStockItem("Gift Wrap 5 1")

	rec := order.Record()
	if rec.InvoiceNumber != "INV-TEST" {
		t.Fatalf("invoice number not carried into record")
	}
	if len(rec.Lines) != 2 {
		t.Fatalf("expected 2 line records, got %d", len(rec.Lines))
	}
	if len(rec.Lines[0].UnitExternalIDs) != 1 || rec.Lines[0].UnitExternalIDs[0] != "ext-a" {
		t.Fatalf("stock line should carry unit external ids")
	}
	if rec.Lines[1].UnitExternalIDs != nil {
		t.Fatalf("synthetic line must not report unit ids to inventory")
	}
	if !rec.Subtotal.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("record subtotal = %s, want 105", rec.Subtotal)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	order := NewOrder(pricing.Policy{TaxRate: decimal.RequireFromString("0.05")})
	order.InvoiceNumber = "INV-SNAP"
	line := order.AddStockUnit(catalogUnit("a", "prod-1", 70, 100))
	line.AddUnit(catalogUnit("b", "prod-1", 70, 100))
	line.AddUnit(catalogUnit("c", "prod-1", 70, 100))
	line.SetQuantity(2)
	line.SetDiscountPercent(15)
	order.AddPayment(domain.Payment{Method: domain.PaymentMethodCash, Amount: decimal.NewFromInt(50)})

	restored := Restore(order.Snapshot())

	if restored.InvoiceNumber != "INV-SNAP" {
		t.Fatalf("invoice number lost in snapshot round trip")
	}
	rLine := restored.LineItems()[0]
	if rLine.Quantity() != 2 {
		t.Fatalf("restored quantity = %d, want 2", rLine.Quantity())
	}
	if len(rLine.ReserveUnits()) != 1 || rLine.ReserveUnits()[0].ID != "c" {
		t.Fatalf("reserve pool not restored")
	}
	if rLine.DiscountPercent() != 15 {
		t.Fatalf("discount percent lost in round trip")
	}
	if !restored.Total().Equal(order.Total()) {
		t.Fatalf("restored total %s != original %s", restored.Total(), order.Total())
	}
	// The restored reserve unit can come back into the line.
	if got := rLine.SetQuantity(3); got != 3 {
		t.Fatalf("restored line could not regrow from reserve, qty=%d", got)
	}
}
