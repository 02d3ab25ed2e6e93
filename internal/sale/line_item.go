package sale

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/pricing"
)

// Summable stock unit fields. Any other field name is rejected with
// ErrInvalidField.
const (
	FieldSellingPrice = "sellingPrice"
	FieldCostPrice    = "costPrice"
	FieldOfferPrice   = "offerPrice"
)

// LineItem is one priced row of a sale: one or more stock units sharing a
// single discount percentage, or a synthetic quantity created from free
// text. Quantity is always derived from the assigned units; it is never
// stored independently.
type LineItem struct {
	ID         string
	ExternalID string
	Name       string

	units                []*domain.StockUnit
	discountPercent      float64
	savedDiscountPercent *float64
	synthetic            bool
}

// NewLineItem creates a line seeded with one stock unit.
func NewLineItem(id string, unit *domain.StockUnit) *LineItem {
	li := &LineItem{ID: id}
	if unit != nil {
		if unit.Product != nil {
			li.Name = unit.Product.Name
		}
		li.AddUnit(unit)
	}
	return li
}

func (li *LineItem) AddUnit(unit *domain.StockUnit) {
	if unit == nil {
		return
	}
	li.units = append(li.units, unit)
}

func (li *LineItem) Quantity() int {
	return len(li.units)
}

func (li *LineItem) Synthetic() bool {
	return li.synthetic
}

// Units returns the currently assigned units in order.
func (li *LineItem) Units() []*domain.StockUnit {
	out := make([]*domain.StockUnit, len(li.units))
	copy(out, li.units)
	return out
}

// ReserveUnits returns the units parked in the line's reserve pool by an
// earlier quantity decrease.
func (li *LineItem) ReserveUnits() []*domain.StockUnit {
	if len(li.units) == 0 {
		return nil
	}
	pool := li.units[0].Linked
	out := make([]*domain.StockUnit, len(pool))
	copy(out, pool)
	return out
}

// AllUnits returns assigned units followed by the reserve pool. Used when
// a line leaves the sale and everything it held must be released.
func (li *LineItem) AllUnits() []*domain.StockUnit {
	return append(li.Units(), li.ReserveUnits()...)
}

// SumByField totals the named pricing field across the assigned units.
// A unit without an offer price contributes zero to the offer sum.
func (li *LineItem) SumByField(field string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, unit := range li.units {
		switch field {
		case FieldSellingPrice:
			sum = sum.Add(unit.SellingPrice)
		case FieldCostPrice:
			sum = sum.Add(unit.CostPrice)
		case FieldOfferPrice:
			if unit.OfferPrice.Valid {
				sum = sum.Add(unit.OfferPrice.Decimal)
			}
		default:
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidField, field)
		}
	}
	return sum, nil
}

// ApplyToUnits writes value into the named pricing field of every
// assigned unit. The explicit field check replaces blind key assignment.
func (li *LineItem) ApplyToUnits(field string, value decimal.Decimal) error {
	switch field {
	case FieldSellingPrice, FieldCostPrice, FieldOfferPrice:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	for _, unit := range li.units {
		switch field {
		case FieldSellingPrice:
			unit.SellingPrice = value
		case FieldCostPrice:
			unit.CostPrice = value
		case FieldOfferPrice:
			unit.OfferPrice = decimal.NullDecimal{Decimal: value, Valid: true}
		}
	}
	return nil
}

func (li *LineItem) SellingSubtotal() decimal.Decimal {
	sum, _ := li.SumByField(FieldSellingPrice)
	return sum
}

func (li *LineItem) CostSubtotal() decimal.Decimal {
	sum, _ := li.SumByField(FieldCostPrice)
	return sum
}

func (li *LineItem) OfferSubtotal() decimal.Decimal {
	sum, _ := li.SumByField(FieldOfferPrice)
	return sum
}

func (li *LineItem) UnitPrice() decimal.Decimal {
	qty := li.Quantity()
	if qty == 0 {
		return decimal.Zero
	}
	return li.SellingSubtotal().Div(decimal.NewFromInt(int64(qty)))
}

func (li *LineItem) DiscountPercent() float64 {
	return li.discountPercent
}

// SetDiscountPercent stores the clamped percentage and returns it.
func (li *LineItem) SetDiscountPercent(p float64) float64 {
	li.discountPercent = pricing.ClampDiscountPercent(p)
	return li.discountPercent
}

func (li *LineItem) RowDiscount() decimal.Decimal {
	return pricing.MarginCappedDiscount(li.SellingSubtotal(), li.CostSubtotal(), li.discountPercent)
}

func (li *LineItem) DiscountedSubtotal() decimal.Decimal {
	return li.SellingSubtotal().Sub(li.RowDiscount())
}

func (li *LineItem) Tax(policy pricing.Policy) decimal.Decimal {
	return policy.Tax(li.DiscountedSubtotal())
}

func (li *LineItem) Total(policy pricing.Policy) decimal.Decimal {
	return li.DiscountedSubtotal().Add(li.Tax(policy))
}

// ApplyOfferPrice saves the current discount percentage and replaces it
// with the rate implied by the line's promotional price. Applying again
// without reverting overwrites the saved slot with the already-adjusted
// percentage; revert then only undoes the latest apply.
func (li *LineItem) ApplyOfferPrice() float64 {
	if len(li.units) == 0 || !li.units[0].OfferPrice.Valid {
		return li.discountPercent
	}
	saved := li.discountPercent
	li.savedDiscountPercent = &saved
	li.discountPercent = pricing.DiscountRate(
		li.UnitPrice().InexactFloat64(),
		li.units[0].OfferPrice.Decimal.InexactFloat64(),
	)
	return li.discountPercent
}

// RevertOffer restores the discount saved by ApplyOfferPrice and clears
// the slot. Without a prior apply it is a no-op returning the current
// percentage.
func (li *LineItem) RevertOffer() float64 {
	if li.savedDiscountPercent == nil {
		return li.discountPercent
	}
	li.discountPercent = *li.savedDiscountPercent
	li.savedDiscountPercent = nil
	return li.discountPercent
}

// SetQuantity edits the line's quantity while preserving unit identity.
// Decreasing detaches units from the end into the reserve pool hung off
// the first remaining unit; increasing pulls units back from the front of
// that pool. An increase beyond what the pool holds fills what it can and
// silently drops the shortfall. Requests below 1 are ignored. Returns the
// resulting quantity.
func (li *LineItem) SetQuantity(newQty int) int {
	if newQty < 1 {
		return li.Quantity()
	}

	current := len(li.units)
	switch {
	case newQty < current:
		kept := li.units[:newQty]
		first := kept[0]
		for i := current - 1; i >= newQty; i-- {
			first.Linked = append(first.Linked, li.units[i])
		}
		li.units = kept
	case newQty > current && current > 0:
		first := li.units[0]
		take := newQty - current
		if take > len(first.Linked) {
			take = len(first.Linked)
		}
		li.units = append(li.units, first.Linked[:take]...)
		first.Linked = first.Linked[take:]
	}

	return len(li.units)
}

// Payload builds the canonical persisted projection of the line.
func (li *LineItem) Payload(policy pricing.Policy) domain.LineItemPayload {
	return domain.LineItemPayload{
		Quantity:        li.Quantity(),
		Price:           li.UnitPrice(),
		Discount:        li.RowDiscount(),
		DiscountPercent: li.discountPercent,
		Subtotal:        li.SellingSubtotal(),
		Tax:             li.Tax(policy),
		Total:           li.Total(policy),
	}
}

// Record extends Payload with the identity fields persistence needs.
func (li *LineItem) Record(policy pricing.Policy) domain.SaleLineRecord {
	rec := domain.SaleLineRecord{
		ExternalID:      li.ExternalID,
		Name:            li.Name,
		Synthetic:       li.synthetic,
		LineItemPayload: li.Payload(policy),
	}
	if !li.synthetic {
		for _, unit := range li.units {
			rec.UnitExternalIDs = append(rec.UnitExternalIDs, unit.ExternalID)
		}
	}
	return rec
}
