package sale

import (
	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/pricing"
)

// Snapshot captures the full mutable state of an in-progress order,
// including reserve pools and saved offer slots, so the order can be
// parked and later restored with identical unit identities.
func (o *Order) Snapshot() domain.DraftSale {
	draft := domain.DraftSale{
		ID:             o.ID,
		ExternalID:     o.ExternalID,
		InvoiceNumber:  o.InvoiceNumber,
		SaleDate:       o.SaleDate,
		PaymentStatus:  o.paymentStatus,
		TaxRate:        o.policy.TaxRate,
		Customer:       o.Customer,
		Payments:       o.Payments(),
		ExchangeReturn: o.exchangeReturn,
	}
	for _, line := range o.lines {
		dl := domain.DraftLine{
			ID:              line.ID,
			ExternalID:      line.ExternalID,
			Name:            line.Name,
			Synthetic:       line.synthetic,
			DiscountPercent: line.discountPercent,
		}
		if line.savedDiscountPercent != nil {
			saved := *line.savedDiscountPercent
			dl.SavedDiscountPercent = &saved
		}
		for _, unit := range line.units {
			u := *unit
			u.Linked = nil
			dl.Units = append(dl.Units, u)
		}
		for _, unit := range line.ReserveUnits() {
			u := *unit
			u.Linked = nil
			dl.Reserve = append(dl.Reserve, u)
		}
		draft.Lines = append(draft.Lines, dl)
	}
	return draft
}

// Restore rebuilds an order from a snapshot taken by Snapshot.
func Restore(draft domain.DraftSale) *Order {
	o := &Order{
		ID:             draft.ID,
		ExternalID:     draft.ExternalID,
		InvoiceNumber:  draft.InvoiceNumber,
		SaleDate:       draft.SaleDate,
		Customer:       draft.Customer,
		policy:         pricing.Policy{TaxRate: draft.TaxRate},
		paymentStatus:  draft.PaymentStatus,
		payments:       append([]domain.Payment(nil), draft.Payments...),
		exchangeReturn: draft.ExchangeReturn,
	}
	if o.paymentStatus == "" {
		o.paymentStatus = domain.PaymentStatusUnpaid
	}
	for _, dl := range draft.Lines {
		line := &LineItem{
			ID:              dl.ID,
			ExternalID:      dl.ExternalID,
			Name:            dl.Name,
			synthetic:       dl.Synthetic,
			discountPercent: dl.DiscountPercent,
		}
		if dl.SavedDiscountPercent != nil {
			saved := *dl.SavedDiscountPercent
			line.savedDiscountPercent = &saved
		}
		for i := range dl.Units {
			u := dl.Units[i]
			line.units = append(line.units, &u)
		}
		if len(line.units) > 0 {
			for i := range dl.Reserve {
				u := dl.Reserve[i]
				line.units[0].Linked = append(line.units[0].Linked, &u)
			}
		}
		o.lines = append(o.lines, line)
	}
	return o
}
