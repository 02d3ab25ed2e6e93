package sale

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/pricing"
	"github.com/eharain/Rutba-POS-sub002/internal/xid"
)

// syntheticCostRatio derives the cost price recorded for free-text
// entries that have no catalog unit behind them.
var syntheticCostRatio = decimal.RequireFromString("0.75")

// Order is the aggregate root of one checkout session: ordered line
// items, payments, an optional customer, and an optional exchange-return
// credit. All totals are computed on demand by summing per line; nothing
// is derived by subtracting aggregates, so rounding never drifts across
// lines.
type Order struct {
	ID            string
	ExternalID    string
	InvoiceNumber string
	SaleDate      time.Time
	Customer      *domain.Customer

	policy         pricing.Policy
	paymentStatus  string
	lines          []*LineItem
	payments       []domain.Payment
	exchangeReturn *domain.ExchangeReturn
}

func NewOrder(policy pricing.Policy) *Order {
	return &Order{
		ID:            xid.New("sale"),
		SaleDate:      time.Now().UTC(),
		policy:        policy,
		paymentStatus: domain.PaymentStatusUnpaid,
	}
}

func (o *Order) Policy() pricing.Policy {
	return o.policy
}

func (o *Order) PaymentStatus() string {
	return o.paymentStatus
}

// SetPaymentStatus overrides the stored status. Partial is enumerated but
// never derived by AddPayment; callers set it explicitly if they track
// partial payment externally.
func (o *Order) SetPaymentStatus(status string) {
	o.paymentStatus = status
}

func (o *Order) LineItems() []*LineItem {
	out := make([]*LineItem, len(o.lines))
	copy(out, o.lines)
	return out
}

func (o *Order) LineItem(index int) (*LineItem, error) {
	if index < 0 || index >= len(o.lines) {
		return nil, fmt.Errorf("%w: index %d", ErrLineNotFound, index)
	}
	return o.lines[index], nil
}

// AddStockUnit folds the unit into an existing line when one carries the
// same product and an identical pricing triple, otherwise opens a new
// line. Synthetic lines never absorb stock units.
func (o *Order) AddStockUnit(unit *domain.StockUnit) *LineItem {
	if unit == nil {
		return nil
	}
	for _, line := range o.lines {
		if line.synthetic || len(line.units) == 0 {
			continue
		}
		if unitsMatch(line.units[0], unit) {
			line.AddUnit(unit)
			return line
		}
	}
	line := NewLineItem(xid.New("line"), unit)
	o.lines = append(o.lines, line)
	return line
}

// unitsMatch implements the structural equality used for de-duplication:
// same catalog reference and the same (cost, selling, offer) triple.
func unitsMatch(a, b *domain.StockUnit) bool {
	if a.Product == nil || b.Product == nil {
		return false
	}
	if a.Product.ID != b.Product.ID || a.Product.ExternalID != b.Product.ExternalID {
		return false
	}
	if !a.CostPrice.Equal(b.CostPrice) || !a.SellingPrice.Equal(b.SellingPrice) {
		return false
	}
	if a.OfferPrice.Valid != b.OfferPrice.Valid {
		return false
	}
	if a.OfferPrice.Valid && !a.OfferPrice.Decimal.Equal(b.OfferPrice.Decimal) {
		return false
	}
	return true
}

// Free-text entry patterns, most specific first. The name may itself
// contain spaces, so price/qty/discount anchor at the end of the input.
var (
	freeTextFull     = regexp.MustCompile(`^\s*(.*\S)\s+(\d+(?:\.\d+)?)\s+(\d+)\s+(\d+(?:\.\d+)?)%\s*$`)
	freeTextQty      = regexp.MustCompile(`^\s*(.*\S)\s+(\d+(?:\.\d+)?)\s+(\d+)\s*$`)
	freeTextPrice    = regexp.MustCompile(`^\s*(.*\S)\s+(\d+(?:\.\d+)?)\s*$`)
	freeTextNameOnly = regexp.MustCompile(`^\s*(\S(?:.*\S)?)\s*$`)
)

// parseFreeText matches the input against the ordered entry patterns.
// Unmatched input yields the neutral entry {name:"", price:0, qty:1,
// discount:0} rather than an error.
func parseFreeText(text string) (name string, price float64, qty int, discount float64) {
	qty = 1
	if m := freeTextFull.FindStringSubmatch(text); m != nil {
		name = m[1]
		price, _ = strconv.ParseFloat(m[2], 64)
		qty, _ = strconv.Atoi(m[3])
		discount, _ = strconv.ParseFloat(m[4], 64)
	} else if m := freeTextQty.FindStringSubmatch(text); m != nil {
		name = m[1]
		price, _ = strconv.ParseFloat(m[2], 64)
		qty, _ = strconv.Atoi(m[3])
	} else if m := freeTextPrice.FindStringSubmatch(text); m != nil {
		name = m[1]
		price, _ = strconv.ParseFloat(m[2], 64)
	} else if m := freeTextNameOnly.FindStringSubmatch(text); m != nil {
		name = m[1]
	}
	if qty < 1 {
		qty = 1
	}
	return name, pricing.ValidOr(price, 0), qty, pricing.ValidOr(discount, 0)
}

// AddNonStockItem parses a free-text entry and adds it as one synthetic
// line. The synthesized units carry a derived cost price and no catalog
// reference; they are never reported to inventory.
func (o *Order) AddNonStockItem(text string) *LineItem {
	name, price, qty, discount := parseFreeText(text)

	unitPrice := pricing.AmountFromFloat(price)
	line := &LineItem{
		ID:        xid.New("line"),
		Name:      name,
		synthetic: true,
	}
	for i := 0; i < qty; i++ {
		line.AddUnit(&domain.StockUnit{
			ID:           xid.New("unit"),
			SellingPrice: unitPrice,
			CostPrice:    unitPrice.Mul(syntheticCostRatio),
			OfferPrice:   decimal.NullDecimal{Decimal: unitPrice, Valid: true},
			Status:       domain.UnitStatusReserved,
		})
	}
	line.SetDiscountPercent(discount)
	o.lines = append(o.lines, line)
	return line
}

// RemoveLineItem deletes the line at index and returns it. The units the
// line held, including its reserve pool, are NOT returned to the catalog
// here; releasing them is the integrator's responsibility.
func (o *Order) RemoveLineItem(index int) (*LineItem, error) {
	if index < 0 || index >= len(o.lines) {
		return nil, fmt.Errorf("%w: index %d", ErrLineNotFound, index)
	}
	removed := o.lines[index]
	o.lines = append(o.lines[:index], o.lines[index+1:]...)
	return removed, nil
}

// AddPayment defaults missing fields, appends the payment, and
// re-evaluates the payment status. Status becomes paid only when at least
// one payment exists and the cumulative amount covers the total;
// otherwise it is left as previously set.
func (o *Order) AddPayment(p domain.Payment) domain.Payment {
	if p.Method == "" {
		p.Method = domain.PaymentMethodCash
	}
	if p.Date.IsZero() {
		p.Date = time.Now().UTC()
	}
	o.payments = append(o.payments, p)

	if len(o.payments) > 0 && o.PaymentsTotal().GreaterThanOrEqual(o.Total()) {
		o.paymentStatus = domain.PaymentStatusPaid
	}
	return p
}

func (o *Order) Payments() []domain.Payment {
	out := make([]domain.Payment, len(o.payments))
	copy(out, o.payments)
	return out
}

func (o *Order) PaymentsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range o.payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

func (o *Order) SetExchangeReturn(ret *domain.ExchangeReturn) {
	o.exchangeReturn = ret
}

func (o *Order) ExchangeReturn() *domain.ExchangeReturn {
	return o.exchangeReturn
}

// ExchangeReturnTotal sums line totals when the return was hydrated from
// storage, falling back to unit prices for returns staged on the desk
// before save.
func (o *Order) ExchangeReturnTotal() decimal.Decimal {
	if o.exchangeReturn == nil {
		return decimal.Zero
	}
	hydrated := false
	for _, line := range o.exchangeReturn.Lines {
		if line.LineTotal.Valid {
			hydrated = true
			break
		}
	}
	sum := decimal.Zero
	for _, line := range o.exchangeReturn.Lines {
		if hydrated {
			if line.LineTotal.Valid {
				sum = sum.Add(line.LineTotal.Decimal)
			}
		} else {
			sum = sum.Add(line.UnitPrice)
		}
	}
	return sum
}

// Order-level totals, each independently summed per line.

func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range o.lines {
		sum = sum.Add(line.SellingSubtotal())
	}
	return sum
}

func (o *Order) DiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range o.lines {
		sum = sum.Add(line.RowDiscount())
	}
	return sum
}

func (o *Order) Tax() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range o.lines {
		sum = sum.Add(line.Tax(o.policy))
	}
	return sum
}

func (o *Order) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range o.lines {
		sum = sum.Add(line.Total(o.policy))
	}
	return sum
}

// Record builds the persistence-facing projection of the order.
func (o *Order) Record() domain.SaleRecord {
	rec := domain.SaleRecord{
		ExternalID:     o.ExternalID,
		InvoiceNumber:  o.InvoiceNumber,
		SaleDate:       o.SaleDate,
		PaymentStatus:  o.paymentStatus,
		Customer:       o.Customer,
		Payments:       o.Payments(),
		ExchangeReturn: o.exchangeReturn,
		Subtotal:       o.Subtotal(),
		DiscountTotal:  o.DiscountTotal(),
		Tax:            o.Tax(),
		Total:          o.Total(),
	}
	for _, line := range o.lines {
		rec.Lines = append(rec.Lines, line.Record(o.policy))
	}
	return rec
}

// State builds the read model rendered on the desk after each mutation.
func (o *Order) State() domain.SaleState {
	state := domain.SaleState{
		ID:                  o.ID,
		InvoiceNumber:       o.InvoiceNumber,
		SaleDate:            o.SaleDate,
		PaymentStatus:       o.paymentStatus,
		Customer:            o.Customer,
		Payments:            o.Payments(),
		Subtotal:            o.Subtotal(),
		DiscountTotal:       o.DiscountTotal(),
		Tax:                 o.Tax(),
		Total:               o.Total(),
		PaymentsTotal:       o.PaymentsTotal(),
		ExchangeReturnTotal: o.ExchangeReturnTotal(),
	}
	for _, line := range o.lines {
		ls := domain.SaleLineState{
			Name:            line.Name,
			Synthetic:       line.synthetic,
			Reserve:         len(line.ReserveUnits()),
			LineItemPayload: line.Payload(o.policy),
		}
		for _, unit := range line.units {
			ls.UnitIDs = append(ls.UnitIDs, unit.ID)
		}
		state.Lines = append(state.Lines, ls)
	}
	return state
}
