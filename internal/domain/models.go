package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock unit lifecycle. A unit moves to sold only on a paid checkout;
// reserved means it is attached to an in-progress sale on some desk.
const (
	UnitStatusAvailable = "available"
	UnitStatusReserved  = "reserved"
	UnitStatusSold      = "sold"
)

const (
	PaymentMethodCash           = "cash"
	PaymentMethodCard           = "card"
	PaymentMethodBank           = "bank"
	PaymentMethodMobileWallet   = "mobile_wallet"
	PaymentMethodExchangeReturn = "exchange_return"
)

const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
	SaleStatusVoided     = "voided"
)

// ProductRef points a stock unit back at its catalog entry. Synthetic
// (free-text) units carry no product reference.
type ProductRef struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode,omitempty"`
}

// StockUnit is one serialized inventory item with its own pricing.
// Linked holds units detached from a line's active quantity during an
// edit but still associated with that line; they are never returned to
// the catalog by a quantity change alone.
type StockUnit struct {
	ID           string              `json:"id"`
	ExternalID   string              `json:"external_id,omitempty"`
	CostPrice    decimal.Decimal     `json:"cost_price"`
	SellingPrice decimal.Decimal     `json:"selling_price"`
	OfferPrice   decimal.NullDecimal `json:"offer_price"`
	Status       string              `json:"status"`
	Product      *ProductRef         `json:"product,omitempty"`
	Linked       []*StockUnit        `json:"linked,omitempty"`
}

type Customer struct {
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Payment is append-only on a sale; it is never implicitly removed.
type Payment struct {
	ExternalID   string              `json:"external_id,omitempty"`
	Method       string              `json:"method"`
	Amount       decimal.Decimal     `json:"amount"`
	Date         time.Time           `json:"date"`
	CashReceived decimal.NullDecimal `json:"cash_received,omitempty"`
	Change       decimal.NullDecimal `json:"change,omitempty"`
}

// ExchangeReturnLine carries LineTotal when hydrated from storage and
// only UnitPrice when staged on the desk before save. Both shapes are
// accepted when totalling.
type ExchangeReturnLine struct {
	ProductName string              `json:"product_name"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Quantity    int                 `json:"quantity"`
	LineTotal   decimal.NullDecimal `json:"line_total"`
}

type ExchangeReturn struct {
	OriginalSaleRef string               `json:"original_sale_ref"`
	ReturnNumber    string               `json:"return_number,omitempty"`
	Lines           []ExchangeReturnLine `json:"return_line_items"`
	TotalRefund     decimal.NullDecimal  `json:"total_refund"`
}

// LineItemPayload is the canonical persisted projection of a sale line.
// The field names form the persistence contract and must not change.
type LineItemPayload struct {
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Discount        decimal.Decimal `json:"discount"`
	DiscountPercent float64         `json:"discountPercent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
}

// SaleLineRecord wraps the canonical payload with the identity fields the
// persistence layer needs for inventory status transitions.
type SaleLineRecord struct {
	ExternalID      string   `json:"external_id,omitempty"`
	Name            string   `json:"name"`
	Synthetic       bool     `json:"synthetic"`
	UnitExternalIDs []string `json:"unit_external_ids,omitempty"`
	LineItemPayload
}

// SaleRecord is the persistence-facing projection of a whole sale order.
// An empty ExternalID means "create"; a present one means "update".
type SaleRecord struct {
	ExternalID     string           `json:"external_id,omitempty"`
	InvoiceNumber  string           `json:"invoice_number"`
	SaleDate       time.Time        `json:"sale_date"`
	PaymentStatus  string           `json:"payment_status"`
	Customer       *Customer        `json:"customer,omitempty"`
	Lines          []SaleLineRecord `json:"line_items"`
	Payments       []Payment        `json:"payments"`
	ExchangeReturn *ExchangeReturn  `json:"exchange_return,omitempty"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	DiscountTotal  decimal.Decimal  `json:"discount_total"`
	Tax            decimal.Decimal  `json:"tax"`
	Total          decimal.Decimal  `json:"total"`
	VoidReason     string           `json:"void_reason,omitempty"`
}

// DraftLine and DraftSale snapshot an in-progress order so a desk can park
// it and resume later with the exact same unit identities and offer state.
type DraftLine struct {
	ID                   string      `json:"id"`
	ExternalID           string      `json:"external_id,omitempty"`
	Name                 string      `json:"name"`
	Synthetic            bool        `json:"synthetic"`
	DiscountPercent      float64     `json:"discount_percent"`
	SavedDiscountPercent *float64    `json:"saved_discount_percent,omitempty"`
	Units                []StockUnit `json:"units"`
	Reserve              []StockUnit `json:"reserve,omitempty"`
}

type DraftSale struct {
	ID             string          `json:"id"`
	ExternalID     string          `json:"external_id,omitempty"`
	InvoiceNumber  string          `json:"invoice_number"`
	SaleDate       time.Time       `json:"sale_date"`
	PaymentStatus  string          `json:"payment_status"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Customer       *Customer       `json:"customer,omitempty"`
	Lines          []DraftLine     `json:"lines"`
	Payments       []Payment       `json:"payments"`
	ExchangeReturn *ExchangeReturn `json:"exchange_return,omitempty"`
}

type Actor struct {
	Username string
	DeskID   string
}

type AuditLog struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	ActorName  string    `json:"actor_name"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// API request/response shapes.

type StartSaleRequest struct {
	CashierID  string    `json:"cashier_id"`
	Customer   *Customer `json:"customer,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
}

type SaleSessionResponse struct {
	SessionID     string    `json:"session_id"`
	SessionToken  string    `json:"session_token,omitempty"`
	Version       int64     `json:"version"`
	InvoiceNumber string    `json:"invoice_number"`
	Sale          SaleState `json:"sale"`
}

// SaleState is the read model the desk renders after every mutation.
type SaleState struct {
	ID                  string          `json:"id"`
	InvoiceNumber       string          `json:"invoice_number"`
	SaleDate            time.Time       `json:"sale_date"`
	PaymentStatus       string          `json:"payment_status"`
	Customer            *Customer       `json:"customer,omitempty"`
	Lines               []SaleLineState `json:"lines"`
	Payments            []Payment       `json:"payments"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	DiscountTotal       decimal.Decimal `json:"discount_total"`
	Tax                 decimal.Decimal `json:"tax"`
	Total               decimal.Decimal `json:"total"`
	PaymentsTotal       decimal.Decimal `json:"payments_total"`
	ExchangeReturnTotal decimal.Decimal `json:"exchange_return_total"`
}

type SaleLineState struct {
	Name      string   `json:"name"`
	Synthetic bool     `json:"synthetic"`
	UnitIDs   []string `json:"unit_ids,omitempty"`
	Reserve   int      `json:"reserve"`
	LineItemPayload
}

type AddStockItemRequest struct {
	UnitID string `json:"unit_id"`
}

type AddFreeTextItemRequest struct {
	Text string `json:"text"`
}

type LineQuantityRequest struct {
	LineIndex int `json:"line_index"`
	Quantity  int `json:"quantity"`
}

type LineDiscountRequest struct {
	LineIndex       int     `json:"line_index"`
	DiscountPercent float64 `json:"discount_percent"`
}

type LineIndexRequest struct {
	LineIndex int `json:"line_index"`
}

type AddPaymentRequest struct {
	Method       string  `json:"method"`
	Amount       float64 `json:"amount"`
	CashReceived float64 `json:"cash_received,omitempty"`
}

type ExchangeReturnRequest struct {
	OriginalSaleRef string               `json:"original_sale_ref"`
	ReturnNumber    string               `json:"return_number,omitempty"`
	Lines           []ExchangeReturnLine `json:"return_line_items"`
}

type ParkSaleRequest struct {
	Note string `json:"note"`
}

type ParkedSaleSummary struct {
	ID        string    `json:"id"`
	Note      string    `json:"note"`
	Owner     string    `json:"owner"`
	LineCount int       `json:"line_count"`
	ParkedAt  time.Time `json:"parked_at"`
}

type ResumeSaleRequest struct {
	ParkedID  string `json:"parked_id"`
	CashierID string `json:"cashier_id"`
}

type VoidSaleRequest struct {
	SaleExternalID string `json:"sale_external_id"`
	Reason         string `json:"reason"`
	ManagerPIN     string `json:"manager_pin"`
}

type VoidSaleResponse struct {
	SaleExternalID string `json:"sale_external_id"`
	Status         string `json:"status"`
	VoidedAt       string `json:"voided_at"`
}
