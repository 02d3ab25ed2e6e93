package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/store"
	"github.com/eharain/Rutba-POS-sub002/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	unitsByID       map[string]domain.StockUnit
	salesByExternal map[string]domain.SaleRecord
	taxRateByBranch map[string]decimal.Decimal
	auditLogs       []domain.AuditLog
}

// NewSeeded builds an in-memory store with a small garment catalog for
// dev/demo mode. Every unit is serialized; two units of the same product
// can carry different prices.
func NewSeeded() *Store {
	dec := decimal.RequireFromString

	products := []domain.ProductRef{
		{ID: "prod-kurta-emb", ExternalID: "P-1001", Name: "Embroidered Kurta", Barcode: "8901001"},
		{ID: "prod-lawn-3pc", ExternalID: "P-1002", Name: "Lawn 3-Piece Suit", Barcode: "8901002"},
		{ID: "prod-shawl-wool", ExternalID: "P-1003", Name: "Wool Shawl", Barcode: "8901003"},
		{ID: "prod-denim-jkt", ExternalID: "P-1004", Name: "Denim Jacket", Barcode: "8901004"},
		{ID: "prod-silk-dup", ExternalID: "P-1005", Name: "Silk Dupatta", Barcode: "8901005"},
	}

	type seedUnit struct {
		product int
		cost    string
		selling string
		offer   string
		count   int
	}
	seeds := []seedUnit{
		{product: 0, cost: "1450", selling: "2450", offer: "", count: 4},
		{product: 0, cost: "1450", selling: "2450", offer: "1999", count: 2},
		{product: 1, cost: "3200", selling: "5490", offer: "", count: 3},
		{product: 2, cost: "2100", selling: "3990", offer: "3490", count: 3},
		{product: 3, cost: "2900", selling: "5250", offer: "", count: 2},
		{product: 4, cost: "650", selling: "1290", offer: "990", count: 5},
	}

	units := make(map[string]domain.StockUnit)
	serial := 0
	for _, seed := range seeds {
		p := products[seed.product]
		for i := 0; i < seed.count; i++ {
			serial++
			id := xid.New("unit")
			unit := domain.StockUnit{
				ID:           id,
				ExternalID:   fmt.Sprintf("%s-U%04d", p.ExternalID, serial),
				CostPrice:    dec(seed.cost),
				SellingPrice: dec(seed.selling),
				Status:       domain.UnitStatusAvailable,
				Product:      &p,
			}
			if seed.offer != "" {
				unit.OfferPrice = decimal.NewNullDecimal(dec(seed.offer))
			}
			units[id] = unit
		}
	}

	return &Store{
		unitsByID:       units,
		salesByExternal: make(map[string]domain.SaleRecord),
		taxRateByBranch: map[string]decimal.Decimal{
			"main-branch": dec("0.05"),
		},
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

func (s *Store) SearchStockUnits(_ context.Context, query string, status string) ([]domain.StockUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.StockUnit, 0, 32)
	for _, unit := range s.unitsByID {
		if status != "" && unit.Status != status {
			continue
		}
		if query != "" && !unitMatchesQuery(unit, query) {
			continue
		}
		result = append(result, cloneUnit(unit))
	}

	slices.SortFunc(result, func(a, b domain.StockUnit) int {
		if a.ExternalID == b.ExternalID {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.ExternalID, b.ExternalID)
	})
	return result, nil
}

func unitMatchesQuery(unit domain.StockUnit, query string) bool {
	if strings.Contains(strings.ToLower(unit.ExternalID), query) {
		return true
	}
	if unit.Product == nil {
		return false
	}
	return strings.Contains(strings.ToLower(unit.Product.Name), query) ||
		strings.Contains(strings.ToLower(unit.Product.Barcode), query)
}

func (s *Store) GetStockUnit(_ context.Context, id string) (*domain.StockUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, exists := s.unitsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUnit := cloneUnit(unit)
	return &copyUnit, nil
}

// ReserveStockUnit is the atomic available-to-reserved transition. A unit
// already reserved or sold stays untouched and the caller gets
// ErrUnitUnavailable, so one physical item can never sit on two open sales.
func (s *Store) ReserveStockUnit(_ context.Context, id string) (*domain.StockUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, exists := s.unitsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if unit.Status != domain.UnitStatusAvailable {
		return nil, store.ErrUnitUnavailable
	}
	unit.Status = domain.UnitStatusReserved
	s.unitsByID[id] = unit
	copyUnit := cloneUnit(unit)
	return &copyUnit, nil
}

func (s *Store) ReleaseStockUnits(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		unit, exists := s.unitsByID[id]
		if !exists {
			continue
		}
		if unit.Status != domain.UnitStatusReserved {
			continue
		}
		unit.Status = domain.UnitStatusAvailable
		s.unitsByID[id] = unit
	}
	return nil
}

func (s *Store) MarkUnitsSold(_ context.Context, externalIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byExternal := make(map[string]string, len(s.unitsByID))
	for id, unit := range s.unitsByID {
		byExternal[unit.ExternalID] = id
	}
	for _, externalID := range externalIDs {
		id, exists := byExternal[externalID]
		if !exists {
			return store.ErrNotFound
		}
		unit := s.unitsByID[id]
		unit.Status = domain.UnitStatusSold
		s.unitsByID[id] = unit
	}
	return nil
}

func (s *Store) SaveSale(_ context.Context, record domain.SaleRecord) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.InvoiceNumber == "" || len(record.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}
	if record.ExternalID == "" {
		record.ExternalID = xid.New("sale")
	}
	if record.SaleDate.IsZero() {
		record.SaleDate = time.Now().UTC()
	}

	s.salesByExternal[record.ExternalID] = cloneSale(record)
	saved := cloneSale(record)
	return &saved, nil
}

func (s *Store) GetSaleByExternalID(_ context.Context, externalID string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.salesByExternal[externalID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(record)
	return &copySale, nil
}

func (s *Store) VoidSale(_ context.Context, externalID string, reason string, at time.Time) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.salesByExternal[externalID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if record.PaymentStatus == domain.SaleStatusVoided {
		return nil, store.ErrInvalidSale
	}

	byExternal := make(map[string]string, len(s.unitsByID))
	for id, unit := range s.unitsByID {
		byExternal[unit.ExternalID] = id
	}
	for _, line := range record.Lines {
		if line.Synthetic {
			continue
		}
		for _, unitExternalID := range line.UnitExternalIDs {
			id, ok := byExternal[unitExternalID]
			if !ok {
				continue
			}
			unit := s.unitsByID[id]
			unit.Status = domain.UnitStatusAvailable
			s.unitsByID[id] = unit
		}
	}

	record.PaymentStatus = domain.SaleStatusVoided
	record.VoidReason = reason
	s.salesByExternal[externalID] = record

	copySale := cloneSale(record)
	return &copySale, nil
}

func (s *Store) BranchTaxRate(_ context.Context, branchID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate, exists := s.taxRateByBranch[branchID]
	if !exists {
		return decimal.Decimal{}, store.ErrNotFound
	}
	return rate, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneUnit(src domain.StockUnit) domain.StockUnit {
	dup := src
	dup.Linked = nil
	if src.Product != nil {
		product := *src.Product
		dup.Product = &product
	}
	return dup
}

func cloneSale(src domain.SaleRecord) domain.SaleRecord {
	dup := src
	lines := make([]domain.SaleLineRecord, len(src.Lines))
	copy(lines, src.Lines)
	for i := range lines {
		if len(src.Lines[i].UnitExternalIDs) > 0 {
			ids := make([]string, len(src.Lines[i].UnitExternalIDs))
			copy(ids, src.Lines[i].UnitExternalIDs)
			lines[i].UnitExternalIDs = ids
		}
	}
	dup.Lines = lines
	payments := make([]domain.Payment, len(src.Payments))
	copy(payments, src.Payments)
	dup.Payments = payments
	if src.Customer != nil {
		customer := *src.Customer
		dup.Customer = &customer
	}
	if src.ExchangeReturn != nil {
		ret := *src.ExchangeReturn
		retLines := make([]domain.ExchangeReturnLine, len(src.ExchangeReturn.Lines))
		copy(retLines, src.ExchangeReturn.Lines)
		ret.Lines = retLines
		dup.ExchangeReturn = &ret
	}
	return dup
}
