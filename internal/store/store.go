package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnitUnavailable = errors.New("stock unit unavailable")
	ErrInvalidSale     = errors.New("invalid sale")
)

// Repository is the catalog/persistence collaborator contract. The
// pricing engine treats returned unit prices as already correct and
// never re-derives them; the repository owns atomic status transitions
// so a unit can never sit on two open sales at once.
type Repository interface {
	SearchStockUnits(ctx context.Context, query string, status string) ([]domain.StockUnit, error)
	GetStockUnit(ctx context.Context, id string) (*domain.StockUnit, error)
	ReserveStockUnit(ctx context.Context, id string) (*domain.StockUnit, error)
	ReleaseStockUnits(ctx context.Context, ids []string) error
	MarkUnitsSold(ctx context.Context, externalIDs []string) error

	SaveSale(ctx context.Context, record domain.SaleRecord) (*domain.SaleRecord, error)
	GetSaleByExternalID(ctx context.Context, externalID string) (*domain.SaleRecord, error)
	VoidSale(ctx context.Context, externalID string, reason string, at time.Time) (*domain.SaleRecord, error)

	BranchTaxRate(ctx context.Context, branchID string) (decimal.Decimal, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
