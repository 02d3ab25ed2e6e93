package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/store"
	"github.com/eharain/Rutba-POS-sub002/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables the store needs when they are missing.
// Prices are NUMERIC so decimal values round-trip without float drift;
// sale line items, payments and exchange returns are stored as JSONB
// because the engine is their source of truth.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stock_units (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			product_id TEXT,
			product_external_id TEXT,
			product_name TEXT,
			product_barcode TEXT,
			cost_price NUMERIC(12,2) NOT NULL,
			selling_price NUMERIC(12,2) NOT NULL,
			offer_price NUMERIC(12,2),
			status TEXT NOT NULL DEFAULT 'available',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_units_status ON stock_units (status)`,
		`CREATE TABLE IF NOT EXISTS sales (
			external_id TEXT PRIMARY KEY,
			invoice_number TEXT NOT NULL UNIQUE,
			sale_date TIMESTAMPTZ NOT NULL,
			payment_status TEXT NOT NULL,
			customer JSONB,
			line_items JSONB NOT NULL,
			payments JSONB NOT NULL,
			exchange_return JSONB,
			subtotal NUMERIC(12,2) NOT NULL,
			discount_total NUMERIC(12,2) NOT NULL,
			tax NUMERIC(12,2) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			void_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS branch_tax_rates (
			branch_id TEXT PRIMARY KEY,
			tax_rate NUMERIC(6,4) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			branch_id TEXT NOT NULL,
			actor_name TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_branch_created ON audit_logs (branch_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const unitColumns = `id, external_id, product_id, product_external_id, product_name, product_barcode,
	cost_price, selling_price, offer_price, status`

func (s *Store) SearchStockUnits(ctx context.Context, query string, status string) ([]domain.StockUnit, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unitColumns+`
		FROM stock_units
		WHERE ($1 = '%%' OR external_id ILIKE $1 OR product_name ILIKE $1 OR product_barcode ILIKE $1)
			AND ($2 = '' OR status = $2)
		ORDER BY external_id
		LIMIT 200
	`, pattern, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.StockUnit, 0, 32)
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (domain.StockUnit, error) {
	var unit domain.StockUnit
	var productID, productExternalID, productName, productBarcode sql.NullString
	err := row.Scan(
		&unit.ID, &unit.ExternalID, &productID, &productExternalID, &productName, &productBarcode,
		&unit.CostPrice, &unit.SellingPrice, &unit.OfferPrice, &unit.Status,
	)
	if err != nil {
		return domain.StockUnit{}, err
	}
	if productID.Valid && productID.String != "" {
		unit.Product = &domain.ProductRef{
			ID:         productID.String,
			ExternalID: productExternalID.String,
			Name:       productName.String,
			Barcode:    productBarcode.String,
		}
	}
	return unit, nil
}

func (s *Store) GetStockUnit(ctx context.Context, id string) (*domain.StockUnit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+unitColumns+`
		FROM stock_units
		WHERE id = $1
	`, id)
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// ReserveStockUnit flips an available unit to reserved in one statement.
// The WHERE clause carries the status guard, so two desks racing for the
// same unit resolve inside postgres and the loser gets ErrUnitUnavailable.
func (s *Store) ReserveStockUnit(ctx context.Context, id string) (*domain.StockUnit, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_units
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+unitColumns+`
	`, id, domain.UnitStatusReserved, domain.UnitStatusAvailable)
	unit, err := scanUnit(row)
	if err == nil {
		return &unit, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stock_units WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrUnitUnavailable
}

func (s *Store) ReleaseStockUnits(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE stock_units
		SET status = $2, updated_at = now()
		WHERE id = ANY($1) AND status = $3
	`, ids, domain.UnitStatusAvailable, domain.UnitStatusReserved)
	return err
}

func (s *Store) MarkUnitsSold(ctx context.Context, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_units
		SET status = $2, updated_at = now()
		WHERE external_id = ANY($1)
	`, externalIDs, domain.UnitStatusSold)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != int64(len(externalIDs)) {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveSale(ctx context.Context, record domain.SaleRecord) (*domain.SaleRecord, error) {
	if record.InvoiceNumber == "" || len(record.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}
	if record.ExternalID == "" {
		record.ExternalID = xid.New("sale")
	}
	if record.SaleDate.IsZero() {
		record.SaleDate = time.Now().UTC()
	}

	linesJSON, err := json.Marshal(record.Lines)
	if err != nil {
		return nil, err
	}
	paymentsJSON, err := json.Marshal(record.Payments)
	if err != nil {
		return nil, err
	}
	var customerJSON, returnJSON any
	if record.Customer != nil {
		raw, err := json.Marshal(record.Customer)
		if err != nil {
			return nil, err
		}
		customerJSON = raw
	}
	if record.ExchangeReturn != nil {
		raw, err := json.Marshal(record.ExchangeReturn)
		if err != nil {
			return nil, err
		}
		returnJSON = raw
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (
			external_id, invoice_number, sale_date, payment_status, customer,
			line_items, payments, exchange_return, subtotal, discount_total, tax, total, void_reason
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (external_id)
		DO UPDATE SET
			payment_status = EXCLUDED.payment_status,
			customer = EXCLUDED.customer,
			line_items = EXCLUDED.line_items,
			payments = EXCLUDED.payments,
			exchange_return = EXCLUDED.exchange_return,
			subtotal = EXCLUDED.subtotal,
			discount_total = EXCLUDED.discount_total,
			tax = EXCLUDED.tax,
			total = EXCLUDED.total,
			void_reason = EXCLUDED.void_reason,
			updated_at = now()
	`, record.ExternalID, record.InvoiceNumber, record.SaleDate, record.PaymentStatus, customerJSON,
		linesJSON, paymentsJSON, returnJSON, record.Subtotal, record.DiscountTotal, record.Tax, record.Total, record.VoidReason)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	saved := record
	return &saved, nil
}

func (s *Store) GetSaleByExternalID(ctx context.Context, externalID string) (*domain.SaleRecord, error) {
	return getSale(ctx, s.db, externalID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSale(ctx context.Context, q querier, externalID string) (*domain.SaleRecord, error) {
	var record domain.SaleRecord
	var customerRaw, returnRaw []byte
	var linesRaw, paymentsRaw []byte
	err := q.QueryRowContext(ctx, `
		SELECT external_id, invoice_number, sale_date, payment_status, customer,
			line_items, payments, exchange_return, subtotal, discount_total, tax, total, void_reason
		FROM sales
		WHERE external_id = $1
	`, externalID).Scan(
		&record.ExternalID, &record.InvoiceNumber, &record.SaleDate, &record.PaymentStatus, &customerRaw,
		&linesRaw, &paymentsRaw, &returnRaw, &record.Subtotal, &record.DiscountTotal, &record.Tax, &record.Total, &record.VoidReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	record.SaleDate = record.SaleDate.UTC()
	if err := json.Unmarshal(linesRaw, &record.Lines); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(paymentsRaw, &record.Payments); err != nil {
		return nil, err
	}
	if len(customerRaw) > 0 {
		record.Customer = &domain.Customer{}
		if err := json.Unmarshal(customerRaw, record.Customer); err != nil {
			return nil, err
		}
	}
	if len(returnRaw) > 0 {
		record.ExchangeReturn = &domain.ExchangeReturn{}
		if err := json.Unmarshal(returnRaw, record.ExchangeReturn); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

func (s *Store) VoidSale(ctx context.Context, externalID string, reason string, at time.Time) (*domain.SaleRecord, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	record, err := getSale(ctx, pgTx, externalID)
	if err != nil {
		return nil, err
	}
	if record.PaymentStatus == domain.SaleStatusVoided {
		return nil, store.ErrInvalidSale
	}

	unitExternalIDs := make([]string, 0, 8)
	for _, line := range record.Lines {
		if line.Synthetic {
			continue
		}
		unitExternalIDs = append(unitExternalIDs, line.UnitExternalIDs...)
	}
	if len(unitExternalIDs) > 0 {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE stock_units
			SET status = $2, updated_at = now()
			WHERE external_id = ANY($1)
		`, unitExternalIDs, domain.UnitStatusAvailable)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET payment_status = $2, void_reason = $3, updated_at = $4
		WHERE external_id = $1
	`, externalID, domain.SaleStatusVoided, reason, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	record.PaymentStatus = domain.SaleStatusVoided
	record.VoidReason = reason
	return record, nil
}

func (s *Store) BranchTaxRate(ctx context.Context, branchID string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT tax_rate FROM branch_tax_rates WHERE branch_id = $1
	`, branchID).Scan(&rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, store.ErrNotFound
		}
		return decimal.Decimal{}, err
	}
	return rate, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_name, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.BranchID, entry.ActorName, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_name, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1)
			AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorName, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
