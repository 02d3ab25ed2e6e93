package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/pricing"
	"github.com/eharain/Rutba-POS-sub002/internal/sale"
	"github.com/eharain/Rutba-POS-sub002/internal/session"
	"github.com/eharain/Rutba-POS-sub002/internal/store"
	"github.com/eharain/Rutba-POS-sub002/internal/xid"
)

var ErrManagerPINRejected = errors.New("manager pin rejected")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Config struct {
	BranchID       string
	BranchCode     string
	DeskCode       string
	DefaultTaxRate decimal.Decimal
	ManagerPINHash []byte
}

// Service orchestrates the sale engine against the catalog repository and
// the session layer. The engine owns all price math; the service owns
// unit reservation, persistence, and session lifecycle.
type Service struct {
	repo     store.Repository
	sessions *session.Manager
	parked   session.ParkedSaleStore
	cfg      Config
}

func New(repo store.Repository, sessions *session.Manager, parked session.ParkedSaleStore, cfg Config) *Service {
	if cfg.BranchID == "" {
		cfg.BranchID = "main-branch"
	}
	if cfg.BranchCode == "" {
		cfg.BranchCode = "MAIN"
	}
	if cfg.DeskCode == "" {
		cfg.DeskCode = "01"
	}

	return &Service{
		repo:     repo,
		sessions: sessions,
		parked:   parked,
		cfg:      cfg,
	}
}

// policy resolves the branch tax rate, falling back to the configured
// default when the branch has no row of its own.
func (s *Service) policy(ctx context.Context) pricing.Policy {
	rate, err := s.repo.BranchTaxRate(ctx, s.cfg.BranchID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: branch tax rate lookup failed branch=%s: %v", s.cfg.BranchID, err)
		}
		rate = s.cfg.DefaultTaxRate
	}
	return pricing.Policy{TaxRate: rate}
}

func (s *Service) StartSale(ctx context.Context, req domain.StartSaleRequest) (*session.Session, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: req.CashierID, DeskID: s.cfg.DeskCode}
	}
	if actor.Username == "" {
		actor.Username = req.CashierID
	}

	invoice, err := sale.NewInvoiceNumber(sale.InvoiceContext{
		BranchCode: s.cfg.BranchCode,
		DeskCode:   s.cfg.DeskCode,
		UserID:     actor.Username,
	})
	if err != nil {
		return nil, err
	}

	order := sale.NewOrder(s.policy(ctx))
	order.InvoiceNumber = invoice
	order.ExternalID = req.ExternalID
	order.Customer = req.Customer

	sess := s.sessions.Create(s.cfg.BranchID, s.cfg.DeskCode, actor.Username, order)
	s.logAudit(ctx, "sale_start", "sale", order.ID, "invoice="+invoice)
	return sess, nil
}

func (s *Service) SearchCatalog(ctx context.Context, query string, status string) ([]domain.StockUnit, error) {
	return s.repo.SearchStockUnits(ctx, query, status)
}

// AddStockItem reserves the unit before touching the session, so a unit
// can never be on two open sales. When the session update loses a
// version race the reservation is rolled back.
func (s *Service) AddStockItem(ctx context.Context, sessionID string, version int64, unitID string) (*session.Session, error) {
	unit, err := s.repo.ReserveStockUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		sess.Order.AddStockUnit(unit)
		return nil
	})
	if err != nil {
		if releaseErr := s.repo.ReleaseStockUnits(ctx, []string{unit.ID}); releaseErr != nil {
			log.Printf("[service] WARN: failed to release unit %s after rejected update: %v", unit.ID, releaseErr)
		}
		return nil, err
	}
	return sess, nil
}

func (s *Service) AddNonStockItem(_ context.Context, sessionID string, version int64, text string) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		sess.Order.AddNonStockItem(text)
		return nil
	})
}

// SetLineQuantity is an engine-only edit: detached units park on the
// line's reserve pool and regrowing pulls from that pool, never from the
// catalog.
func (s *Service) SetLineQuantity(_ context.Context, sessionID string, version int64, lineIndex int, quantity int) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		line, err := sess.Order.LineItem(lineIndex)
		if err != nil {
			return err
		}
		line.SetQuantity(quantity)
		return nil
	})
}

func (s *Service) SetLineDiscount(_ context.Context, sessionID string, version int64, lineIndex int, percent float64) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		line, err := sess.Order.LineItem(lineIndex)
		if err != nil {
			return err
		}
		line.SetDiscountPercent(percent)
		return nil
	})
}

func (s *Service) ApplyOffer(_ context.Context, sessionID string, version int64, lineIndex int) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		line, err := sess.Order.LineItem(lineIndex)
		if err != nil {
			return err
		}
		line.ApplyOfferPrice()
		return nil
	})
}

func (s *Service) RevertOffer(_ context.Context, sessionID string, version int64, lineIndex int) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		line, err := sess.Order.LineItem(lineIndex)
		if err != nil {
			return err
		}
		line.RevertOffer()
		return nil
	})
}

// RemoveLine drops the line and returns every catalog unit it held,
// active and reserve pool alike, back to available stock.
func (s *Service) RemoveLine(ctx context.Context, sessionID string, version int64, lineIndex int) (*session.Session, error) {
	var releaseIDs []string
	sess, err := s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		removed, err := sess.Order.RemoveLineItem(lineIndex)
		if err != nil {
			return err
		}
		if removed.Synthetic() {
			return nil
		}
		for _, unit := range removed.AllUnits() {
			releaseIDs = append(releaseIDs, unit.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(releaseIDs) > 0 {
		if err := s.repo.ReleaseStockUnits(ctx, releaseIDs); err != nil {
			log.Printf("[service] WARN: failed to release %d units from removed line: %v", len(releaseIDs), err)
		}
	}
	return sess, nil
}

func (s *Service) SetCustomer(_ context.Context, sessionID string, version int64, customer *domain.Customer) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		sess.Order.Customer = customer
		return nil
	})
}

// AttachExchangeReturn stages the return on the order and credits its
// value as an exchange_return payment, so the remaining balance already
// reflects the returned goods.
func (s *Service) AttachExchangeReturn(_ context.Context, sessionID string, version int64, req domain.ExchangeReturnRequest) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		sess.Order.SetExchangeReturn(&domain.ExchangeReturn{
			OriginalSaleRef: req.OriginalSaleRef,
			ReturnNumber:    req.ReturnNumber,
			Lines:           req.Lines,
		})
		credit := sess.Order.ExchangeReturnTotal()
		if credit.IsPositive() {
			sess.Order.AddPayment(domain.Payment{
				ExternalID: uuid.NewString(),
				Method:     domain.PaymentMethodExchangeReturn,
				Amount:     credit,
			})
		}
		return nil
	})
}

func (s *Service) AddPayment(_ context.Context, sessionID string, version int64, req domain.AddPaymentRequest) (*session.Session, error) {
	return s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		payment := domain.Payment{
			ExternalID: uuid.NewString(),
			Method:     req.Method,
			Amount:     pricing.AmountFromFloat(req.Amount),
		}
		if req.CashReceived > 0 {
			received := pricing.AmountFromFloat(req.CashReceived)
			payment.CashReceived = decimal.NewNullDecimal(received)
			remaining := sess.Order.Total().Sub(sess.Order.PaymentsTotal())
			if change := received.Sub(remaining); change.IsPositive() {
				payment.Change = decimal.NewNullDecimal(change)
			}
		}
		sess.Order.AddPayment(payment)
		return nil
	})
}

// CompleteSale persists a fully paid order: assigned units become sold,
// reserve-pool leftovers go back to available, and the session is
// discarded once the record is saved.
func (s *Service) CompleteSale(ctx context.Context, sessionID string, version int64) (*domain.SaleRecord, error) {
	var saved *domain.SaleRecord
	sess, err := s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		order := sess.Order
		if order.PaymentStatus() != domain.PaymentStatusPaid {
			return fmt.Errorf("%w: sale is not fully paid", store.ErrInvalidSale)
		}

		var soldExternalIDs []string
		var releaseIDs []string
		for _, line := range order.LineItems() {
			if line.Synthetic() {
				continue
			}
			for _, unit := range line.Units() {
				soldExternalIDs = append(soldExternalIDs, unit.ExternalID)
			}
			for _, unit := range line.ReserveUnits() {
				releaseIDs = append(releaseIDs, unit.ID)
			}
		}

		if err := s.repo.MarkUnitsSold(ctx, soldExternalIDs); err != nil {
			return err
		}
		if len(releaseIDs) > 0 {
			if err := s.repo.ReleaseStockUnits(ctx, releaseIDs); err != nil {
				log.Printf("[service] WARN: failed to release reserve units on complete: %v", err)
			}
		}

		record, err := s.repo.SaveSale(ctx, order.Record())
		if err != nil {
			return err
		}
		order.ExternalID = record.ExternalID
		saved = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sessions.Remove(sess.ID)
	s.logAudit(ctx, "sale_complete", "sale", saved.ExternalID, fmt.Sprintf("invoice=%s,total=%s", saved.InvoiceNumber, saved.Total))
	return saved, nil
}

// VoidSale reverses a persisted sale. The caller must present the manager
// PIN; the engine never voids on its own.
func (s *Service) VoidSale(ctx context.Context, req domain.VoidSaleRequest) (*domain.SaleRecord, error) {
	if len(s.cfg.ManagerPINHash) == 0 {
		return nil, ErrManagerPINRejected
	}
	if err := bcrypt.CompareHashAndPassword(s.cfg.ManagerPINHash, []byte(req.ManagerPIN)); err != nil {
		return nil, ErrManagerPINRejected
	}

	voided, err := s.repo.VoidSale(ctx, req.SaleExternalID, req.Reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale_void", "sale", req.SaleExternalID, "reason="+req.Reason)
	return voided, nil
}

// ParkSale snapshots the session's order, stores the draft, and discards
// the session. Reserved units stay reserved while the sale is parked.
func (s *Service) ParkSale(ctx context.Context, sessionID string, version int64, note string) (*session.ParkedSale, error) {
	var parked session.ParkedSale
	sess, err := s.sessions.Update(sessionID, version, func(sess *session.Session) error {
		parked = session.ParkedSale{
			ID:       xid.New("park"),
			BranchID: sess.BranchID,
			DeskID:   sess.DeskID,
			Owner:    sess.Owner,
			Note:     note,
			Draft:    sess.Order.Snapshot(),
			ParkedAt: time.Now().UTC(),
		}
		return s.parked.Put(ctx, parked)
	})
	if err != nil {
		return nil, err
	}

	s.sessions.Remove(sess.ID)
	s.logAudit(ctx, "sale_park", "sale", parked.Draft.ID, "note="+note)
	return &parked, nil
}

func (s *Service) ListParkedSales(ctx context.Context) ([]domain.ParkedSaleSummary, error) {
	parked, err := s.parked.List(ctx, s.cfg.BranchID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ParkedSaleSummary, 0, len(parked))
	for _, p := range parked {
		result = append(result, domain.ParkedSaleSummary{
			ID:        p.ID,
			Note:      p.Note,
			Owner:     p.Owner,
			LineCount: len(p.Draft.Lines),
			ParkedAt:  p.ParkedAt,
		})
	}
	return result, nil
}

// ResumeSale rebuilds the order from its parked draft in a fresh session.
// Unit identities and offer state come back exactly as parked.
func (s *Service) ResumeSale(ctx context.Context, req domain.ResumeSaleRequest) (*session.Session, error) {
	parked, ok, err := s.parked.Get(ctx, s.cfg.BranchID, req.ParkedID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}

	owner := req.CashierID
	if owner == "" {
		owner = parked.Owner
	}

	order := sale.Restore(parked.Draft)
	sess := s.sessions.Create(s.cfg.BranchID, s.cfg.DeskCode, owner, order)

	if err := s.parked.Delete(ctx, s.cfg.BranchID, req.ParkedID); err != nil {
		log.Printf("[service] WARN: failed to delete parked sale %s after resume: %v", req.ParkedID, err)
	}
	s.logAudit(ctx, "sale_resume", "sale", order.ID, "parked_id="+req.ParkedID)
	return sess, nil
}

// DiscardParkedSale drops a parked draft and returns its catalog units to
// available stock.
func (s *Service) DiscardParkedSale(ctx context.Context, parkedID string) error {
	parked, ok, err := s.parked.Get(ctx, s.cfg.BranchID, parkedID)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}

	var releaseIDs []string
	for _, line := range parked.Draft.Lines {
		if line.Synthetic {
			continue
		}
		for _, unit := range line.Units {
			releaseIDs = append(releaseIDs, unit.ID)
		}
		for _, unit := range line.Reserve {
			releaseIDs = append(releaseIDs, unit.ID)
		}
	}
	if len(releaseIDs) > 0 {
		if err := s.repo.ReleaseStockUnits(ctx, releaseIDs); err != nil {
			return err
		}
	}

	if err := s.parked.Delete(ctx, s.cfg.BranchID, parkedID); err != nil {
		return err
	}
	s.logAudit(ctx, "sale_discard_parked", "sale", parkedID, "")
	return nil
}

func (s *Service) GetSession(_ context.Context, sessionID string) (*session.Session, error) {
	return s.sessions.Get(sessionID)
}

func (s *Service) GetSale(ctx context.Context, externalID string) (*domain.SaleRecord, error) {
	return s.repo.GetSaleByExternalID(ctx, externalID)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, s.cfg.BranchID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		BranchID:   s.cfg.BranchID,
		ActorName:  actor.Username,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
