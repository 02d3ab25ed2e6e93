package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/sale"
	"github.com/eharain/Rutba-POS-sub002/internal/service"
	"github.com/eharain/Rutba-POS-sub002/internal/session"
	"github.com/eharain/Rutba-POS-sub002/internal/store"
)

// versionHeader carries the session version the desk last saw. Every
// mutation must present it; a stale value is rejected with 409.
const versionHeader = "X-Sale-Version"

type API struct {
	service       *service.Service
	tokens        *TokenManager
	allowedOrigin string
}

func New(svc *service.Service, tokens *TokenManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		tokens:        tokens,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/catalog/units", a.handleCatalogSearch)

	mux.HandleFunc("/api/v1/sales", a.handleStartSale)
	mux.HandleFunc("/api/v1/sales/current", a.requireSession(a.handleCurrentSale))
	mux.HandleFunc("/api/v1/sales/items", a.requireSession(a.handleAddStockItem))
	mux.HandleFunc("/api/v1/sales/items/freetext", a.requireSession(a.handleAddFreeTextItem))
	mux.HandleFunc("/api/v1/sales/items/quantity", a.requireSession(a.handleLineQuantity))
	mux.HandleFunc("/api/v1/sales/items/discount", a.requireSession(a.handleLineDiscount))
	mux.HandleFunc("/api/v1/sales/items/offer/apply", a.requireSession(a.handleApplyOffer))
	mux.HandleFunc("/api/v1/sales/items/offer/revert", a.requireSession(a.handleRevertOffer))
	mux.HandleFunc("/api/v1/sales/items/remove", a.requireSession(a.handleRemoveLine))
	mux.HandleFunc("/api/v1/sales/customer", a.requireSession(a.handleSetCustomer))
	mux.HandleFunc("/api/v1/sales/exchange-return", a.requireSession(a.handleExchangeReturn))
	mux.HandleFunc("/api/v1/sales/payments", a.requireSession(a.handleAddPayment))
	mux.HandleFunc("/api/v1/sales/complete", a.requireSession(a.handleCompleteSale))
	mux.HandleFunc("/api/v1/sales/park", a.requireSession(a.handleParkSale))

	mux.HandleFunc("/api/v1/sales/parked", a.handleListParked)
	mux.HandleFunc("/api/v1/sales/parked/discard", a.handleDiscardParked)
	mux.HandleFunc("/api/v1/sales/resume", a.handleResumeSale)
	mux.HandleFunc("/api/v1/sales/void", a.handleVoidSale)
	mux.HandleFunc("/api/v1/sales/record", a.handleGetSale)
	mux.HandleFunc("/api/v1/audit-logs", a.handleAuditLogs)

	return a.withMiddleware(mux)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+versionHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64)

func (a *API) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing session token"))
			return
		}

		ident, err := a.tokens.ParseSessionToken(authorization[len("Bearer "):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		var version int64
		if r.Method != http.MethodGet {
			version, err = strconv.ParseInt(strings.TrimSpace(r.Header.Get(versionHeader)), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, errors.New("missing or invalid "+versionHeader+" header"))
				return
			}
		}

		next(w, r.WithContext(service.WithActor(r.Context(), ident.Actor)), ident, version)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query().Get("q")
	status := r.URL.Query().Get("status")
	units, err := a.service.SearchCatalog(r.Context(), query, status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

func (a *API) handleStartSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.StartSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := service.WithActor(r.Context(), domain.Actor{Username: strings.TrimSpace(req.CashierID)})
	sess, err := a.service.StartSale(ctx, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	token, err := a.tokens.IssueSessionToken(sess.ID, sess.BranchID, sess.DeskID, sess.Owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(sess, token))
}

func (a *API) handleCurrentSale(w http.ResponseWriter, r *http.Request, ident sessionIdentity, _ int64) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	sess, err := a.service.GetSession(r.Context(), ident.SessionID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleAddStockItem(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.AddStockItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.AddStockItem(r.Context(), ident.SessionID, version, req.UnitID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleAddFreeTextItem(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.AddFreeTextItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.AddNonStockItem(r.Context(), ident.SessionID, version, req.Text)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleLineQuantity(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.LineQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.SetLineQuantity(r.Context(), ident.SessionID, version, req.LineIndex, req.Quantity)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleLineDiscount(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.LineDiscountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.SetLineDiscount(r.Context(), ident.SessionID, version, req.LineIndex, req.DiscountPercent)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleApplyOffer(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.LineIndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.ApplyOffer(r.Context(), ident.SessionID, version, req.LineIndex)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleRevertOffer(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.LineIndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.RevertOffer(r.Context(), ident.SessionID, version, req.LineIndex)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.LineIndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.RemoveLine(r.Context(), ident.SessionID, version, req.LineIndex)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleSetCustomer(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.Customer
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.SetCustomer(r.Context(), ident.SessionID, version, &req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleExchangeReturn(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ExchangeReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.AttachExchangeReturn(r.Context(), ident.SessionID, version, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleAddPayment(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.AddPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("payment amount must be positive"))
		return
	}

	sess, err := a.service.AddPayment(r.Context(), ident.SessionID, version, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, ""))
}

func (a *API) handleCompleteSale(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	record, err := a.service.CompleteSale(r.Context(), ident.SessionID, version)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": record})
}

func (a *API) handleParkSale(w http.ResponseWriter, r *http.Request, ident sessionIdentity, version int64) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ParkSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	parked, err := a.service.ParkSale(r.Context(), ident.SessionID, version, req.Note)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ParkedSaleSummary{
		ID:        parked.ID,
		Note:      parked.Note,
		Owner:     parked.Owner,
		LineCount: len(parked.Draft.Lines),
		ParkedAt:  parked.ParkedAt,
	})
}

func (a *API) handleListParked(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	parked, err := a.service.ListParkedSales(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parked": parked})
}

func (a *API) handleDiscardParked(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ParkedID string `json:"parked_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.service.DiscardParkedSale(r.Context(), req.ParkedID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (a *API) handleResumeSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ResumeSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := service.WithActor(r.Context(), domain.Actor{Username: strings.TrimSpace(req.CashierID)})
	sess, err := a.service.ResumeSale(ctx, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	token, err := a.tokens.IssueSessionToken(sess.ID, sess.BranchID, sess.DeskID, sess.Owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess, token))
}

func (a *API) handleVoidSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.VoidSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, errors.New("void reason is required"))
		return
	}

	voided, err := a.service.VoidSale(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.VoidSaleResponse{
		SaleExternalID: voided.ExternalID,
		Status:         voided.PaymentStatus,
		VoidedAt:       time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	externalID := strings.TrimSpace(r.URL.Query().Get("external_id"))
	if externalID == "" {
		writeError(w, http.StatusBadRequest, errors.New("external_id is required"))
		return
	}

	record, err := a.service.GetSale(r.Context(), externalID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": record})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	from, to := parseTimeRange(query.Get("from"), query.Get("to"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	logs, err := a.service.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func parseTimeRange(fromStr string, toStr string) (time.Time, time.Time) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now.Add(time.Minute)
	if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
		from = parsed.UTC()
	}
	if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
		to = parsed.UTC()
	}
	return from, to
}

func sessionResponse(sess *session.Session, token string) domain.SaleSessionResponse {
	return domain.SaleSessionResponse{
		SessionID:     sess.ID,
		SessionToken:  token,
		Version:       sess.Version,
		InvoiceNumber: sess.Order.InvoiceNumber,
		Sale:          sess.Order.State(),
	}
}

// statusFor maps domain errors onto HTTP statuses. Conflicts from the
// version check and from unit contention both surface as 409 so the desk
// refetches and retries.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrConflict), errors.Is(err, store.ErrUnitUnavailable):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrManagerPINRejected):
		return http.StatusForbidden
	case errors.Is(err, store.ErrInvalidSale),
		errors.Is(err, sale.ErrInvalidField),
		errors.Is(err, sale.ErrContextMissing),
		errors.Is(err, sale.ErrLineNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the server log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
