/*
handlers.go - HTTP API handlers for the card billing engine

PURPOSE:
  Exposes billing.Service via REST API. Handles HTTP request/response and
  JSON serialization; every rule lives in the billing package.

ENDPOINTS:
  Cards:
    GET    /api/cards                         List cards
    POST   /api/cards                         Register a card
    GET    /api/cards/{id}                    Card details
    PUT    /api/cards/{id}                    Edit a card
    DELETE /api/cards/{id}                    Delete a card and its invoices
    GET    /api/cards/{id}/usage              Limit, used, available, paid this month
    GET    /api/cards/{id}/invoices           Open invoices by due date
    GET    /api/cards/{id}/charges            Active charges
    GET    /api/cards/{id}/forecast?months=   Projected statements
    POST   /api/cards/{id}/charges            Record a purchase
    POST   /api/cards/{id}/reconcile          Recompute used from charges

  Invoices:
    GET    /api/invoices/{id}                           Invoice with charges
    POST   /api/invoices/{id}/pay                       Pay the whole period
    POST   /api/invoices/{id}/recompute                 Recompute the total
    POST   /api/invoices/{id}/charges/{chargeID}/pay    Pay one charge
    PUT    /api/invoices/{id}/charges/{chargeID}        Edit a charge
    DELETE /api/invoices/{id}/charges/{chargeID}        Delete a charge

  Ledger and audit:
    GET    /api/transactions?card_id=&limit=        Payment records
    GET    /api/transactions?card_id=&from=&to=     Payment records in a date range
    GET    /api/audit                               Drift report

  Obligations:
    POST   /api/obligations                   Merge and classify bills + invoices
    POST   /api/obligations/pay               Pay a fixed bill or an invoice

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Card, invoice or charge not found
  - 409: Invalid state (paid or empty invoice, retired charge, bill paid twice)
  - 422: Credit limit exceeded (only when enforcement is on)
  - 500: Persistence and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/generic"
)

const defaultTransactionLimit = 100

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *billing.Service
}

// NewHandler creates a new handler for the given service.
func NewHandler(service *billing.Service) *Handler {
	return &Handler{Service: service}
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// ListCards returns all cards in registration order.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards := h.Service.Cards()
	dtos := make([]CardDTO, len(cards))
	for i, c := range cards {
		dtos[i] = toCardDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCard returns a single card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.Service.Card(cardID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(card))
}

// CreateCard registers a card.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if !decode(w, r, &req) {
		return
	}

	card, err := h.Service.CreateCard(r.Context(), billing.CardInput{
		IssuerName: req.IssuerName,
		Limit:      req.Limit.Money,
		AnchorDay:  req.AnchorDay,
		BrandImage: req.BrandImage,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardDTO(card))
}

// UpdateCard edits a card's issuer, limit, anchor day or image.
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var req UpdateCardRequest
	if !decode(w, r, &req) {
		return
	}

	card, err := h.Service.EditCard(r.Context(), cardID(r), billing.CardEdit{
		IssuerName: req.IssuerName,
		Limit:      req.Limit.money(),
		AnchorDay:  req.AnchorDay,
		BrandImage: req.BrandImage,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(card))
}

// DeleteCard removes a card with its invoices and charges.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id := cardID(r)
	n, err := h.Service.DeleteCard(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteCardResponse{Deleted: string(id), InvoicesDeleted: n})
}

// GetUsage returns the card's limit utilization and what was paid on it
// this calendar month.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	id := cardID(r)
	usage, err := h.Service.Usage(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	paid, err := h.Service.PaidInPeriod(r.Context(), id, generic.MonthOf(h.Service.Today()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUsageDTO(usage, paid))
}

// ListCardInvoices returns the card's open invoices ordered by due date.
func (h *Handler) ListCardInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Service.InvoicesForCard(cardID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	today := h.Service.Today()
	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv, today)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListCardCharges returns every active charge on the card.
func (h *Handler) ListCardCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := h.Service.ChargesForCard(cardID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTOs(charges))
}

// GetForecast projects the card's upcoming statements.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	months := 0
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "months must be a positive integer", err)
			return
		}
		months = n
	}

	forecast, err := h.Service.Forecast(cardID(r), months)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]ForecastDTO, len(forecast))
	for i, f := range forecast {
		dtos[i] = ForecastDTO{DueDate: f.DueDate.String(), Amount: f.Amount.String(), Charges: f.Charges}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCharge records a purchase and attaches it to its billing period.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if !decode(w, r, &req) {
		return
	}

	in := billing.ChargeInput{
		TotalValue:   req.TotalValue.Money,
		Installments: req.Installments,
		Category:     req.Category,
		Description:  req.Description,
	}
	if req.PurchaseDate != "" {
		date, err := generic.ParseTimePoint(req.PurchaseDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid purchase_date format (use YYYY-MM-DD)", err)
			return
		}
		in.PurchaseDate = date
	}

	charge, inv, err := h.Service.CreateCharge(r.Context(), cardID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateChargeResponse{
		Charge:  toChargeDTO(charge),
		Invoice: toInvoiceDTO(inv, h.Service.Today()),
	})
}

// ReconcileCard resets the card's used amount to the sum of remaining values.
func (h *Handler) ReconcileCard(w http.ResponseWriter, r *http.Request) {
	drift, err := h.Service.RepairCard(r.Context(), cardID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDriftDTO(drift))
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GetInvoice returns an invoice with its charges.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Service.Invoice(invoiceID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, h.Service.Today()))
}

// PayInvoice settles the billing period.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.PayInvoice(r.Context(), invoiceID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(res, h.Service.Today()))
}

// RecomputeTotal recomputes the invoice total from its charges.
func (h *Handler) RecomputeTotal(w http.ResponseWriter, r *http.Request) {
	id := invoiceID(r)
	total, err := h.Service.RecomputeInvoiceTotal(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecomputeTotalResponse{InvoiceID: string(id), Total: total.String()})
}

// PayCharge pays one installment of one charge. An empty body pays the
// installment value.
func (h *Handler) PayCharge(w http.ResponseWriter, r *http.Request) {
	var req PayChargeRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	res, err := h.Service.PayCharge(r.Context(), invoiceID(r), chargeID(r), req.Amount.money())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(res, h.Service.Today()))
}

// EditCharge edits a charge. ?reconcile=true keeps the card's used amount
// consistent with the new installment value.
func (h *Handler) EditCharge(w http.ResponseWriter, r *http.Request) {
	var req EditChargeRequest
	if !decode(w, r, &req) {
		return
	}

	reconcile := false
	if v := r.URL.Query().Get("reconcile"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reconcile flag", err)
			return
		}
		reconcile = b
	}

	charge, err := h.Service.EditCharge(r.Context(), invoiceID(r), chargeID(r), billing.ChargeEdit{
		Category:         req.Category,
		Description:      req.Description,
		InstallmentValue: req.InstallmentValue.money(),
	}, reconcile)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(charge))
}

// DeleteCharge removes a charge and releases its remaining value.
func (h *Handler) DeleteCharge(w http.ResponseWriter, r *http.Request) {
	removal, err := h.Service.DeleteCharge(r.Context(), invoiceID(r), chargeID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChargeRemovalDTO{
		Charge:         toChargeDTO(removal.Charge),
		Released:       removal.Released.String(),
		InvoiceRetired: removal.InvoiceRetired,
	})
}

// =============================================================================
// LEDGER AND AUDIT
// =============================================================================

// ListTransactions returns payment records for a card, or the newest
// records across cards when card_id is absent. from and to (YYYY-MM-DD,
// both inclusive) narrow a card's records to a date range.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		h.listTransactionsInRange(w, r)
		return
	}

	limit := defaultTransactionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	id := generic.CardID(r.URL.Query().Get("card_id"))
	if id != "" {
		if _, err := h.Service.Card(id); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	txs, err := h.Service.Transactions(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) listTransactionsInRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := generic.CardID(q.Get("card_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "card_id is required with from and to", nil)
		return
	}
	from, err := generic.ParseTimePoint(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date", err)
		return
	}
	to, err := generic.ParseTimePoint(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return
	}

	txs, err := h.Service.TransactionsInPeriod(r.Context(), id, generic.Period{Start: from, End: to})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAudit lists cards whose used amount drifted from their charges.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	drifts := h.Service.Audit()
	resp := AuditResponse{Drifts: make([]DriftDTO, len(drifts))}
	for i, d := range drifts {
		resp.Drifts[i] = toDriftDTO(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

// ListObligations merges the posted fixed bills with every card invoice and
// classifies each against today.
func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	var req ObligationsRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	bills := make([]billing.FixedBill, len(req.Bills))
	for i, b := range req.Bills {
		bill, err := b.toFixedBill()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		bills[i] = bill
	}

	today := h.Service.Today()
	obligations := h.Service.Obligations(bills)
	dtos := make([]ObligationDTO, len(obligations))
	for i, o := range obligations {
		dtos[i] = ObligationDTO{
			Kind:    string(o.Kind()),
			Ref:     o.Ref(),
			Label:   o.Label(),
			DueDate: o.Due().String(),
			Amount:  o.AmountDue().String(),
			Paid:    o.IsPaid(),
			Status:  string(billing.Classify(o, today)),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PayObligation pays a fixed bill or a card invoice.
func (h *Handler) PayObligation(w http.ResponseWriter, r *http.Request) {
	var req PayObligationRequest
	if !decode(w, r, &req) {
		return
	}

	var o billing.Obligation
	switch billing.ObligationKind(req.Kind) {
	case billing.KindFixedBill:
		if req.Bill == nil {
			writeError(w, http.StatusBadRequest, "bill is required for fixed_bill", nil)
			return
		}
		bill, err := req.Bill.toFixedBill()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		o = bill
	case billing.KindCardInvoice:
		inv, err := h.Service.Invoice(generic.InvoiceID(req.InvoiceID))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		o = billing.CardInvoice{Invoice: inv}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown obligation kind %q", req.Kind), nil)
		return
	}

	tx, err := h.Service.PayObligation(r.Context(), o)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// =============================================================================
// HELPERS
// =============================================================================

func cardID(r *http.Request) generic.CardID {
	return generic.CardID(chi.URLParam(r, "id"))
}

func invoiceID(r *http.Request) generic.InvoiceID {
	return generic.InvoiceID(chi.URLParam(r, "id"))
}

func chargeID(r *http.Request) generic.ChargeID {
	return generic.ChargeID(chi.URLParam(r, "chargeID"))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints where the body may be empty. An
// empty body, chunked or not, leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps billing errors to HTTP statuses. NotFound is
// checked first because it also unwraps to ErrValidation.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, "Credit limit exceeded", err)
	case generic.IsInvalidState(err):
		writeError(w, http.StatusConflict, "Operation not allowed in current state", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
