package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-finance/api"
	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/generic"
	"github.com/warp/household-finance/generic/store"
	"github.com/warp/household-finance/logging"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var today = generic.NewTimePoint(2025, time.March, 1)

type testServer struct {
	service *billing.Service
	repo    *billing.MemoryRepository
	router  http.Handler
}

func newTestServer(t *testing.T, opts billing.Options) *testServer {
	t.Helper()
	n := 0
	opts.Clock = generic.FixedClock{Day: today}
	opts.NewID = func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}

	repo := billing.NewMemoryRepository()
	service := billing.NewService(
		billing.NewEngine(opts),
		repo,
		generic.NewLedger(store.NewMemory()),
		nil,
		logging.Discard(),
	)
	return &testServer{
		service: service,
		repo:    repo,
		router:  api.NewRouter(api.NewHandler(service), nil),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createCard(t *testing.T, limit string, anchor int) api.CardDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/cards", map[string]any{
		"issuer_name": "Test Bank",
		"limit":       limit,
		"anchor_day":  anchor,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[api.CardDTO](t, rec)
}

func (s *testServer) createCharge(t *testing.T, cardID string, body map[string]any) api.CreateChargeResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/cards/"+cardID+"/charges", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[api.CreateChargeResponse](t, rec)
}

// =============================================================================
// CARDS
// =============================================================================

func TestCreateCard_AndList(t *testing.T) {
	// GIVEN: an empty service
	// WHEN: a card is created with a numeric limit
	// THEN: it is returned with zero usage and listed

	s := newTestServer(t, billing.Options{})
	rec := s.do(t, http.MethodPost, "/api/cards", `{"issuer_name":" Nubank ","limit":1500.5,"anchor_day":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	card := decodeAs[api.CardDTO](t, rec)
	assert.Equal(t, "Nubank", card.IssuerName)
	assert.Equal(t, "1500.50", card.Limit)
	assert.Equal(t, "0.00", card.Used)
	assert.Equal(t, "1500.50", card.Available)
	assert.Equal(t, "2025-03-01", card.CreatedAt)

	list := decodeAs[[]api.CardDTO](t, s.do(t, http.MethodGet, "/api/cards", nil))
	require.Len(t, list, 1)
	assert.Equal(t, card.ID, list[0].ID)
	assert.Equal(t, 1, s.repo.Saves())
}

func TestCreateCard_Validation(t *testing.T) {
	s := newTestServer(t, billing.Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"bad amount", `{"issuer_name":"A","limit":"ten","anchor_day":5}`, http.StatusBadRequest},
		{"anchor too large", `{"issuer_name":"A","limit":"100","anchor_day":29}`, http.StatusBadRequest},
		{"empty issuer", `{"issuer_name":"","limit":"100","anchor_day":5}`, http.StatusBadRequest},
		{"zero limit", `{"issuer_name":"A","limit":"0","anchor_day":5}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/cards", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			resp := decodeAs[api.ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Equal(t, 0, s.repo.Saves())
}

func TestGetCard_NotFound(t *testing.T) {
	s := newTestServer(t, billing.Options{})

	for _, path := range []string{"/api/cards/missing", "/api/cards/missing/usage", "/api/cards/missing/invoices", "/api/invoices/missing"} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestUpdateCard_PartialEdit(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)

	rec := s.do(t, http.MethodPut, "/api/cards/"+card.ID, `{"limit":"2000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeAs[api.CardDTO](t, rec)
	assert.Equal(t, "2000.00", got.Limit)
	assert.Equal(t, "Test Bank", got.IssuerName)
	assert.Equal(t, 10, got.AnchorDay)

	rec = s.do(t, http.MethodPut, "/api/cards/"+card.ID, `{"anchor_day":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCard_Cascades(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	s.createCharge(t, card.ID, map[string]any{"total_value": "100", "installments": 1, "purchase_date": "2025-03-01"})
	s.createCharge(t, card.ID, map[string]any{"total_value": "100", "installments": 1, "purchase_date": "2025-03-20"})

	rec := s.do(t, http.MethodDelete, "/api/cards/"+card.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAs[api.DeleteCardResponse](t, rec)
	assert.Equal(t, 2, resp.InvoicesDeleted)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/cards/"+card.ID, nil).Code)
}

// =============================================================================
// CHARGES AND PAYMENTS
// =============================================================================

func TestCreateCharge_AssignsPeriodAndUsage(t *testing.T) {
	// GIVEN: a card with anchor day 10
	// WHEN: a 3-installment purchase is made on March 1
	// THEN: it joins the invoice due March 10 and usage reflects the total

	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)

	resp := s.createCharge(t, card.ID, map[string]any{
		"total_value":  "100.00",
		"installments": 3,
		"category":     "groceries",
	})
	assert.Equal(t, "33.33", resp.Charge.InstallmentValue)
	assert.Equal(t, 1, resp.Charge.CurrentInstallment)
	assert.Equal(t, "100.00", resp.Charge.Remaining)
	assert.Equal(t, "2025-03-01", resp.Charge.PurchaseDate, "defaults to today")
	assert.Equal(t, "2025-03-10", resp.Invoice.DueDate)
	assert.Equal(t, "2025-02-10", resp.Invoice.WindowStart)
	assert.Equal(t, "2025-03-09", resp.Invoice.WindowEnd)
	assert.Equal(t, "33.33", resp.Invoice.Total)
	assert.Equal(t, string(billing.StatusUpcoming), resp.Invoice.Status)

	usage := decodeAs[api.UsageDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID+"/usage", nil))
	assert.Equal(t, "100.00", usage.Used)
	assert.Equal(t, "900.00", usage.Available)
	assert.Equal(t, "10.00", usage.PercentUsed)

	charges := decodeAs[[]api.ChargeDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID+"/charges", nil))
	require.Len(t, charges, 1)
	assert.Equal(t, "groceries", charges[0].Category)
}

func TestGetForecast(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	s.createCharge(t, card.ID, map[string]any{"total_value": "300", "installments": 3})

	rec := s.do(t, http.MethodGet, "/api/cards/"+card.ID+"/forecast?months=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAs[[]api.ForecastDTO](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-10", got[0].DueDate)
	assert.Equal(t, "100.00", got[0].Amount)
	assert.Equal(t, "2025-04-10", got[1].DueDate)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/cards/"+card.ID+"/forecast?months=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/cards/missing/forecast", nil).Code)
}

func TestCreateCharge_Errors(t *testing.T) {
	s := newTestServer(t, billing.Options{EnforceLimit: true})
	card := s.createCard(t, "100", 10)

	rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/charges", map[string]any{"total_value": "50", "installments": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/charges", map[string]any{"total_value": "50", "installments": 1, "purchase_date": "03/01/2025"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/charges", map[string]any{"total_value": "150", "installments": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/cards/missing/charges", map[string]any{"total_value": "10", "installments": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayInvoice_RollsOverThenRetires(t *testing.T) {
	// GIVEN: a 2-installment charge on the March invoice
	// WHEN: the invoice is paid twice
	// THEN: it first rolls to April, then retires

	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "200", "installments": 2})
	invID := created.Invoice.ID

	rec := s.do(t, http.MethodPost, "/api/invoices/"+invID+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeAs[api.PaymentDTO](t, rec)
	assert.Equal(t, string(billing.OutcomeRolledOver), first.Outcome)
	require.NotNil(t, first.Invoice)
	assert.Equal(t, "2025-04-10", first.Invoice.DueDate)
	assert.Equal(t, "100.00", first.Transaction.Amount)
	assert.Equal(t, string(generic.TxInvoicePayment), first.Transaction.Type)

	rec = s.do(t, http.MethodPost, "/api/invoices/"+invID+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeAs[api.PaymentDTO](t, rec)
	assert.Equal(t, string(billing.OutcomeRetired), second.Outcome)
	assert.Nil(t, second.Invoice)
	assert.Equal(t, []string{created.Charge.ID}, second.RetiredCharges)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/invoices/"+invID+"/pay", nil).Code)

	usage := decodeAs[api.UsageDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID+"/usage", nil))
	assert.Equal(t, "0.00", usage.Used)
	got := decodeAs[api.CardDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID, nil))
	assert.Equal(t, "0.00", got.RoundingResidue)

	txs := decodeAs[[]api.TransactionDTO](t, s.do(t, http.MethodGet, "/api/transactions?card_id="+card.ID, nil))
	assert.Len(t, txs, 2)
}

func TestPayCharge_WithAndWithoutAmount(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	a := s.createCharge(t, card.ID, map[string]any{"total_value": "300", "installments": 3})
	s.createCharge(t, card.ID, map[string]any{"total_value": "50", "installments": 1})
	invID := a.Invoice.ID

	path := fmt.Sprintf("/api/invoices/%s/charges/%s/pay", invID, a.Charge.ID)

	rec := s.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[api.PaymentDTO](t, rec)
	assert.Equal(t, string(billing.OutcomeOpen), res.Outcome)
	assert.Equal(t, "100.00", res.Transaction.Amount)
	assert.Equal(t, a.Charge.ID, res.Transaction.ChargeID)
	assert.Equal(t, "2025-03-10", res.Invoice.DueDate, "single charge payment keeps the due date")

	rec = s.do(t, http.MethodPost, path, map[string]any{"amount": "40"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "40.00", decodeAs[api.PaymentDTO](t, rec).Transaction.Amount)

	rec = s.do(t, http.MethodPost, path, map[string]any{"amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/invoices/%s/charges/missing/pay", invID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditCharge_ReconcileFlag(t *testing.T) {
	// GIVEN: a 300.00 charge in 3 installments
	// WHEN: the installment value is edited with and without ?reconcile
	// THEN: only the reconciled path moves the card's used amount

	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "300", "installments": 3})
	path := fmt.Sprintf("/api/invoices/%s/charges/%s", created.Invoice.ID, created.Charge.ID)

	rec := s.do(t, http.MethodPut, path, map[string]any{"installment_value": "110", "description": " TV "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeAs[api.ChargeDTO](t, rec)
	assert.Equal(t, "110.00", edited.InstallmentValue)
	assert.Equal(t, "300.00", edited.TotalValue)
	assert.Equal(t, "TV", edited.Description)
	assert.Equal(t, "300.00", decodeAs[api.CardDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID, nil)).Used)

	rec = s.do(t, http.MethodPut, path+"?reconcile=true", map[string]any{"installment_value": "120"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "360.00", decodeAs[api.ChargeDTO](t, rec).TotalValue)
	assert.Equal(t, "360.00", decodeAs[api.CardDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID, nil)).Used)

	inv := decodeAs[api.InvoiceDTO](t, s.do(t, http.MethodGet, "/api/invoices/"+created.Invoice.ID, nil))
	assert.Equal(t, "120.00", inv.Total)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, path+"?reconcile=maybe", map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, path, map[string]any{"installment_value": "0"}).Code)
}

func TestDeleteCharge_ReleasesAndRetires(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "90", "installments": 3})

	rec := s.do(t, http.MethodDelete, fmt.Sprintf("/api/invoices/%s/charges/%s", created.Invoice.ID, created.Charge.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	removal := decodeAs[api.ChargeRemovalDTO](t, rec)
	assert.Equal(t, "90.00", removal.Released)
	assert.True(t, removal.InvoiceRetired)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/invoices/"+created.Invoice.ID, nil).Code)
	assert.Equal(t, "0.00", decodeAs[api.CardDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID, nil)).Used)
}

func TestRecomputeTotal(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "130", "installments": 3})

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/invoices/"+created.Invoice.ID+"/recompute", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "43.33", decodeAs[api.RecomputeTotalResponse](t, rec).Total)
	}
}

// =============================================================================
// AUDIT, LEDGER, OBLIGATIONS
// =============================================================================

func TestAuditAndReconcile(t *testing.T) {
	// GIVEN: a charge paid with an amount below its installment value
	// WHEN: the audit runs
	// THEN: the card is reported until it is reconciled

	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "300", "installments": 3})
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/invoices/%s/charges/%s/pay", created.Invoice.ID, created.Charge.ID), map[string]any{"amount": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	audit := decodeAs[api.AuditResponse](t, s.do(t, http.MethodGet, "/api/audit", nil))
	require.Len(t, audit.Drifts, 1)
	assert.Equal(t, card.ID, audit.Drifts[0].CardID)
	assert.Equal(t, "250.00", audit.Drifts[0].Recorded)
	assert.Equal(t, "200.00", audit.Drifts[0].Expected)
	assert.Equal(t, "50.00", audit.Drifts[0].Difference)

	rec = s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	audit = decodeAs[api.AuditResponse](t, s.do(t, http.MethodGet, "/api/audit", nil))
	assert.Empty(t, audit.Drifts)
	assert.Equal(t, "200.00", decodeAs[api.CardDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID, nil)).Used)
}

func TestListTransactions(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "100", "installments": 2})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/invoices/"+created.Invoice.ID+"/pay", nil).Code)

	all := decodeAs[[]api.TransactionDTO](t, s.do(t, http.MethodGet, "/api/transactions", nil))
	require.Len(t, all, 1)
	assert.Equal(t, "50.00", all[0].Amount)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/transactions?limit=0", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/transactions?card_id=missing", nil).Code)
}

func TestListTransactions_DateRange(t *testing.T) {
	// GIVEN: one payment recorded on 2025-03-01
	// WHEN: the card's payments are listed by date range
	// THEN: only ranges containing that day return it

	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "100", "installments": 2})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/invoices/"+created.Invoice.ID+"/pay", nil).Code)

	base := "/api/transactions?card_id=" + card.ID
	rec := s.do(t, http.MethodGet, base+"&from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inMarch := decodeAs[[]api.TransactionDTO](t, rec)
	require.Len(t, inMarch, 1)
	assert.Equal(t, "50.00", inMarch[0].Amount)

	rec = s.do(t, http.MethodGet, base+"&from=2025-04-01&to=2025-04-30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[[]api.TransactionDTO](t, rec))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing card", "/api/transactions?from=2025-03-01&to=2025-03-31", http.StatusBadRequest},
		{"unknown card", "/api/transactions?card_id=missing&from=2025-03-01&to=2025-03-31", http.StatusNotFound},
		{"bad from", base + "&from=01/03/2025&to=2025-03-31", http.StatusBadRequest},
		{"missing to", base + "&from=2025-03-01", http.StatusBadRequest},
		{"inverted range", base + "&from=2025-03-31&to=2025-03-01", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, s.do(t, http.MethodGet, tt.path, nil).Code)
		})
	}
}

func TestGetUsage_PaidThisMonth(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "300", "installments": 3})

	usage := decodeAs[api.UsageDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID+"/usage", nil))
	assert.Equal(t, "0.00", usage.PaidThisMonth)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/invoices/"+created.Invoice.ID+"/pay", nil).Code)

	usage = decodeAs[api.UsageDTO](t, s.do(t, http.MethodGet, "/api/cards/"+card.ID+"/usage", nil))
	assert.Equal(t, "200.00", usage.Used)
	assert.Equal(t, "100.00", usage.PaidThisMonth)
}

func TestPayCharge_EmptyChunkedBody(t *testing.T) {
	// GIVEN: a request with no body sent with chunked transfer encoding
	// WHEN: a single charge is paid
	// THEN: the body counts as empty and the installment value is paid

	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "300", "installments": 3})

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/invoices/%s/charges/%s/pay", created.Invoice.ID, created.Charge.ID),
		bytes.NewReader(nil))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "100.00", decodeAs[api.PaymentDTO](t, rec).Transaction.Amount)

	req = httptest.NewRequest(http.MethodPost, "/api/obligations", bytes.NewReader(nil))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// malformed bodies are still rejected
	rec = s.do(t, http.MethodPost, "/api/obligations", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObligations_ClassifyAndPay(t *testing.T) {
	// GIVEN: an overdue rent bill and an upcoming card invoice
	// WHEN: obligations are listed and the rent is paid twice
	// THEN: they are sorted and classified; the second payment conflicts

	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "80", "installments": 1})

	rent := map[string]any{"id": "rent", "name": "Rent", "amount": "1500", "due_date": "2025-02-28"}
	rec := s.do(t, http.MethodPost, "/api/obligations", map[string]any{"bills": []any{rent}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decodeAs[[]api.ObligationDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "rent", list[0].Ref)
	assert.Equal(t, string(billing.StatusOverdue), list[0].Status)
	assert.Equal(t, created.Invoice.ID, list[1].Ref)
	assert.Equal(t, string(billing.KindCardInvoice), list[1].Kind)
	assert.Equal(t, string(billing.StatusUpcoming), list[1].Status)

	pay := map[string]any{"kind": "fixed_bill", "bill": rent}
	rec = s.do(t, http.MethodPost, "/api/obligations/pay", pay)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx := decodeAs[api.TransactionDTO](t, rec)
	assert.Equal(t, string(generic.TxFixedBillPayment), tx.Type)
	assert.Equal(t, "1500.00", tx.Amount)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/obligations/pay", pay).Code)

	rec = s.do(t, http.MethodPost, "/api/obligations/pay", map[string]any{"kind": "card_invoice", "invoice_id": created.Invoice.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "80.00", decodeAs[api.TransactionDTO](t, rec).Amount)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/obligations/pay", map[string]any{"kind": "tax"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/obligations/pay", map[string]any{"kind": "fixed_bill"}).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// AUDIT SCHEDULER
// =============================================================================

func TestAuditScheduler_RunOnceRepairs(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	card := s.createCard(t, "1000", 10)
	created := s.createCharge(t, card.ID, map[string]any{"total_value": "300", "installments": 3})
	amount := generic.MustMoney("50")
	_, err := s.service.PayCharge(context.Background(), generic.InvoiceID(created.Invoice.ID), generic.ChargeID(created.Charge.ID), &amount)
	require.NoError(t, err)

	sched := api.NewAuditScheduler(s.service, logging.Discard())

	run := sched.RunOnce(context.Background())
	require.Len(t, run.Drifts, 1)
	assert.Equal(t, 0, run.Repaired, "report only by default")

	sched.AutoRepair = true
	run = sched.RunOnce(context.Background())
	assert.Equal(t, 1, run.Repaired)
	assert.Empty(t, s.service.Audit())
}

func TestAuditScheduler_StartStop(t *testing.T) {
	s := newTestServer(t, billing.Options{})
	sched := api.NewAuditScheduler(s.service, logging.Discard())
	sched.CheckInterval = 10 * time.Millisecond

	sched.Start()
	sched.Start()
	time.Sleep(30 * time.Millisecond)
	sched.Stop()
	sched.Stop()

	disabled := api.NewAuditScheduler(s.service, logging.Discard())
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
}
