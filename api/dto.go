/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are always written as fixed two-decimal strings ("150.50").
  Request amounts accept either a JSON string or a JSON number.

DATES:
  Dates are YYYY-MM-DD strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/generic"
)

// =============================================================================
// AMOUNT
// =============================================================================

// Amount is a money value in a request body.
type Amount struct {
	generic.Money
}

// UnmarshalJSON accepts "12.34" and 12.34.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	m, err := generic.ParseMoney(string(data))
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	a.Money = m
	return nil
}

func (a *Amount) money() *generic.Money {
	if a == nil {
		return nil
	}
	m := a.Money
	return &m
}

// =============================================================================
// CARDS
// =============================================================================

// CardDTO represents a card in API responses.
type CardDTO struct {
	ID              string `json:"id"`
	IssuerName      string `json:"issuer_name"`
	Limit           string `json:"limit"`
	Used            string `json:"used"`
	Available       string `json:"available"`
	RoundingResidue string `json:"rounding_residue"`
	AnchorDay       int    `json:"anchor_day"`
	BrandImage      string `json:"brand_image,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// CreateCardRequest is the request to register a card.
type CreateCardRequest struct {
	IssuerName string `json:"issuer_name"`
	Limit      Amount `json:"limit"`
	AnchorDay  int    `json:"anchor_day"`
	BrandImage string `json:"brand_image"`
}

// UpdateCardRequest edits a card. Absent fields are left unchanged.
type UpdateCardRequest struct {
	IssuerName *string `json:"issuer_name"`
	Limit      *Amount `json:"limit"`
	AnchorDay  *int    `json:"anchor_day"`
	BrandImage *string `json:"brand_image"`
}

// DeleteCardResponse reports the cascade.
type DeleteCardResponse struct {
	Deleted         string `json:"deleted"`
	InvoicesDeleted int    `json:"invoices_deleted"`
}

// UsageDTO is the credit utilization of a card.
type UsageDTO struct {
	CardID      string `json:"card_id"`
	Limit       string `json:"limit"`
	Used        string `json:"used"`
	Available   string `json:"available"`
	PercentUsed string `json:"percent_used"`

	// Payments recorded against the card in the current calendar month
	PaidThisMonth string `json:"paid_this_month"`
}

// ForecastDTO is one projected statement.
type ForecastDTO struct {
	DueDate string `json:"due_date"`
	Amount  string `json:"amount"`
	Charges int    `json:"charges"`
}

// =============================================================================
// CHARGES AND INVOICES
// =============================================================================

// ChargeDTO represents a charge in API responses.
type ChargeDTO struct {
	ID                 string `json:"id"`
	CardID             string `json:"card_id"`
	Category           string `json:"category,omitempty"`
	Description        string `json:"description,omitempty"`
	TotalValue         string `json:"total_value"`
	InstallmentValue   string `json:"installment_value"`
	TotalInstallments  int    `json:"total_installments"`
	CurrentInstallment int    `json:"current_installment"`
	Remaining          string `json:"remaining"`
	PurchaseDate       string `json:"purchase_date"`
	State              string `json:"state"`
}

// CreateChargeRequest records a purchase. purchase_date defaults to today.
type CreateChargeRequest struct {
	TotalValue   Amount `json:"total_value"`
	Installments int    `json:"installments"`
	PurchaseDate string `json:"purchase_date"`
	Category     string `json:"category"`
	Description  string `json:"description"`
}

// CreateChargeResponse returns the charge and the invoice it joined.
type CreateChargeResponse struct {
	Charge  ChargeDTO  `json:"charge"`
	Invoice InvoiceDTO `json:"invoice"`
}

// EditChargeRequest edits a charge. Absent fields are left unchanged.
type EditChargeRequest struct {
	Category         *string `json:"category"`
	Description      *string `json:"description"`
	InstallmentValue *Amount `json:"installment_value"`
}

// ChargeRemovalDTO reports a deleted charge.
type ChargeRemovalDTO struct {
	Charge         ChargeDTO `json:"charge"`
	Released       string    `json:"released"`
	InvoiceRetired bool      `json:"invoice_retired"`
}

// InvoiceDTO represents an invoice in API responses. The window is the
// range of purchase dates that bill on this due date.
type InvoiceDTO struct {
	ID          string      `json:"id"`
	CardID      string      `json:"card_id"`
	DueDate     string      `json:"due_date"`
	WindowStart string      `json:"window_start"`
	WindowEnd   string      `json:"window_end"`
	Total       string      `json:"total"`
	Paid        bool        `json:"paid"`
	Status      string      `json:"status"`
	Charges     []ChargeDTO `json:"charges"`
}

// RecomputeTotalResponse is returned by the total recompute endpoint.
type RecomputeTotalResponse struct {
	InvoiceID string `json:"invoice_id"`
	Total     string `json:"total"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PayChargeRequest optionally overrides the installment value.
type PayChargeRequest struct {
	Amount *Amount `json:"amount"`
}

// PaymentDTO describes a completed payment.
type PaymentDTO struct {
	Outcome        string         `json:"outcome"`
	Invoice        *InvoiceDTO    `json:"invoice,omitempty"`
	MergedInto     string         `json:"merged_into,omitempty"`
	RetiredCharges []string       `json:"retired_charges"`
	Transaction    TransactionDTO `json:"transaction"`
}

// TransactionDTO represents a ledger record.
type TransactionDTO struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	CardID      string `json:"card_id,omitempty"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	ChargeID    string `json:"charge_id,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Description string `json:"description,omitempty"`
}

// =============================================================================
// AUDIT
// =============================================================================

// DriftDTO reports a card's recorded vs expected usage.
type DriftDTO struct {
	CardID        string `json:"card_id"`
	Recorded      string `json:"recorded"`
	Expected      string `json:"expected"`
	Difference    string `json:"difference"`
	Tolerance     string `json:"tolerance"`
	ActiveCharges int    `json:"active_charges"`
}

// AuditResponse lists cards that drifted beyond tolerance.
type AuditResponse struct {
	Drifts []DriftDTO `json:"drifts"`
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

// FixedBillDTO is an ordinary bill in requests and responses.
type FixedBillDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Amount   Amount `json:"amount"`
	DueDate  string `json:"due_date"`
	Paid     bool   `json:"paid"`
}

// ObligationsRequest carries the fixed bills to merge with card invoices.
type ObligationsRequest struct {
	Bills []FixedBillDTO `json:"bills"`
}

// ObligationDTO is one classified entry of the obligations list.
type ObligationDTO struct {
	Kind    string `json:"kind"`
	Ref     string `json:"ref"`
	Label   string `json:"label"`
	DueDate string `json:"due_date"`
	Amount  string `json:"amount"`
	Paid    bool   `json:"paid"`
	Status  string `json:"status"`
}

// PayObligationRequest pays a fixed bill or a card invoice.
type PayObligationRequest struct {
	Kind      string        `json:"kind"`
	InvoiceID string        `json:"invoice_id,omitempty"`
	Bill      *FixedBillDTO `json:"bill,omitempty"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCardDTO(c billing.Card) CardDTO {
	dto := CardDTO{
		ID:              string(c.ID),
		IssuerName:      c.IssuerName,
		Limit:           c.Limit.String(),
		Used:            c.Used.String(),
		Available:       c.Limit.Sub(c.Used).String(),
		RoundingResidue: c.RoundingResidue.String(),
		AnchorDay:       c.AnchorDay,
		BrandImage:      c.BrandImage,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.String()
	}
	return dto
}

func toUsageDTO(u billing.Usage, paidThisMonth generic.Money) UsageDTO {
	return UsageDTO{
		CardID:        string(u.CardID),
		Limit:         u.Limit.String(),
		Used:          u.Used.String(),
		Available:     u.Available.String(),
		PercentUsed:   u.PercentUsed.StringFixed(2),
		PaidThisMonth: paidThisMonth.String(),
	}
}

func toChargeDTO(c billing.Charge) ChargeDTO {
	return ChargeDTO{
		ID:                 string(c.ID),
		CardID:             string(c.CardID),
		Category:           c.Category,
		Description:        c.Description,
		TotalValue:         c.TotalValue.String(),
		InstallmentValue:   c.InstallmentValue.String(),
		TotalInstallments:  c.TotalInstallments,
		CurrentInstallment: c.CurrentInstallment,
		Remaining:          billing.Remaining(c).String(),
		PurchaseDate:       c.PurchaseDate.String(),
		State:              string(c.State()),
	}
}

func toChargeDTOs(charges []billing.Charge) []ChargeDTO {
	dtos := make([]ChargeDTO, len(charges))
	for i, c := range charges {
		dtos[i] = toChargeDTO(c)
	}
	return dtos
}

func toInvoiceDTO(inv billing.Invoice, today generic.TimePoint) InvoiceDTO {
	window := billing.PurchaseWindow(inv.DueDate)
	return InvoiceDTO{
		ID:          string(inv.ID),
		CardID:      string(inv.CardID),
		DueDate:     inv.DueDate.String(),
		WindowStart: window.Start.String(),
		WindowEnd:   window.End.String(),
		Total:       inv.Total.String(),
		Paid:        inv.Paid,
		Status:      string(billing.Classify(billing.CardInvoice{Invoice: inv}, today)),
		Charges:     toChargeDTOs(inv.Charges),
	}
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Type:        string(tx.Type),
		Date:        tx.Date.String(),
		Amount:      tx.Amount.String(),
		CardID:      string(tx.CardID),
		InvoiceID:   string(tx.InvoiceID),
		ChargeID:    string(tx.ChargeID),
		Reference:   tx.Reference,
		Description: tx.Description,
	}
}

func toPaymentDTO(res billing.PaymentResult, today generic.TimePoint) PaymentDTO {
	dto := PaymentDTO{
		Outcome:        string(res.Outcome),
		MergedInto:     string(res.MergedInto),
		RetiredCharges: make([]string, len(res.RetiredCharges)),
		Transaction:    toTransactionDTO(res.Transaction),
	}
	for i, id := range res.RetiredCharges {
		dto.RetiredCharges[i] = string(id)
	}
	if res.Outcome != billing.OutcomeRetired {
		inv := toInvoiceDTO(res.Invoice, today)
		dto.Invoice = &inv
	}
	return dto
}

func toDriftDTO(d billing.Drift) DriftDTO {
	return DriftDTO{
		CardID:        string(d.CardID),
		Recorded:      d.Recorded.String(),
		Expected:      d.Expected.String(),
		Difference:    d.Difference().String(),
		Tolerance:     d.Tolerance().String(),
		ActiveCharges: d.ActiveCharges,
	}
}

func (b FixedBillDTO) toFixedBill() (billing.FixedBill, error) {
	bill := billing.FixedBill{
		ID:       b.ID,
		Name:     b.Name,
		Category: b.Category,
		Amount:   b.Amount.Money,
		Paid:     b.Paid,
	}
	if b.DueDate != "" {
		due, err := generic.ParseTimePoint(b.DueDate)
		if err != nil {
			return billing.FixedBill{}, generic.Invalid("due_date", "must be YYYY-MM-DD")
		}
		bill.DueDate = due
	}
	return bill, nil
}
