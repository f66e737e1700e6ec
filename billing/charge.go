package billing

import (
	"fmt"
	"strings"

	"github.com/warp/household-finance/generic"
)

// =============================================================================
// CHARGE CREATION
// =============================================================================

// CreateCharge records a purchase on a card.
//
// The charge lands on the open invoice for the due date given by
// ResolveInvoicePeriod; a new invoice is opened when none exists. The full
// purchase value is reserved on the card at once (Used += TotalValue), not
// just the first installment.
func (e *Engine) CreateCharge(cardID generic.CardID, in ChargeInput) (Charge, Invoice, error) {
	card, err := e.card(cardID)
	if err != nil {
		return Charge{}, Invoice{}, err
	}
	if !in.TotalValue.IsPositive() {
		return Charge{}, Invoice{}, generic.Invalid("total_value", "must be positive")
	}
	if in.Installments < 1 {
		return Charge{}, Invoice{}, generic.Invalid("installments", "must be at least 1")
	}
	if in.Installments > MaxInstallments {
		return Charge{}, Invoice{}, generic.Invalid("installments", fmt.Sprintf("must be at most %d", MaxInstallments))
	}
	if e.opts.EnforceLimit {
		if after := card.Used.Add(in.TotalValue); after.GreaterThan(card.Limit) {
			return Charge{}, Invoice{}, &generic.LimitExceededError{
				CardID:    card.ID,
				Limit:     card.Limit,
				Used:      card.Used,
				Requested: in.TotalValue,
			}
		}
	}

	purchase := in.PurchaseDate
	if purchase.IsZero() {
		purchase = e.opts.Clock.Today()
	}

	ch := Charge{
		ID:                 generic.ChargeID(e.opts.NewID()),
		CardID:             card.ID,
		Category:           strings.TrimSpace(in.Category),
		Description:        strings.TrimSpace(in.Description),
		TotalValue:         in.TotalValue,
		InstallmentValue:   in.TotalValue.Div(in.Installments),
		TotalInstallments:  in.Installments,
		CurrentInstallment: 1,
		PurchaseDate:       purchase,
	}

	dueDate := ResolveInvoicePeriod(purchase, card.AnchorDay)
	inv := e.openInvoice(card.ID, dueDate, "")
	if inv != nil {
		inv.Charges = append(inv.Charges, ch)
		inv.Total = inv.Total.Add(ch.InstallmentValue)
	} else {
		inv = &Invoice{
			ID:      generic.InvoiceID(e.opts.NewID()),
			CardID:  card.ID,
			DueDate: dueDate,
			Total:   ch.InstallmentValue,
			Charges: []Charge{ch},
		}
		e.addInvoice(inv)
	}

	card.Used = card.Used.Add(in.TotalValue)
	return ch, inv.Clone(), nil
}
