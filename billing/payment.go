package billing

import (
	"fmt"

	"github.com/warp/household-finance/generic"
)

// =============================================================================
// PAYMENT PROCESSOR
// =============================================================================
//
// Both payment paths run the same sequence:
//
//   1. advance:   CurrentInstallment++ and card.Used -= amount (floored at 0)
//   2. retire:    remove charges with CurrentInstallment > TotalInstallments
//   3. emptiness: an invoice left with no charges is deleted
//   4. recompute: Total = sum of surviving InstallmentValue
//      (PayInvoice only) roll DueDate forward one month, Paid = false
//
// Steps must run in this order; recomputing before the emptiness check would
// leave a stale total on an invoice that is about to disappear.

// PaymentOutcome is what happened to the invoice after a payment.
type PaymentOutcome string

const (
	// OutcomeRolledOver: charges remain; the invoice moved to next month.
	OutcomeRolledOver PaymentOutcome = "rolled_over"
	// OutcomeRetired: the last charge retired; the invoice was deleted.
	OutcomeRetired PaymentOutcome = "retired"
	// OutcomeOpen: single-charge payment; the invoice stays on its due date.
	OutcomeOpen PaymentOutcome = "open"
)

// PaymentResult describes a completed payment.
type PaymentResult struct {
	Outcome PaymentOutcome

	// Invoice is the invoice after payment. Zero value when retired. When a
	// rollover merged into an existing invoice, this is that invoice.
	Invoice Invoice

	// MergedInto is set when the rolled due date already had an open invoice
	// for the card and the surviving charges were moved onto it.
	MergedInto generic.InvoiceID

	RetiredCharges []generic.ChargeID

	// Transaction is the payment record for the caller's ledger.
	Transaction generic.Transaction
}

// PayInvoice settles a full billing period: every member charge advances one
// installment. Paying an invoice that is already paid or has no charges is an
// InvalidStateError.
func (e *Engine) PayInvoice(id generic.InvoiceID) (PaymentResult, error) {
	inv, err := e.invoice(id)
	if err != nil {
		return PaymentResult{}, err
	}
	if err := checkPayable(inv, "pay"); err != nil {
		return PaymentResult{}, err
	}
	card, err := e.card(inv.CardID)
	if err != nil {
		return PaymentResult{}, err
	}

	originalDue := inv.DueDate
	amounts := make(map[generic.ChargeID]generic.Money, len(inv.Charges))
	for _, ch := range inv.Charges {
		amounts[ch.ID] = ch.InstallmentValue
	}
	paid, retired := e.advance(card, inv, amounts)

	res := PaymentResult{
		RetiredCharges: retired,
		Transaction: generic.Transaction{
			ID:          e.newTransactionID(),
			Type:        generic.TxInvoicePayment,
			Date:        e.opts.Clock.Today(),
			Amount:      paid,
			CardID:      card.ID,
			InvoiceID:   inv.ID,
			Description: fmt.Sprintf("%s invoice due %s", card.IssuerName, originalDue),
			CreatedAt:   e.opts.Clock.Today(),
		},
	}

	if e.retireIfEmpty(inv) {
		res.Outcome = OutcomeRetired
		return res, nil
	}

	res.Outcome = OutcomeRolledOver
	next := inv.DueDate.AddMonths(1)
	if target := e.openInvoice(inv.CardID, next, inv.ID); target != nil {
		target.Charges = append(target.Charges, inv.Charges...)
		target.recomputeTotal()
		e.retireInvoice(inv.ID)
		res.MergedInto = target.ID
		res.Invoice = target.Clone()
		return res, nil
	}

	inv.recomputeTotal()
	inv.DueDate = next
	inv.Paid = false
	res.Invoice = inv.Clone()
	return res, nil
}

// PayCharge pays one charge inside an open invoice. amount overrides the
// installment value when non-nil and must be positive. The invoice keeps its
// due date; it is deleted if the charge was its last and has retired.
func (e *Engine) PayCharge(invoiceID generic.InvoiceID, chargeID generic.ChargeID, amount *generic.Money) (PaymentResult, error) {
	inv, i, err := e.invoiceCharge(invoiceID, chargeID)
	if err != nil {
		return PaymentResult{}, err
	}
	if err := checkPayable(inv, "pay charge on"); err != nil {
		return PaymentResult{}, err
	}
	card, err := e.card(inv.CardID)
	if err != nil {
		return PaymentResult{}, err
	}

	ch := inv.Charges[i]
	value := ch.InstallmentValue
	if amount != nil {
		if !amount.IsPositive() {
			return PaymentResult{}, generic.Invalid("amount", "must be positive")
		}
		value = *amount
	}

	paid, retired := e.advance(card, inv, map[generic.ChargeID]generic.Money{ch.ID: value})

	res := PaymentResult{
		RetiredCharges: retired,
		Transaction: generic.Transaction{
			ID:          e.newTransactionID(),
			Type:        generic.TxChargePayment,
			Date:        e.opts.Clock.Today(),
			Amount:      paid,
			CardID:      card.ID,
			InvoiceID:   inv.ID,
			ChargeID:    ch.ID,
			Description: fmt.Sprintf("%s installment %d/%d", describe(ch), ch.CurrentInstallment, ch.TotalInstallments),
			CreatedAt:   e.opts.Clock.Today(),
		},
	}

	if e.retireIfEmpty(inv) {
		res.Outcome = OutcomeRetired
		return res, nil
	}
	inv.recomputeTotal()
	res.Outcome = OutcomeOpen
	res.Invoice = inv.Clone()
	return res, nil
}

func checkPayable(inv *Invoice, op string) error {
	switch {
	case inv.Paid:
		return &generic.InvalidStateError{Kind: "invoice", ID: string(inv.ID), Op: op, State: "already paid"}
	case len(inv.Charges) == 0:
		return &generic.InvalidStateError{Kind: "invoice", ID: string(inv.ID), Op: op, State: "no charges"}
	}
	return nil
}

// advance applies steps 1 and 2 to the charges named in amounts and returns
// the total paid and the ids of charges that retired.
func (e *Engine) advance(card *Card, inv *Invoice, amounts map[generic.ChargeID]generic.Money) (generic.Money, []generic.ChargeID) {
	paid := generic.Zero()
	for i := range inv.Charges {
		ch := &inv.Charges[i]
		amount, ok := amounts[ch.ID]
		if !ok {
			continue
		}
		ch.CurrentInstallment++
		release(card, amount)
		paid = paid.Add(amount)
	}

	var retired []generic.ChargeID
	for i := len(inv.Charges) - 1; i >= 0; i-- {
		if ch := inv.Charges[i]; ch.Retired() {
			card.RoundingResidue = card.RoundingResidue.Add(ch.Residue())
			retired = append(retired, ch.ID)
			inv.removeCharge(i)
		}
	}
	// restore insertion order
	for l, r := 0, len(retired)-1; l < r; l, r = l+1, r-1 {
		retired[l], retired[r] = retired[r], retired[l]
	}
	return paid, retired
}

func describe(ch Charge) string {
	switch {
	case ch.Description != "":
		return ch.Description
	case ch.Category != "":
		return ch.Category
	}
	return "charge " + string(ch.ID)
}
