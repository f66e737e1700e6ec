package billing

import (
	"strings"

	"github.com/warp/household-finance/generic"
)

// =============================================================================
// RECONCILER - Edits and deletions outside the payment path
// =============================================================================

// EditCharge updates a charge's category, description or installment value
// and recomputes the invoice total.
//
// Card.Used is NOT adjusted, even when the installment value changes. Used
// was reserved from the original TotalValue at creation, so after this call
// it can disagree with the sum of remaining values. This is the historical
// behavior and stays selectable; EditChargeWithReconciliation is the
// corrected path.
func (e *Engine) EditCharge(invoiceID generic.InvoiceID, chargeID generic.ChargeID, edit ChargeEdit) (Charge, error) {
	inv, i, err := e.editableCharge(invoiceID, chargeID, edit)
	if err != nil {
		return Charge{}, err
	}
	applyChargeEdit(&inv.Charges[i], edit)
	inv.recomputeTotal()
	return inv.Charges[i], nil
}

// EditChargeWithReconciliation applies the same edit as EditCharge, then
// keeps the charge consistent with Card.Used:
//
//   - TotalValue becomes InstallmentValue * TotalInstallments
//   - Card.Used moves by the change in the charge's remaining value
func (e *Engine) EditChargeWithReconciliation(invoiceID generic.InvoiceID, chargeID generic.ChargeID, edit ChargeEdit) (Charge, error) {
	inv, i, err := e.editableCharge(invoiceID, chargeID, edit)
	if err != nil {
		return Charge{}, err
	}
	card, err := e.card(inv.CardID)
	if err != nil {
		return Charge{}, err
	}

	ch := &inv.Charges[i]
	before := ch.Remaining()
	applyChargeEdit(ch, edit)
	if edit.InstallmentValue != nil {
		ch.TotalValue = ch.InstallmentValue.MulInt(ch.TotalInstallments)
	}
	delta := ch.Remaining().Sub(before)
	card.Used = card.Used.Add(delta).FloorZero()

	inv.recomputeTotal()
	return *ch, nil
}

func (e *Engine) editableCharge(invoiceID generic.InvoiceID, chargeID generic.ChargeID, edit ChargeEdit) (*Invoice, int, error) {
	inv, i, err := e.invoiceCharge(invoiceID, chargeID)
	if err != nil {
		return nil, -1, err
	}
	if edit.InstallmentValue != nil && !edit.InstallmentValue.IsPositive() {
		return nil, -1, generic.Invalid("installment_value", "must be positive")
	}
	if inv.Charges[i].Retired() {
		return nil, -1, &generic.InvalidStateError{Kind: "charge", ID: string(chargeID), Op: "edit", State: "retired"}
	}
	return inv, i, nil
}

func applyChargeEdit(ch *Charge, edit ChargeEdit) {
	if edit.Category != nil {
		ch.Category = strings.TrimSpace(*edit.Category)
	}
	if edit.Description != nil {
		ch.Description = strings.TrimSpace(*edit.Description)
	}
	if edit.InstallmentValue != nil {
		ch.InstallmentValue = *edit.InstallmentValue
	}
}

// ChargeRemoval describes a deleted charge.
type ChargeRemoval struct {
	Charge         Charge
	Released       generic.Money // Remaining value subtracted from Card.Used
	InvoiceRetired bool
}

// DeleteCharge removes a charge, releases its remaining value from the card
// and retires the invoice if it is left empty.
func (e *Engine) DeleteCharge(invoiceID generic.InvoiceID, chargeID generic.ChargeID) (ChargeRemoval, error) {
	inv, i, err := e.invoiceCharge(invoiceID, chargeID)
	if err != nil {
		return ChargeRemoval{}, err
	}
	card, err := e.card(inv.CardID)
	if err != nil {
		return ChargeRemoval{}, err
	}

	ch := inv.Charges[i]
	released := ch.Remaining()
	release(card, released)
	inv.removeCharge(i)

	out := ChargeRemoval{Charge: ch, Released: released}
	if e.retireIfEmpty(inv) {
		out.InvoiceRetired = true
		return out, nil
	}
	inv.recomputeTotal()
	return out, nil
}

// RecomputeInvoiceTotal sets Total to the sum of member installment values.
// Calling it repeatedly yields the same total.
func (e *Engine) RecomputeInvoiceTotal(id generic.InvoiceID) (generic.Money, error) {
	inv, err := e.invoice(id)
	if err != nil {
		return generic.Money{}, err
	}
	inv.recomputeTotal()
	return inv.Total, nil
}

// =============================================================================
// DRIFT AUDIT
// =============================================================================

// Drift compares a card's recorded Used with the sum of its charges'
// remaining values plus the rounding residue of charges already paid off.
type Drift struct {
	CardID        generic.CardID
	Recorded      generic.Money
	Expected      generic.Money
	ActiveCharges int
}

// Difference is Recorded - Expected.
func (d Drift) Difference() generic.Money { return d.Recorded.Sub(d.Expected) }

// Tolerance is one cent per active charge, the most that per-installment
// rounding can explain.
func (d Drift) Tolerance() generic.Money {
	return generic.NewMoneyFromCents(int64(d.ActiveCharges))
}

// Exceeded reports whether the difference is larger than rounding explains.
func (d Drift) Exceeded() bool {
	return d.Difference().Abs().GreaterThan(d.Tolerance())
}

func (e *Engine) drift(card *Card) Drift {
	d := Drift{CardID: card.ID, Recorded: card.Used, Expected: card.RoundingResidue}
	for _, id := range e.invoiceOrder {
		inv := e.invoices[id]
		if inv.CardID != card.ID {
			continue
		}
		for _, ch := range inv.Charges {
			d.Expected = d.Expected.Add(ch.Remaining())
			d.ActiveCharges++
		}
	}
	// Used is floored at zero, so a negative residue cannot show on it
	d.Expected = d.Expected.FloorZero()
	return d
}

// Audit lists every card whose Used drifted beyond rounding tolerance.
func (e *Engine) Audit() []Drift {
	var out []Drift
	for _, id := range e.cardOrder {
		if d := e.drift(e.cards[id]); d.Exceeded() {
			out = append(out, d)
		}
	}
	return out
}

// RecomputeCardUsed resets Used to the sum of remaining values plus the
// card's rounding residue and returns the drift that was corrected.
func (e *Engine) RecomputeCardUsed(id generic.CardID) (Drift, error) {
	card, err := e.card(id)
	if err != nil {
		return Drift{}, err
	}
	d := e.drift(card)
	card.Used = d.Expected
	return d, nil
}
