/*
Package billing implements the credit-card billing and installment engine.

PURPOSE:
  Turns individual card purchases into monthly invoices, tracks how much of a
  card's limit is committed, and advances or retires installments as invoices
  are paid, edited or deleted.

ENTITIES (types.go):
  Card:    A credit line with a limit, a used amount and one anchor day.
  Charge:  One purchase financed over N installments.
  Invoice: One card's bill for one due date; owns its member charges.

OWNERSHIP:
  The Engine is an arena. Cards and invoices live in maps addressed by id;
  callers hold ids, never pointers, so deleting a card or retiring an
  invoice cannot leave a dangling reference behind. Every read returns a copy.

LIFECYCLE:
  Charge:  Active(1) -> Active(2) -> ... -> Active(n) -> Retired
  Invoice: Open -> (pay) -> RolledOver (next month) | Retired (deleted)

SEE ALSO:
  - scheduler.go: Which invoice a purchase lands on
  - payment.go: Pay invoice / pay single charge
  - reconcile.go: Edit and delete outside the payment path
*/
package billing

import (
	"github.com/google/uuid"
	"github.com/warp/household-finance/generic"
)

// =============================================================================
// CARD
// =============================================================================

// MinAnchorDay and MaxAnchorDay bound Card.AnchorDay. 28 keeps the anchor
// valid in every month, including February.
const (
	MinAnchorDay = 1
	MaxAnchorDay = 28
)

// Card is a credit line.
//
// AnchorDay is a single day that serves as both the statement closing day and
// the invoice due day. Real card products separate the two; this model keeps
// one field on purpose because existing data was scheduled that way. Whether
// that was intended or an accident is unknown, so it is preserved exactly.
//
// Used should equal the sum of Remaining over the card's active charges plus
// RoundingResidue. It is maintained incrementally and can drift (see
// Engine.Audit). No ceiling keeps Used below Limit unless
// Options.EnforceLimit is set.
//
// RoundingResidue accumulates TotalValue - InstallmentValue * TotalInstallments
// of every charge paid off through its installments: the cents per-installment
// rounding leaves on Used. It is expected and stays visible.
type Card struct {
	ID              generic.CardID
	IssuerName      string
	Limit           generic.Money
	Used            generic.Money
	RoundingResidue generic.Money
	AnchorDay       int
	BrandImage      string
	CreatedAt       generic.TimePoint
}

// CardInput carries the fields needed to register a card.
type CardInput struct {
	IssuerName string
	Limit      generic.Money
	AnchorDay  int
	BrandImage string
}

// CardEdit is a partial update; nil fields are left untouched.
type CardEdit struct {
	IssuerName *string
	Limit      *generic.Money
	AnchorDay  *int
	BrandImage *string
}

// =============================================================================
// CHARGE
// =============================================================================

// Charge is one purchase financed over TotalInstallments installments.
//
// InstallmentValue is TotalValue / TotalInstallments rounded to cents, so
// InstallmentValue * TotalInstallments may differ from TotalValue by a few
// cents. The difference is left as is; correcting it would change amounts
// users already see.
type Charge struct {
	ID                 generic.ChargeID
	CardID             generic.CardID
	Category           string
	Description        string
	TotalValue         generic.Money
	InstallmentValue   generic.Money
	TotalInstallments  int
	CurrentInstallment int
	PurchaseDate       generic.TimePoint
}

// ChargeState is derived from CurrentInstallment.
type ChargeState string

const (
	ChargeActive  ChargeState = "active"
	ChargeRetired ChargeState = "retired"
)

// Remaining is the unamortized value of the charge:
// TotalValue - InstallmentValue * (CurrentInstallment - 1), floored at zero.
func (c Charge) Remaining() generic.Money {
	paid := c.InstallmentValue.MulInt(c.CurrentInstallment - 1)
	return c.TotalValue.Sub(paid).FloorZero()
}

// Retired reports whether every installment has been paid.
func (c Charge) Retired() bool { return c.CurrentInstallment > c.TotalInstallments }

func (c Charge) State() ChargeState {
	if c.Retired() {
		return ChargeRetired
	}
	return ChargeActive
}

// Residue is what per-installment rounding leaves over once every
// installment is paid: TotalValue - InstallmentValue * TotalInstallments.
func (c Charge) Residue() generic.Money {
	return c.TotalValue.Sub(c.InstallmentValue.MulInt(c.TotalInstallments))
}

// Remaining is the package-level accessor for Charge.Remaining.
func Remaining(c Charge) generic.Money { return c.Remaining() }

// MaxInstallments bounds ChargeInput.Installments: ten years of monthly
// statements.
const MaxInstallments = 120

// ChargeInput carries the fields needed to record a purchase.
type ChargeInput struct {
	TotalValue   generic.Money
	Installments int
	PurchaseDate generic.TimePoint // zero means today
	Category     string
	Description  string
}

// ChargeEdit is a partial update of the fields that may be edited directly.
// TotalValue and TotalInstallments are not editable.
type ChargeEdit struct {
	Category         *string
	Description      *string
	InstallmentValue *generic.Money
}

// =============================================================================
// INVOICE
// =============================================================================

// Invoice is one card's bill for one due date. An invoice with no charges
// never exists: it is deleted as soon as its last charge leaves.
type Invoice struct {
	ID      generic.InvoiceID
	CardID  generic.CardID
	DueDate generic.TimePoint
	Total   generic.Money
	Paid    bool
	Charges []Charge // insertion order, display only
}

func (inv *Invoice) sumInstallments() generic.Money {
	total := generic.Zero()
	for _, ch := range inv.Charges {
		total = total.Add(ch.InstallmentValue)
	}
	return total
}

func (inv *Invoice) recomputeTotal() {
	inv.Total = inv.sumInstallments()
}

func (inv *Invoice) chargeIndex(id generic.ChargeID) int {
	for i := range inv.Charges {
		if inv.Charges[i].ID == id {
			return i
		}
	}
	return -1
}

func (inv *Invoice) removeCharge(i int) {
	inv.Charges = append(inv.Charges[:i:i], inv.Charges[i+1:]...)
}

// Clone returns a copy that shares no charge storage with inv.
func (inv Invoice) Clone() Invoice {
	inv.Charges = append([]Charge(nil), inv.Charges...)
	return inv
}

// =============================================================================
// STATE - What the persistence layer saves and loads
// =============================================================================

// State is the full engine content in insertion order.
type State struct {
	Cards    []Card
	Invoices []Invoice
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := State{
		Cards:    append([]Card(nil), s.Cards...),
		Invoices: make([]Invoice, len(s.Invoices)),
	}
	for i, inv := range s.Invoices {
		out.Invoices[i] = inv.Clone()
	}
	return out
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configure an Engine.
type Options struct {
	// EnforceLimit rejects purchases that would push Used above Limit.
	// Off by default: the household tracker accepts every purchase.
	EnforceLimit bool

	// Clock supplies "today" for default purchase dates and payment records.
	Clock generic.Clock

	// NewID generates ids for new entities and transactions.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = generic.SystemClock{}
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}
