package billing

import (
	"sort"
	"strings"

	"github.com/warp/household-finance/generic"
)

// =============================================================================
// OBLIGATIONS - Ordinary bills and card invoices, kept apart
// =============================================================================
//
// The household's list of things to pay mixes ordinary recurring bills (rent,
// electricity) with card invoices. Only card invoices go through the payment
// processor; fixed bills are settled on a separate, simpler path. Obligation
// is a closed union of the two so callers can list and classify them
// together without the processor ever seeing a fixed bill.

// ObligationKind tags the union variant.
type ObligationKind string

const (
	KindFixedBill   ObligationKind = "fixed_bill"
	KindCardInvoice ObligationKind = "card_invoice"
)

// Obligation is implemented by FixedBill and CardInvoice only.
type Obligation interface {
	Kind() ObligationKind
	Ref() string
	Label() string
	Due() generic.TimePoint
	AmountDue() generic.Money
	IsPaid() bool

	obligation()
}

// FixedBill is an ordinary bill outside the card engine.
type FixedBill struct {
	ID       string
	Name     string
	Category string
	Amount   generic.Money
	DueDate  generic.TimePoint
	Paid     bool
}

func (b FixedBill) Kind() ObligationKind     { return KindFixedBill }
func (b FixedBill) Ref() string              { return b.ID }
func (b FixedBill) Label() string            { return b.Name }
func (b FixedBill) Due() generic.TimePoint   { return b.DueDate }
func (b FixedBill) AmountDue() generic.Money { return b.Amount }
func (b FixedBill) IsPaid() bool             { return b.Paid }
func (FixedBill) obligation()                {}

// Validate checks the fields a fixed bill payment needs.
func (b FixedBill) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return generic.Invalid("id", "must not be empty")
	}
	if !b.Amount.IsPositive() {
		return generic.Invalid("amount", "must be positive")
	}
	if b.DueDate.IsZero() {
		return generic.Invalid("due_date", "is required")
	}
	return nil
}

// CardInvoice wraps an engine invoice with its issuer name for display.
type CardInvoice struct {
	Invoice Invoice
	Issuer  string
}

func (c CardInvoice) Kind() ObligationKind     { return KindCardInvoice }
func (c CardInvoice) Ref() string              { return string(c.Invoice.ID) }
func (c CardInvoice) Label() string            { return c.Issuer }
func (c CardInvoice) Due() generic.TimePoint   { return c.Invoice.DueDate }
func (c CardInvoice) AmountDue() generic.Money { return c.Invoice.Total }
func (c CardInvoice) IsPaid() bool             { return c.Invoice.Paid }
func (CardInvoice) obligation()                {}

// =============================================================================
// DUE STATUS
// =============================================================================

type DueStatus string

const (
	StatusPaid     DueStatus = "paid"
	StatusOverdue  DueStatus = "overdue"
	StatusDueToday DueStatus = "due_today"
	StatusUpcoming DueStatus = "upcoming"
)

// Classify returns the due status of an obligation relative to today.
func Classify(o Obligation, today generic.TimePoint) DueStatus {
	switch due := o.Due(); {
	case o.IsPaid():
		return StatusPaid
	case due.Before(today):
		return StatusOverdue
	case due.Equal(today):
		return StatusDueToday
	default:
		return StatusUpcoming
	}
}

// Obligations merges the given fixed bills with every card invoice, ordered
// by due date. Ties keep fixed bills first, in input order.
func (e *Engine) Obligations(bills []FixedBill) []Obligation {
	out := make([]Obligation, 0, len(bills)+len(e.invoiceOrder))
	for _, b := range bills {
		out = append(out, b)
	}
	for _, inv := range e.Invoices() {
		issuer := ""
		if c, ok := e.cards[inv.CardID]; ok {
			issuer = c.IssuerName
		}
		out = append(out, CardInvoice{Invoice: inv, Issuer: issuer})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Due().Before(out[j].Due())
	})
	return out
}
