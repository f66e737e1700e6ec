package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/household-finance/generic"
)

// =============================================================================
// ENGINE - Arena of cards and invoices
// =============================================================================

// Engine holds every card and invoice and applies the billing operations.
//
// The engine is single-threaded and synchronous: each operation runs to
// completion and performs no I/O. It is not safe for concurrent use; Service
// serializes access. Nothing is persisted here; the caller saves State()
// after a mutation returns.
type Engine struct {
	opts Options

	cards        map[generic.CardID]*Card
	cardOrder    []generic.CardID
	invoices     map[generic.InvoiceID]*Invoice
	invoiceOrder []generic.InvoiceID
}

// NewEngine creates an empty engine.
func NewEngine(opts Options) *Engine {
	return &Engine{
		opts:     opts.withDefaults(),
		cards:    make(map[generic.CardID]*Card),
		invoices: make(map[generic.InvoiceID]*Invoice),
	}
}

// Restore replaces the engine content with a previously saved state.
// Empty invoices in the input are dropped rather than restored.
func (e *Engine) Restore(s State) error {
	cards := make(map[generic.CardID]*Card, len(s.Cards))
	cardOrder := make([]generic.CardID, 0, len(s.Cards))
	for _, c := range s.Cards {
		if _, dup := cards[c.ID]; dup {
			return fmt.Errorf("restore: duplicate card %s", c.ID)
		}
		c := c
		cards[c.ID] = &c
		cardOrder = append(cardOrder, c.ID)
	}

	invoices := make(map[generic.InvoiceID]*Invoice, len(s.Invoices))
	invoiceOrder := make([]generic.InvoiceID, 0, len(s.Invoices))
	for _, inv := range s.Invoices {
		if len(inv.Charges) == 0 {
			continue
		}
		if _, dup := invoices[inv.ID]; dup {
			return fmt.Errorf("restore: duplicate invoice %s", inv.ID)
		}
		if _, ok := cards[inv.CardID]; !ok {
			return fmt.Errorf("restore: invoice %s references unknown card %s", inv.ID, inv.CardID)
		}
		inv := inv.Clone()
		invoices[inv.ID] = &inv
		invoiceOrder = append(invoiceOrder, inv.ID)
	}

	e.cards, e.cardOrder = cards, cardOrder
	e.invoices, e.invoiceOrder = invoices, invoiceOrder
	return nil
}

// State returns a deep copy of the engine content in insertion order.
func (e *Engine) State() State {
	s := State{
		Cards:    make([]Card, 0, len(e.cardOrder)),
		Invoices: make([]Invoice, 0, len(e.invoiceOrder)),
	}
	for _, id := range e.cardOrder {
		s.Cards = append(s.Cards, *e.cards[id])
	}
	for _, id := range e.invoiceOrder {
		s.Invoices = append(s.Invoices, e.invoices[id].Clone())
	}
	return s
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (e *Engine) card(id generic.CardID) (*Card, error) {
	c, ok := e.cards[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "card", ID: string(id)}
	}
	return c, nil
}

func (e *Engine) invoice(id generic.InvoiceID) (*Invoice, error) {
	inv, ok := e.invoices[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "invoice", ID: string(id)}
	}
	return inv, nil
}

func (e *Engine) invoiceCharge(invoiceID generic.InvoiceID, chargeID generic.ChargeID) (*Invoice, int, error) {
	inv, err := e.invoice(invoiceID)
	if err != nil {
		return nil, -1, err
	}
	i := inv.chargeIndex(chargeID)
	if i < 0 {
		return nil, -1, &generic.NotFoundError{Kind: "charge", ID: string(chargeID)}
	}
	return inv, i, nil
}

// openInvoice finds the open invoice for (cardID, dueDate), skipping exclude.
func (e *Engine) openInvoice(cardID generic.CardID, dueDate generic.TimePoint, exclude generic.InvoiceID) *Invoice {
	for _, id := range e.invoiceOrder {
		inv := e.invoices[id]
		if id == exclude || inv.Paid || inv.CardID != cardID {
			continue
		}
		if inv.DueDate.Equal(dueDate) {
			return inv
		}
	}
	return nil
}

func (e *Engine) addInvoice(inv *Invoice) {
	e.invoices[inv.ID] = inv
	e.invoiceOrder = append(e.invoiceOrder, inv.ID)
}

// retireInvoice deletes an invoice record.
func (e *Engine) retireInvoice(id generic.InvoiceID) {
	delete(e.invoices, id)
	for i, v := range e.invoiceOrder {
		if v == id {
			e.invoiceOrder = append(e.invoiceOrder[:i:i], e.invoiceOrder[i+1:]...)
			return
		}
	}
}

// retireIfEmpty deletes inv when its charge list is empty and reports whether
// it did.
func (e *Engine) retireIfEmpty(inv *Invoice) bool {
	if len(inv.Charges) > 0 {
		return false
	}
	e.retireInvoice(inv.ID)
	return true
}

// release subtracts amount from card.Used, flooring the card aggregate at zero.
func release(card *Card, amount generic.Money) {
	card.Used = card.Used.Sub(amount).FloorZero()
}

func (e *Engine) newTransactionID() generic.TransactionID {
	return generic.TransactionID(e.opts.NewID())
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// Card returns a copy of a card.
func (e *Engine) Card(id generic.CardID) (Card, error) {
	c, err := e.card(id)
	if err != nil {
		return Card{}, err
	}
	return *c, nil
}

// Cards lists every card in registration order.
func (e *Engine) Cards() []Card {
	out := make([]Card, 0, len(e.cardOrder))
	for _, id := range e.cardOrder {
		out = append(out, *e.cards[id])
	}
	return out
}

// Invoice returns a copy of an invoice with its charges.
func (e *Engine) Invoice(id generic.InvoiceID) (Invoice, error) {
	inv, err := e.invoice(id)
	if err != nil {
		return Invoice{}, err
	}
	return inv.Clone(), nil
}

// Invoices lists every invoice ordered by due date.
func (e *Engine) Invoices() []Invoice {
	return e.collectInvoices(func(*Invoice) bool { return true })
}

// InvoicesForCard lists a card's invoices ordered by due date.
func (e *Engine) InvoicesForCard(cardID generic.CardID) ([]Invoice, error) {
	if _, err := e.card(cardID); err != nil {
		return nil, err
	}
	return e.collectInvoices(func(inv *Invoice) bool { return inv.CardID == cardID }), nil
}

func (e *Engine) collectInvoices(keep func(*Invoice) bool) []Invoice {
	var out []Invoice
	for _, id := range e.invoiceOrder {
		if inv := e.invoices[id]; keep(inv) {
			out = append(out, inv.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

// ChargesForCard lists a card's active charges, by invoice due date then
// insertion order.
func (e *Engine) ChargesForCard(cardID generic.CardID) ([]Charge, error) {
	invoices, err := e.InvoicesForCard(cardID)
	if err != nil {
		return nil, err
	}
	var out []Charge
	for _, inv := range invoices {
		out = append(out, inv.Charges...)
	}
	return out, nil
}

// Usage summarizes how much of a card's limit is committed.
type Usage struct {
	CardID      generic.CardID
	Limit       generic.Money
	Used        generic.Money
	Available   generic.Money   // Limit - Used; negative when over the limit
	PercentUsed decimal.Decimal // Used / Limit * 100, 2 places
}

// Usage computes used/available/percentage for a card.
func (e *Engine) Usage(cardID generic.CardID) (Usage, error) {
	c, err := e.card(cardID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		CardID:      c.ID,
		Limit:       c.Limit,
		Used:        c.Used,
		Available:   c.Limit.Sub(c.Used),
		PercentUsed: c.Used.Percent(c.Limit),
	}, nil
}
