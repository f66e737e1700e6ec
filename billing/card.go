package billing

import (
	"strings"

	"github.com/warp/household-finance/generic"
)

// =============================================================================
// CARD REGISTRY
// =============================================================================

func validateAnchorDay(day int) error {
	if day < MinAnchorDay || day > MaxAnchorDay {
		return generic.Invalid("anchor_day", "must be between 1 and 28")
	}
	return nil
}

func validateLimit(limit generic.Money) error {
	if !limit.IsPositive() {
		return generic.Invalid("limit", "must be positive")
	}
	return nil
}

func validateIssuer(name string) error {
	if strings.TrimSpace(name) == "" {
		return generic.Invalid("issuer_name", "must not be empty")
	}
	return nil
}

// CreateCard registers a card with Used = 0.
func (e *Engine) CreateCard(in CardInput) (Card, error) {
	if err := validateIssuer(in.IssuerName); err != nil {
		return Card{}, err
	}
	if err := validateLimit(in.Limit); err != nil {
		return Card{}, err
	}
	if err := validateAnchorDay(in.AnchorDay); err != nil {
		return Card{}, err
	}

	c := &Card{
		ID:         generic.CardID(e.opts.NewID()),
		IssuerName: strings.TrimSpace(in.IssuerName),
		Limit:      in.Limit,
		Used:       generic.Zero(),
		AnchorDay:  in.AnchorDay,
		BrandImage: in.BrandImage,
		CreatedAt:  e.opts.Clock.Today(),
	}
	e.cards[c.ID] = c
	e.cardOrder = append(e.cardOrder, c.ID)
	return *c, nil
}

// EditCard updates card fields in place. Outstanding invoices keep their due
// dates even when the anchor day changes; only future purchases use the new
// anchor.
func (e *Engine) EditCard(id generic.CardID, edit CardEdit) (Card, error) {
	c, err := e.card(id)
	if err != nil {
		return Card{}, err
	}
	if edit.IssuerName != nil {
		if err := validateIssuer(*edit.IssuerName); err != nil {
			return Card{}, err
		}
	}
	if edit.Limit != nil {
		if err := validateLimit(*edit.Limit); err != nil {
			return Card{}, err
		}
	}
	if edit.AnchorDay != nil {
		if err := validateAnchorDay(*edit.AnchorDay); err != nil {
			return Card{}, err
		}
	}

	if edit.IssuerName != nil {
		c.IssuerName = strings.TrimSpace(*edit.IssuerName)
	}
	if edit.Limit != nil {
		c.Limit = *edit.Limit
	}
	if edit.AnchorDay != nil {
		c.AnchorDay = *edit.AnchorDay
	}
	if edit.BrandImage != nil {
		c.BrandImage = *edit.BrandImage
	}
	return *c, nil
}

// DeleteCard removes a card and every invoice (with its charges) that
// references it. Nothing is archived. Returns the number of invoices deleted.
func (e *Engine) DeleteCard(id generic.CardID) (int, error) {
	if _, err := e.card(id); err != nil {
		return 0, err
	}

	var doomed []generic.InvoiceID
	for _, invID := range e.invoiceOrder {
		if e.invoices[invID].CardID == id {
			doomed = append(doomed, invID)
		}
	}
	for _, invID := range doomed {
		e.retireInvoice(invID)
	}

	delete(e.cards, id)
	for i, v := range e.cardOrder {
		if v == id {
			e.cardOrder = append(e.cardOrder[:i:i], e.cardOrder[i+1:]...)
			break
		}
	}
	return len(doomed), nil
}
