package billing

import (
	"time"

	"github.com/warp/household-finance/generic"
)

// =============================================================================
// BILLING CYCLE SCHEDULER
// =============================================================================

// ResolveInvoicePeriod returns the due date of the invoice a purchase belongs to.
//
// With d the purchase's day of month and a the card's anchor day:
//   - d >= a: due on day a of the next calendar month
//   - d <  a: due on day a of the purchase's own month
//
// The anchor is used as closing day and due day at once. A purchase made on
// the anchor day itself therefore rolls to next month, even though a real
// card would usually bill it on the current statement. Kept as is; changing
// it would move existing charges to different invoices.
func ResolveInvoicePeriod(purchase generic.TimePoint, anchorDay int) generic.TimePoint {
	year, month := purchase.Year(), purchase.Month()
	if purchase.Day() >= anchorDay {
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return generic.NewTimePoint(year, month, anchorDay)
}

// ResolveInvoicePeriod resolves the due date for a purchase on a registered card.
func (e *Engine) ResolveInvoicePeriod(purchase generic.TimePoint, cardID generic.CardID) (generic.TimePoint, error) {
	card, err := e.card(cardID)
	if err != nil {
		return generic.TimePoint{}, err
	}
	return ResolveInvoicePeriod(purchase, card.AnchorDay), nil
}

// PurchaseWindow is the range of purchase dates that resolve to an invoice
// due on dueDate: from the previous month's due day up to the day before
// dueDate. Anchor days are at most 28, so the previous month always has
// that day.
func PurchaseWindow(dueDate generic.TimePoint) generic.Period {
	return generic.Period{
		Start: dueDate.AddMonths(-1),
		End:   dueDate.AddDays(-1),
	}
}
