package billing

import (
	"sort"

	"github.com/warp/household-finance/generic"
)

// =============================================================================
// STATEMENT FORECAST
// =============================================================================
//
// The forecast answers "how much will this card bill in each coming month if
// every invoice is paid in full on its due date?". It replays the rollover
// without mutating anything: an invoice due on D bills every member charge's
// installment value on D, D+1 month, D+2 months, ... until the charge has no
// installments left.
//
// Invoices that would roll onto the same date add up, as the merge on
// rollover does. Installment values are used as is, so the forecast carries
// the same per-installment rounding the payments will.

// StatementForecast is the projected bill of one due date.
type StatementForecast struct {
	DueDate generic.TimePoint
	Amount  generic.Money
	Charges int // charges with an installment due on DueDate
}

// Forecast projects a card's upcoming statements, earliest first. months
// caps the number of statements returned; zero or less returns all of them.
// Installments due after the months-th statement are not replayed.
func (e *Engine) Forecast(cardID generic.CardID, months int) ([]StatementForecast, error) {
	if _, err := e.card(cardID); err != nil {
		return nil, err
	}

	var invoices []*Invoice
	for _, id := range e.invoiceOrder {
		if inv := e.invoices[id]; inv.CardID == cardID {
			invoices = append(invoices, inv)
		}
	}

	var horizon generic.TimePoint
	if months > 0 && len(invoices) > 0 {
		first := invoices[0].DueDate
		for _, inv := range invoices[1:] {
			if inv.DueDate.Before(first) {
				first = inv.DueDate
			}
		}
		horizon = first.AddMonths(months - 1)
	}

	byDate := make(map[string]*StatementForecast)
	for _, inv := range invoices {
		for _, ch := range inv.Charges {
			due := inv.DueDate
			for n := ch.CurrentInstallment; n <= ch.TotalInstallments; n++ {
				if !horizon.IsZero() && due.After(horizon) {
					break
				}
				key := due.String()
				f, ok := byDate[key]
				if !ok {
					f = &StatementForecast{DueDate: due, Amount: generic.Zero()}
					byDate[key] = f
				}
				f.Amount = f.Amount.Add(ch.InstallmentValue)
				f.Charges++
				due = due.AddMonths(1)
			}
		}
	}

	out := make([]StatementForecast, 0, len(byDate))
	for _, f := range byDate {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	if months > 0 && len(out) > months {
		out = out[:months]
	}
	return out, nil
}
