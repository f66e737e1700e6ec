package billing_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func money(s string) generic.Money { return generic.MustMoney(s) }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newEngine(today generic.TimePoint) *billing.Engine {
	return billing.NewEngine(billing.Options{
		Clock: generic.FixedClock{Day: today},
		NewID: sequentialIDs(),
	})
}

func mustCard(t *testing.T, e *billing.Engine, limit string, anchor int) billing.Card {
	t.Helper()
	c, err := e.CreateCard(billing.CardInput{
		IssuerName: "Test Bank",
		Limit:      money(limit),
		AnchorDay:  anchor,
	})
	require.NoError(t, err)
	return c
}

func mustCharge(t *testing.T, e *billing.Engine, cardID generic.CardID, total string, n int, purchase generic.TimePoint) (billing.Charge, billing.Invoice) {
	t.Helper()
	ch, inv, err := e.CreateCharge(cardID, billing.ChargeInput{
		TotalValue:   money(total),
		Installments: n,
		PurchaseDate: purchase,
	})
	require.NoError(t, err)
	return ch, inv
}

func usedOf(t *testing.T, e *billing.Engine, id generic.CardID) generic.Money {
	t.Helper()
	c, err := e.Card(id)
	require.NoError(t, err)
	return c.Used
}

func requireMoney(t *testing.T, want string, got generic.Money, msgAndArgs ...interface{}) {
	t.Helper()
	require.Equal(t, want, got.String(), msgAndArgs...)
}

// sumRemaining is Σ remaining(charge) over the card's active charges.
func sumRemaining(t *testing.T, e *billing.Engine, id generic.CardID) generic.Money {
	t.Helper()
	charges, err := e.ChargesForCard(id)
	require.NoError(t, err)
	total := generic.Zero()
	for _, ch := range charges {
		total = total.Add(billing.Remaining(ch))
	}
	return total
}

// requireNoEmptyInvoices checks that no invoice exists without charges.
func requireNoEmptyInvoices(t *testing.T, e *billing.Engine) {
	t.Helper()
	for _, inv := range e.Invoices() {
		require.NotEmpty(t, inv.Charges, "invoice %s exists with no charges", inv.ID)
	}
}
