package billing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/generic"
)

func TestCreateCard(t *testing.T) {
	e := newEngine(date(2025, time.March, 1))

	card, err := e.CreateCard(billing.CardInput{
		IssuerName: "  Nubank ",
		Limit:      money("2500"),
		AnchorDay:  7,
		BrandImage: "mastercard.png",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, card.ID)
	assert.Equal(t, "Nubank", card.IssuerName)
	requireMoney(t, "0.00", card.Used)
	assert.Equal(t, 7, card.AnchorDay)
	assert.Equal(t, "2025-03-01", card.CreatedAt.String())
	assert.Len(t, e.Cards(), 1)
}

func TestCreateCard_Validation(t *testing.T) {
	e := newEngine(date(2025, time.March, 1))

	tests := []struct {
		name string
		in   billing.CardInput
	}{
		{"empty issuer", billing.CardInput{IssuerName: " ", Limit: money("10"), AnchorDay: 5}},
		{"zero limit", billing.CardInput{IssuerName: "x", Limit: money("0"), AnchorDay: 5}},
		{"anchor 0", billing.CardInput{IssuerName: "x", Limit: money("10"), AnchorDay: 0}},
		{"anchor 29", billing.CardInput{IssuerName: "x", Limit: money("10"), AnchorDay: 29}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateCard(tt.in)
			assert.True(t, errors.Is(err, generic.ErrValidation))
		})
	}
	assert.Empty(t, e.Cards())
}

func TestEditCard_AnchorChangeKeepsOutstandingDueDates(t *testing.T) {
	// GIVEN: a card with anchor 5 and an invoice due March 5
	// WHEN: the anchor moves to 20
	// THEN: the existing invoice keeps March 5; new purchases use 20

	e := newEngine(date(2025, time.March, 1))
	card := mustCard(t, e, "1000", 5)
	_, inv := mustCharge(t, e, card.ID, "10", 1, date(2025, time.March, 1))

	anchor := 20
	limit := money("3000")
	edited, err := e.EditCard(card.ID, billing.CardEdit{AnchorDay: &anchor, Limit: &limit, IssuerName: strPtr("Itau")})
	require.NoError(t, err)
	assert.Equal(t, 20, edited.AnchorDay)
	assert.Equal(t, "Itau", edited.IssuerName)
	requireMoney(t, "3000.00", edited.Limit)
	requireMoney(t, "10.00", edited.Used, "used is not recomputed")

	got, err := e.Invoice(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-05", got.DueDate.String())

	_, next := mustCharge(t, e, card.ID, "10", 1, date(2025, time.March, 2))
	assert.Equal(t, "2025-03-20", next.DueDate.String())
}

func TestEditCard_ValidationIsAllOrNothing(t *testing.T) {
	e := newEngine(date(2025, time.March, 1))
	card := mustCard(t, e, "1000", 5)

	bad := 31
	_, err := e.EditCard(card.ID, billing.CardEdit{IssuerName: strPtr("New"), AnchorDay: &bad})
	assert.True(t, errors.Is(err, generic.ErrValidation))

	got, err := e.Card(card.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Bank", got.IssuerName)

	_, err = e.EditCard("missing", billing.CardEdit{})
	assert.True(t, generic.IsNotFound(err))
}

func TestDeleteCard_CascadesToInvoices(t *testing.T) {
	e := newEngine(date(2025, time.March, 1))
	doomed := mustCard(t, e, "1000", 5)
	kept := mustCard(t, e, "1000", 5)
	mustCharge(t, e, doomed.ID, "10", 1, date(2025, time.March, 1))
	mustCharge(t, e, doomed.ID, "10", 1, date(2025, time.April, 1))
	_, keptInv := mustCharge(t, e, kept.ID, "10", 1, date(2025, time.March, 1))

	n, err := e.DeleteCard(doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = e.Card(doomed.ID)
	assert.True(t, generic.IsNotFound(err))
	_, err = e.InvoicesForCard(doomed.ID)
	assert.True(t, generic.IsNotFound(err))

	all := e.Invoices()
	require.Len(t, all, 1)
	assert.Equal(t, keptInv.ID, all[0].ID)
	assert.Len(t, e.Cards(), 1)
}

func TestUsage(t *testing.T) {
	e := newEngine(date(2025, time.March, 1))
	card := mustCard(t, e, "1000", 5)
	mustCharge(t, e, card.ID, "333.33", 3, date(2025, time.March, 1))

	u, err := e.Usage(card.ID)
	require.NoError(t, err)
	requireMoney(t, "1000.00", u.Limit)
	requireMoney(t, "333.33", u.Used)
	requireMoney(t, "666.67", u.Available)
	assert.Equal(t, "33.33", u.PercentUsed.StringFixed(2))
}
