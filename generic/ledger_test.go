package generic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/household-finance/generic"
	"github.com/warp/household-finance/generic/store"
)

func payment(id string, card generic.CardID, day int, amount string) generic.Transaction {
	return generic.Transaction{
		ID:     generic.TransactionID(id),
		Type:   generic.TxInvoicePayment,
		Date:   generic.NewTimePoint(2025, time.March, day),
		Amount: generic.MustMoney(amount),
		CardID: card,
	}
}

func TestLedger_OrderAndRange(t *testing.T) {
	// GIVEN: payments appended out of date order
	// WHEN: read back per card and in a range
	// THEN: they come back by date; the range is inclusive

	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	require.NoError(t, ledger.Append(ctx, payment("t1", "a", 20, "10")))
	require.NoError(t, ledger.Append(ctx, payment("t2", "a", 5, "20")))
	require.NoError(t, ledger.Append(ctx, payment("t3", "b", 10, "30")))
	require.NoError(t, ledger.Append(ctx, payment("t4", "a", 10, "40")))

	txs, err := ledger.Transactions(ctx, "a")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, generic.TransactionID("t2"), txs[0].ID)
	assert.Equal(t, generic.TransactionID("t4"), txs[1].ID)
	assert.Equal(t, generic.TransactionID("t1"), txs[2].ID)

	inRange, err := ledger.TransactionsInRange(ctx, "a", generic.NewTimePoint(2025, time.March, 5), generic.NewTimePoint(2025, time.March, 10))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)

	total, err := ledger.TotalPaid(ctx, "a", generic.NewTimePoint(2025, time.March, 1), generic.NewTimePoint(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, "70.00", total.String())

	recent, err := ledger.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, generic.TransactionID("t4"), recent[0].ID, "newest first")
	assert.Equal(t, generic.TransactionID("t3"), recent[1].ID)

	all, err := ledger.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLedger_Idempotency(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	tx := payment("t1", "a", 1, "10")
	tx.IdempotencyKey = "fixed_bill:rent:2025-03-01"
	require.NoError(t, ledger.Append(ctx, tx))

	dup := payment("t2", "a", 1, "10")
	dup.IdempotencyKey = tx.IdempotencyKey
	assert.ErrorIs(t, ledger.Append(ctx, dup), generic.ErrDuplicateIdempotencyKey)

	// Payments without a key never collide
	require.NoError(t, ledger.Append(ctx, payment("t3", "a", 2, "5")))
	require.NoError(t, ledger.Append(ctx, payment("t4", "a", 2, "5")))

	txs, err := ledger.Transactions(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}
