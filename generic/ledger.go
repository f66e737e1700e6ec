/*
ledger.go - Append-only payment ledger

PURPOSE:
  The Ledger is the household's payment history. Every invoice payment,
  single-charge payment and fixed-bill payment is appended here by the
  surrounding application after the engine has applied the state change.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

NOTE ON SCOPE:
  The ledger is history, not the source of truth for card.used. The engine
  keeps card.used as mutable state (see billing/card.go); the ledger only
  records what was paid, when, and against which invoice or charge.

SEE ALSO:
  - store.go: Low-level persistence interface
  - billing/service.go: Appends the records the engine returns
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger records payments.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// Transactions returns all payments for a card, chronologically.
	Transactions(ctx context.Context, cardID CardID) ([]Transaction, error)

	// TransactionsInRange returns payments with Date in [from, to].
	TransactionsInRange(ctx context.Context, cardID CardID, from, to TimePoint) ([]Transaction, error)

	// Recent returns the newest payments across all cards.
	Recent(ctx context.Context, limit int) ([]Transaction, error)

	// TotalPaid sums a card's payments with Date in [from, to].
	TotalPaid(ctx context.Context, cardID CardID, from, to TimePoint) (Money, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) Transactions(ctx context.Context, cardID CardID) ([]Transaction, error) {
	return l.Store.Load(ctx, cardID)
}

func (l *DefaultLedger) TransactionsInRange(ctx context.Context, cardID CardID, from, to TimePoint) ([]Transaction, error) {
	return l.Store.LoadRange(ctx, cardID, from, to)
}

func (l *DefaultLedger) Recent(ctx context.Context, limit int) ([]Transaction, error) {
	return l.Store.LoadAll(ctx, limit)
}

func (l *DefaultLedger) TotalPaid(ctx context.Context, cardID CardID, from, to TimePoint) (Money, error) {
	txs, err := l.Store.LoadRange(ctx, cardID, from, to)
	if err != nil {
		return Money{}, err
	}
	total := Zero()
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total, nil
}
