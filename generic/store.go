/*
store.go - Persistence interface for payment transactions

PURPOSE:
  Defines the interface between the payment ledger and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  A write carrying an idempotency key that already exists is rejected with
  ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store handles persistence of payment transactions.
// Store is append-only: there is no Update and no Delete.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// Load returns every transaction for a card, ordered by Date.
	Load(ctx context.Context, cardID CardID) ([]Transaction, error)

	// LoadRange returns a card's transactions with Date in [from, to].
	LoadRange(ctx context.Context, cardID CardID, from, to TimePoint) ([]Transaction, error)

	// LoadAll returns the newest transactions across all cards, newest first.
	LoadAll(ctx context.Context, limit int) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
