/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists the billing engine state (cards, invoices, charges) and the
  append-only payment ledger in one SQLite database.

INTERFACES IMPLEMENTED:
  billing.Repository: Full engine state, saved as a snapshot (Store)
  generic.Store:      Payment transaction persistence (TransactionStore)

SAVE SEMANTICS:
  Save replaces every card, invoice and charge row inside one database
  transaction. It is last-write-wins: whatever the caller passes becomes the
  stored state. The transactions table is never touched by Save.

APPEND-ONLY ENFORCEMENT:
  The ledger side never issues UPDATE or DELETE on the transactions table.

KEY TABLES:
  cards:        One row per card, position keeps registration order
  invoices:     card_id cascades on delete; partial unique index keeps one
                open invoice per (card_id, due_date)
  charges:      invoice_id cascades on delete
  transactions: Payment ledger, survives card deletion

MIGRATION:
  Schema lives in migrations/*.sql, embedded and applied with golang-migrate
  when the store opens.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is limited to
  one connection, since every new connection would see an empty database.

USAGE:
  store, err := sqlite.New("./data/household.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store.Transactions())
  svc := billing.NewService(engine, store, ledger, nil, logger)

SEE ALSO:
  - billing/repository.go: Repository interface and in-memory version
  - generic/store.go: Store interface
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/generic"
)

// Store implements billing.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// ENGINE STATE (billing.Repository interface)
// =============================================================================

// Save replaces the stored cards, invoices and charges with s.
func (s *Store) Save(ctx context.Context, state billing.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// charges and invoices go with their cards through ON DELETE CASCADE
	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM cards"); err != nil {
		return fmt.Errorf("failed to clear cards: %w", err)
	}

	for i, c := range state.Cards {
		if err := insertCard(ctx, sqlTx, c, i); err != nil {
			return err
		}
	}
	for i, inv := range state.Invoices {
		if err := insertInvoice(ctx, sqlTx, inv, i); err != nil {
			return err
		}
		for j, ch := range inv.Charges {
			if err := insertCharge(ctx, sqlTx, inv.ID, ch, j); err != nil {
				return err
			}
		}
	}

	return sqlTx.Commit()
}

func insertCard(ctx context.Context, db execer, c billing.Card, pos int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO cards (id, issuer_name, limit_value, used, rounding_residue, anchor_day, brand_image, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.IssuerName, c.Limit.String(), c.Used.String(), c.RoundingResidue.String(), c.AnchorDay, c.BrandImage,
		formatDate(c.CreatedAt), pos,
	)
	if err != nil {
		return fmt.Errorf("failed to save card %s: %w", c.ID, err)
	}
	return nil
}

func insertInvoice(ctx context.Context, db execer, inv billing.Invoice, pos int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO invoices (id, card_id, due_date, total, paid, position)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.CardID, formatDate(inv.DueDate), inv.Total.String(), inv.Paid, pos,
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice %s: %w", inv.ID, err)
	}
	return nil
}

func insertCharge(ctx context.Context, db execer, invoiceID generic.InvoiceID, ch billing.Charge, pos int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO charges
		(id, invoice_id, card_id, category, description, total_value, installment_value,
		 total_installments, current_installment, purchase_date, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, invoiceID, ch.CardID, ch.Category, ch.Description,
		ch.TotalValue.String(), ch.InstallmentValue.String(),
		ch.TotalInstallments, ch.CurrentInstallment, formatDate(ch.PurchaseDate), pos,
	)
	if err != nil {
		return fmt.Errorf("failed to save charge %s: %w", ch.ID, err)
	}
	return nil
}

// Load reads the full engine state in saved order.
func (s *Store) Load(ctx context.Context) (billing.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards, err := s.loadCards(ctx)
	if err != nil {
		return billing.State{}, err
	}
	invoices, err := s.loadInvoices(ctx)
	if err != nil {
		return billing.State{}, err
	}
	charges, err := s.loadCharges(ctx)
	if err != nil {
		return billing.State{}, err
	}
	for i := range invoices {
		invoices[i].Charges = charges[invoices[i].ID]
	}

	return billing.State{Cards: cards, Invoices: invoices}, nil
}

func (s *Store) loadCards(ctx context.Context) ([]billing.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issuer_name, limit_value, used, rounding_residue, anchor_day, brand_image, created_at
		FROM cards ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []billing.Card
	for rows.Next() {
		var (
			c                               billing.Card
			limit, used, residue, createdAt string
		)
		if err := rows.Scan(&c.ID, &c.IssuerName, &limit, &used, &residue, &c.AnchorDay, &c.BrandImage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		if c.Limit, err = generic.ParseMoney(limit); err != nil {
			return nil, err
		}
		if c.Used, err = generic.ParseMoney(used); err != nil {
			return nil, err
		}
		if c.RoundingResidue, err = generic.ParseMoney(residue); err != nil {
			return nil, err
		}
		c.CreatedAt = parseDate(createdAt)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *Store) loadInvoices(ctx context.Context) ([]billing.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, due_date, total, paid
		FROM invoices ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		var (
			inv        billing.Invoice
			due, total string
		)
		if err := rows.Scan(&inv.ID, &inv.CardID, &due, &total, &inv.Paid); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		if inv.Total, err = generic.ParseMoney(total); err != nil {
			return nil, err
		}
		inv.DueDate = parseDate(due)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *Store) loadCharges(ctx context.Context) (map[generic.InvoiceID][]billing.Charge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, id, card_id, category, description, total_value, installment_value,
		       total_installments, current_installment, purchase_date
		FROM charges ORDER BY invoice_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	out := make(map[generic.InvoiceID][]billing.Charge)
	for rows.Next() {
		var (
			invoiceID                 generic.InvoiceID
			ch                        billing.Charge
			total, installment, bought string
		)
		if err := rows.Scan(&invoiceID, &ch.ID, &ch.CardID, &ch.Category, &ch.Description,
			&total, &installment, &ch.TotalInstallments, &ch.CurrentInstallment, &bought); err != nil {
			return nil, fmt.Errorf("failed to scan charge: %w", err)
		}
		if ch.TotalValue, err = generic.ParseMoney(total); err != nil {
			return nil, err
		}
		if ch.InstallmentValue, err = generic.ParseMoney(installment); err != nil {
			return nil, err
		}
		ch.PurchaseDate = parseDate(bought)
		out[invoiceID] = append(out[invoiceID], ch)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

// TransactionStore is the payment ledger side of a Store. It shares the
// Store's connection and lock.
type TransactionStore struct {
	s *Store
}

// Transactions returns the ledger view of the store.
func (s *Store) Transactions() *TransactionStore {
	return &TransactionStore{s: s}
}

const selectTransactions = `
	SELECT id, tx_type, tx_date, amount, card_id, invoice_id, charge_id,
	       reference, description, idempotency_key, created_at
	FROM transactions`

// Append adds a payment to the ledger.
func (t *TransactionStore) Append(ctx context.Context, tx generic.Transaction) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	return appendTx(ctx, t.s.db, tx)
}

func appendTx(ctx context.Context, db execer, tx generic.Transaction) error {
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = generic.FromTime(time.Now())
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, tx_type, tx_date, amount, card_id, invoice_id, charge_id,
		 reference, description, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.Type,
		formatDate(tx.Date),
		tx.Amount.String(),
		nullString(string(tx.CardID)),
		nullString(string(tx.InvoiceID)),
		nullString(string(tx.ChargeID)),
		nullString(tx.Reference),
		nullString(tx.Description),
		nullString(tx.IdempotencyKey),
		formatDate(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Load returns a card's payments ordered by date.
func (t *TransactionStore) Load(ctx context.Context, cardID generic.CardID) ([]generic.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	return t.query(ctx, selectTransactions+`
		WHERE card_id = ?
		ORDER BY tx_date ASC, rowid ASC`, cardID)
}

// LoadRange returns a card's payments with date in [from, to].
func (t *TransactionStore) LoadRange(ctx context.Context, cardID generic.CardID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	return t.query(ctx, selectTransactions+`
		WHERE card_id = ? AND tx_date >= ? AND tx_date <= ?
		ORDER BY tx_date ASC, rowid ASC`, cardID, formatDate(from), formatDate(to))
}

// LoadAll returns the newest payments first. limit <= 0 means no limit.
func (t *TransactionStore) LoadAll(ctx context.Context, limit int) ([]generic.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	return t.query(ctx, selectTransactions+`
		ORDER BY rowid DESC
		LIMIT ?`, limit)
}

// Exists checks if an idempotency key exists.
func (t *TransactionStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var count int
	err := t.s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func (t *TransactionStore) query(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := t.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx                                  generic.Transaction
		date, amount, createdAt             string
		cardID, invoiceID, chargeID         sql.NullString
		reference, description, idempotency sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.Type, &date, &amount, &cardID, &invoiceID, &chargeID,
		&reference, &description, &idempotency, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Amount, err = generic.ParseMoney(amount); err != nil {
		return tx, err
	}
	tx.Date = parseDate(date)
	tx.CreatedAt = parseDate(createdAt)
	tx.CardID = generic.CardID(cardID.String)
	tx.InvoiceID = generic.InvoiceID(invoiceID.String)
	tx.ChargeID = generic.ChargeID(chargeID.String)
	tx.Reference = reference.String
	tx.Description = description.String
	tx.IdempotencyKey = idempotency.String
	return tx, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatDate(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

func parseDate(s string) generic.TimePoint {
	tp, err := generic.ParseTimePoint(s)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
