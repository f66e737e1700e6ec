/*
Package generic provides the domain-agnostic primitives of the household-finance engine.

PURPOSE:
  This package contains the value types and small services every finance
  component shares: a 2-decimal money type, calendar dates, the error
  taxonomy, and the append-only payment ledger. The credit-card billing
  engine (package billing) is built on top of these.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A 2-decimal fixed-point amount. Every arithmetic operation rounds
    to cents immediately, so intermediate results never carry sub-cent noise.
  - Transaction: An immutable ledger record of one payment.
  - Identifiers: Type-safe ids for cards, invoices, charges and transactions.

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for monetary values
  2. Rounding: Round(2) after every operation, half away from zero
  3. Type Safety: Distinct id types prevent mixing card/invoice/charge ids
  4. Auditability: Every payment produces a Transaction with a reference

USAGE:
  price := generic.MustMoney("300.00")
  slice := price.Div(3) // 100.00
  used := generic.Zero().Add(price)

SEE ALSO:
  - time.go: TimePoint and month arithmetic
  - errors.go: ValidationError, InvalidStateError and friends
  - ledger.go: Transaction persistence interface
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - 2-decimal fixed-point amount
// =============================================================================

// Places is the number of decimal places every Money value is rounded to.
const Places = 2

// Money is a monetary amount rounded to cents.
//
// The zero value is a valid 0.00.
type Money struct {
	Value decimal.Decimal
}

func round(d decimal.Decimal) Money { return Money{Value: d.Round(Places)} }

// NewMoneyFromCents builds a Money from an integer number of cents.
func NewMoneyFromCents(cents int64) Money { return Money{Value: decimal.New(cents, -Places)} }

// ParseMoney parses a decimal string such as "12.34". A comma decimal separator
// is accepted as well.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(normalizeSeparator(s))
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return round(d), nil
}

// MustMoney is ParseMoney for literals; it panics on malformed input.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns 0.00.
func Zero() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money  { return round(m.Value.Add(o.Value)) }
func (m Money) Sub(o Money) Money  { return round(m.Value.Sub(o.Value)) }
func (m Money) MulInt(n int) Money { return round(m.Value.Mul(decimal.NewFromInt(int64(n)))) }

// Div divides by n and rounds to cents. Division by zero returns zero.
func (m Money) Div(n int) Money {
	if n == 0 {
		return Zero()
	}
	return round(m.Value.Div(decimal.NewFromInt(int64(n))))
}

// FloorZero returns m, or 0.00 when m is negative.
func (m Money) FloorZero() Money {
	if m.Value.IsNegative() {
		return Zero()
	}
	return m
}

func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) Abs() Money               { return Money{Value: m.Value.Abs()} }
func (m Money) String() string           { return m.Value.StringFixed(Places) }

// Percent returns m as a percentage of total, rounded to 2 places.
// A zero total yields zero.
func (m Money) Percent(total Money) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return m.Value.Mul(decimal.NewFromInt(100)).Div(total.Value).Round(Places)
}

func normalizeSeparator(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] == ',' {
			out[i] = '.'
		}
	}
	return string(out)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CardID string
type InvoiceID string
type ChargeID string
type TransactionID string

// =============================================================================
// TRANSACTION - Immutable payment record
// =============================================================================

type TransactionType string

const (
	TxInvoicePayment   TransactionType = "invoice_payment"    // Whole billing period settled
	TxChargePayment    TransactionType = "charge_payment"     // One charge paid inside an open invoice
	TxFixedBillPayment TransactionType = "fixed_bill_payment" // Ordinary bill outside the card engine
)

// Transaction records one payment for the household's history.
// Exactly one of InvoiceID/ChargeID is the primary reference; ChargeID is set
// only for charge payments.
type Transaction struct {
	ID             TransactionID
	Type           TransactionType
	Date           TimePoint
	Amount         Money
	CardID         CardID
	InvoiceID      InvoiceID
	ChargeID       ChargeID
	Reference      string // Free-form reference, e.g. a fixed bill id
	Description    string
	IdempotencyKey string
	CreatedAt      TimePoint
}
