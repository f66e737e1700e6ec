package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/household-finance/generic"
)

// PaymentEvent is the message published for every payment record that
// reaches the ledger. Amount is a fixed two-decimal string so consumers never
// see float rounding.
type PaymentEvent struct {
	TransactionID  string    `json:"transaction_id"`
	Type           string    `json:"type"`
	Date           string    `json:"date"`
	Amount         string    `json:"amount"`
	CardID         string    `json:"card_id,omitempty"`
	InvoiceID      string    `json:"invoice_id,omitempty"`
	ChargeID       string    `json:"charge_id,omitempty"`
	Reference      string    `json:"reference,omitempty"`
	Description    string    `json:"description,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}

// NewPaymentEvent builds the message for tx.
func NewPaymentEvent(tx generic.Transaction, now time.Time) *PaymentEvent {
	return &PaymentEvent{
		TransactionID:  string(tx.ID),
		Type:           string(tx.Type),
		Date:           tx.Date.String(),
		Amount:         tx.Amount.String(),
		CardID:         string(tx.CardID),
		InvoiceID:      string(tx.InvoiceID),
		ChargeID:       string(tx.ChargeID),
		Reference:      tx.Reference,
		Description:    tx.Description,
		IdempotencyKey: tx.IdempotencyKey,
		PublishedAt:    now.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Transaction converts the message back into a ledger record.
func (m *PaymentEvent) Transaction() (generic.Transaction, error) {
	amount, err := generic.ParseMoney(m.Amount)
	if err != nil {
		return generic.Transaction{}, fmt.Errorf("amount: %w", err)
	}
	date, err := generic.ParseTimePoint(m.Date)
	if err != nil {
		return generic.Transaction{}, fmt.Errorf("date: %w", err)
	}
	return generic.Transaction{
		ID:             generic.TransactionID(m.TransactionID),
		Type:           generic.TransactionType(m.Type),
		Date:           date,
		Amount:         amount,
		CardID:         generic.CardID(m.CardID),
		InvoiceID:      generic.InvoiceID(m.InvoiceID),
		ChargeID:       generic.ChargeID(m.ChargeID),
		Reference:      m.Reference,
		Description:    m.Description,
		IdempotencyKey: m.IdempotencyKey,
	}, nil
}

// PaymentEventFromJSON decodes a message published by Publisher.
func PaymentEventFromJSON(data []byte) (*PaymentEvent, error) {
	var msg PaymentEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RoutingKey is "payment.<type>", so consumers can bind to payment.# or to
// a single payment kind.
func RoutingKey(tx generic.Transaction) string {
	return "payment." + string(tx.Type)
}
