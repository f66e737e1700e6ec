package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/household-finance/generic"
	"github.com/warp/household-finance/logging"
)

// =============================================================================
// SERVICE - Engine plus persistence, ledger and event publishing
// =============================================================================
//
// Every mutation follows the same steps:
//
//   1. apply the engine operation (pure, no I/O)
//   2. append the payment record, if any, to the ledger
//   3. publish the payment record to the event sink (failure is logged only)
//   4. save the full engine state to the repository (last write wins)
//
// When step 2 or 4 fails, the in-memory change is kept and the error is
// returned wrapped in generic.ErrPersistence. The next successful save
// persists the whole state again, so nothing has to be replayed.

// EventSink receives payment records after they reach the ledger.
type EventSink interface {
	Publish(ctx context.Context, tx generic.Transaction) error
}

// Service serializes access to an Engine and handles its side effects.
type Service struct {
	mu     sync.Mutex
	engine *Engine
	repo   Repository
	ledger generic.Ledger
	sink   EventSink
	logger *slog.Logger
}

// NewService wires an engine to its collaborators. sink may be nil.
func NewService(engine *Engine, repo Repository, ledger generic.Ledger, sink EventSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine: engine,
		repo:   repo,
		ledger: ledger,
		sink:   sink,
		logger: logging.WithComponent(logger, logging.ComponentBilling),
	}
}

// Load replaces the engine state with the repository's saved state. Callers
// should reload after an ambiguous failure instead of retrying a mutation.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load state: %v", generic.ErrPersistence, err)
	}
	if err := s.engine.Restore(state); err != nil {
		return fmt.Errorf("%w: %v", generic.ErrPersistence, err)
	}
	s.logger.Info("state loaded",
		logging.FieldOperation, logging.OpLoad,
		"cards", len(state.Cards),
		"invoices", len(state.Invoices))
	return nil
}

// Today returns the engine clock's current date.
func (s *Service) Today() generic.TimePoint { return s.engine.opts.Clock.Today() }

// =============================================================================
// CARDS
// =============================================================================

func (s *Service) CreateCard(ctx context.Context, in CardInput) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.engine.CreateCard(in)
	if err != nil {
		s.rejected(logging.OpCreateCard, err)
		return Card{}, err
	}
	s.logger.Info("card created",
		logging.FieldOperation, logging.OpCreateCard,
		logging.FieldCardID, card.ID)
	return card, s.commit(ctx, logging.OpCreateCard, nil)
}

func (s *Service) EditCard(ctx context.Context, id generic.CardID, edit CardEdit) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.engine.EditCard(id, edit)
	if err != nil {
		s.rejected(logging.OpEditCard, err, logging.FieldCardID, id)
		return Card{}, err
	}
	s.logger.Info("card edited",
		logging.FieldOperation, logging.OpEditCard,
		logging.FieldCardID, id)
	return card, s.commit(ctx, logging.OpEditCard, nil)
}

// DeleteCard removes a card and cascades to its invoices.
func (s *Service) DeleteCard(ctx context.Context, id generic.CardID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.engine.DeleteCard(id)
	if err != nil {
		s.rejected(logging.OpDeleteCard, err, logging.FieldCardID, id)
		return 0, err
	}
	s.logger.Warn("card deleted with its invoices",
		logging.FieldOperation, logging.OpDeleteCard,
		logging.FieldCardID, id,
		logging.FieldCount, n)
	return n, s.commit(ctx, logging.OpDeleteCard, nil)
}

func (s *Service) Card(id generic.CardID) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Card(id)
}

func (s *Service) Cards() []Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Cards()
}

func (s *Service) Usage(id generic.CardID) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Usage(id)
}

// Forecast projects the card's upcoming statements.
func (s *Service) Forecast(id generic.CardID, months int) ([]StatementForecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Forecast(id, months)
}

// =============================================================================
// CHARGES AND INVOICES
// =============================================================================

func (s *Service) CreateCharge(ctx context.Context, cardID generic.CardID, in ChargeInput) (Charge, Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, inv, err := s.engine.CreateCharge(cardID, in)
	if err != nil {
		s.rejected(logging.OpCreateCharge, err, logging.FieldCardID, cardID)
		return Charge{}, Invoice{}, err
	}
	s.logger.Info("charge created",
		logging.FieldOperation, logging.OpCreateCharge,
		logging.FieldCardID, cardID,
		logging.FieldChargeID, ch.ID,
		logging.FieldInvoiceID, inv.ID,
		logging.FieldAmount, ch.TotalValue.String(),
		logging.FieldDueDate, inv.DueDate.String())
	return ch, inv, s.commit(ctx, logging.OpCreateCharge, nil)
}

func (s *Service) Invoice(id generic.InvoiceID) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Invoice(id)
}

func (s *Service) InvoicesForCard(id generic.CardID) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.InvoicesForCard(id)
}

func (s *Service) ChargesForCard(id generic.CardID) ([]Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ChargesForCard(id)
}

// PayInvoice settles an invoice. On a persistence error the returned result
// is still valid: the payment was applied in memory.
func (s *Service) PayInvoice(ctx context.Context, id generic.InvoiceID) (PaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payInvoice(ctx, id)
}

func (s *Service) payInvoice(ctx context.Context, id generic.InvoiceID) (PaymentResult, error) {
	res, err := s.engine.PayInvoice(id)
	if err != nil {
		s.rejected(logging.OpPayInvoice, err, logging.FieldInvoiceID, id)
		return PaymentResult{}, err
	}
	s.logPayment(logging.OpPayInvoice, res)
	return res, s.commit(ctx, logging.OpPayInvoice, &res.Transaction)
}

// PayCharge pays a single charge; amount nil means its installment value.
func (s *Service) PayCharge(ctx context.Context, invoiceID generic.InvoiceID, chargeID generic.ChargeID, amount *generic.Money) (PaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.engine.PayCharge(invoiceID, chargeID, amount)
	if err != nil {
		s.rejected(logging.OpPayCharge, err,
			logging.FieldInvoiceID, invoiceID,
			logging.FieldChargeID, chargeID)
		return PaymentResult{}, err
	}
	s.logPayment(logging.OpPayCharge, res)
	return res, s.commit(ctx, logging.OpPayCharge, &res.Transaction)
}

// EditCharge edits a charge. reconcile selects the corrected path that also
// moves Card.Used.
func (s *Service) EditCharge(ctx context.Context, invoiceID generic.InvoiceID, chargeID generic.ChargeID, edit ChargeEdit, reconcile bool) (Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply := s.engine.EditCharge
	if reconcile {
		apply = s.engine.EditChargeWithReconciliation
	}
	ch, err := apply(invoiceID, chargeID, edit)
	if err != nil {
		s.rejected(logging.OpEditCharge, err,
			logging.FieldInvoiceID, invoiceID,
			logging.FieldChargeID, chargeID)
		return Charge{}, err
	}
	s.logger.Info("charge edited",
		logging.FieldOperation, logging.OpEditCharge,
		logging.FieldInvoiceID, invoiceID,
		logging.FieldChargeID, chargeID,
		"reconciled", reconcile)
	return ch, s.commit(ctx, logging.OpEditCharge, nil)
}

func (s *Service) DeleteCharge(ctx context.Context, invoiceID generic.InvoiceID, chargeID generic.ChargeID) (ChargeRemoval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.engine.DeleteCharge(invoiceID, chargeID)
	if err != nil {
		s.rejected(logging.OpDeleteCharge, err,
			logging.FieldInvoiceID, invoiceID,
			logging.FieldChargeID, chargeID)
		return ChargeRemoval{}, err
	}
	s.logger.Info("charge deleted",
		logging.FieldOperation, logging.OpDeleteCharge,
		logging.FieldInvoiceID, invoiceID,
		logging.FieldChargeID, chargeID,
		"released", out.Released.String(),
		"invoice_retired", out.InvoiceRetired)
	return out, s.commit(ctx, logging.OpDeleteCharge, nil)
}

func (s *Service) RecomputeInvoiceTotal(ctx context.Context, id generic.InvoiceID) (generic.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.engine.RecomputeInvoiceTotal(id)
	if err != nil {
		return generic.Money{}, err
	}
	return total, s.commit(ctx, logging.OpRecomputeTotal, nil)
}

// =============================================================================
// AUDIT
// =============================================================================

// Audit reports cards whose Used drifted beyond rounding tolerance.
func (s *Service) Audit() []Drift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Audit()
}

// RepairCard resets a card's Used to the sum of its remaining values.
func (s *Service) RepairCard(ctx context.Context, id generic.CardID) (Drift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.engine.RecomputeCardUsed(id)
	if err != nil {
		return Drift{}, err
	}
	s.logger.Info("card used recomputed",
		logging.FieldOperation, logging.OpRepairUsed,
		logging.FieldCardID, id,
		logging.FieldUsed, d.Recorded.String(),
		logging.FieldExpected, d.Expected.String())
	return d, s.commit(ctx, logging.OpRepairUsed, nil)
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

func (s *Service) Obligations(bills []FixedBill) []Obligation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Obligations(bills)
}

// PayObligation pays either variant. Card invoices go through PayInvoice;
// fixed bills only produce a ledger record, keyed so the same bill and due
// date cannot be paid twice.
func (s *Service) PayObligation(ctx context.Context, o Obligation) (generic.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o := o.(type) {
	case CardInvoice:
		res, err := s.payInvoice(ctx, o.Invoice.ID)
		return res.Transaction, err
	case FixedBill:
		return s.payFixedBill(ctx, o)
	default:
		return generic.Transaction{}, generic.Invalid("obligation", fmt.Sprintf("unsupported kind %T", o))
	}
}

func (s *Service) payFixedBill(ctx context.Context, b FixedBill) (generic.Transaction, error) {
	if err := b.Validate(); err != nil {
		return generic.Transaction{}, err
	}
	if b.Paid {
		return generic.Transaction{}, &generic.InvalidStateError{Kind: "fixed bill", ID: b.ID, Op: "pay", State: "already paid"}
	}

	today := s.Today()
	tx := generic.Transaction{
		ID:             s.engine.newTransactionID(),
		Type:           generic.TxFixedBillPayment,
		Date:           today,
		Amount:         b.Amount,
		Reference:      b.ID,
		Description:    b.Name,
		IdempotencyKey: fmt.Sprintf("fixed_bill:%s:%s", b.ID, b.DueDate),
		CreatedAt:      today,
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			return generic.Transaction{}, &generic.InvalidStateError{Kind: "fixed bill", ID: b.ID, Op: "pay", State: "already paid for " + b.DueDate.String()}
		}
		return generic.Transaction{}, fmt.Errorf("%w: append ledger: %v", generic.ErrPersistence, err)
	}
	s.logger.Info("fixed bill paid",
		logging.FieldOperation, logging.OpPayFixedBill,
		logging.FieldBillID, b.ID,
		logging.FieldAmount, b.Amount.String())
	s.publish(ctx, tx)
	return tx, nil
}

// =============================================================================
// LEDGER
// =============================================================================

// Transactions lists payments for a card, or the newest payments across all
// cards when cardID is empty.
func (s *Service) Transactions(ctx context.Context, cardID generic.CardID, limit int) ([]generic.Transaction, error) {
	if cardID == "" {
		return s.ledger.Recent(ctx, limit)
	}
	return s.ledger.Transactions(ctx, cardID)
}

// TransactionsInPeriod lists a card's payments dated within p.
func (s *Service) TransactionsInPeriod(ctx context.Context, cardID generic.CardID, p generic.Period) ([]generic.Transaction, error) {
	if _, err := s.Card(cardID); err != nil {
		return nil, err
	}
	return s.ledger.TransactionsInRange(ctx, cardID, p.Start, p.End)
}

// PaidInPeriod sums a card's payments dated within p.
func (s *Service) PaidInPeriod(ctx context.Context, cardID generic.CardID, p generic.Period) (generic.Money, error) {
	return s.ledger.TotalPaid(ctx, cardID, p.Start, p.End)
}

// =============================================================================
// SIDE EFFECTS
// =============================================================================

// commit runs steps 2-4. Caller holds s.mu.
func (s *Service) commit(ctx context.Context, op string, tx *generic.Transaction) error {
	var errs []error
	if tx != nil {
		if err := s.ledger.Append(ctx, *tx); err != nil {
			s.logger.Error("ledger append failed",
				logging.FieldOperation, op,
				logging.FieldTxID, tx.ID,
				logging.FieldError, err)
			errs = append(errs, fmt.Errorf("append ledger: %w", err))
		} else {
			s.publish(ctx, *tx)
		}
	}
	start := time.Now()
	if err := s.repo.Save(ctx, s.engine.State()); err != nil {
		s.logger.Error("state save failed",
			logging.FieldOperation, logging.OpSave,
			logging.FieldTrigger, op,
			logging.FieldError, err)
		errs = append(errs, fmt.Errorf("save state: %w", err))
	} else {
		s.logger.Debug("state saved",
			logging.FieldOperation, logging.OpSave,
			logging.FieldTrigger, op,
			logging.FieldDurationMs, time.Since(start).Milliseconds())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", generic.ErrPersistence, errors.Join(errs...))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, tx generic.Transaction) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, tx); err != nil {
		s.logger.Warn("payment event not published",
			logging.FieldOperation, logging.OpPublish,
			logging.FieldTxID, tx.ID,
			logging.FieldError, err)
	}
}

func (s *Service) rejected(op string, err error, args ...any) {
	level := slog.LevelWarn
	if !generic.IsClientError(err) && !generic.IsInvalidState(err) {
		level = slog.LevelError
	}
	args = append([]any{logging.FieldOperation, op, logging.FieldError, err}, args...)
	s.logger.Log(context.Background(), level, "operation rejected", args...)
}

func (s *Service) logPayment(op string, res PaymentResult) {
	s.logger.Info("payment applied",
		logging.FieldOperation, op,
		logging.FieldTxID, res.Transaction.ID,
		logging.FieldCardID, res.Transaction.CardID,
		logging.FieldInvoiceID, res.Transaction.InvoiceID,
		logging.FieldAmount, res.Transaction.Amount.String(),
		logging.FieldOutcome, res.Outcome,
		"retired_charges", len(res.RetiredCharges))
}
