// Package logging builds the structured loggers used across the service.
//
// Every logger carries a "component" attribute so output from the engine,
// storage, broker and HTTP layers can be filtered apart.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Field names for structured logging.
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldCardID      = "card_id"
	FieldInvoiceID   = "invoice_id"
	FieldChargeID    = "charge_id"
	FieldTxID        = "transaction_id"
	FieldAmount      = "amount"
	FieldOutcome     = "outcome"
	FieldDueDate     = "due_date"
	FieldUsed        = "used"
	FieldExpected    = "expected"
	FieldDifference  = "difference"
	FieldCount       = "count"
	FieldInterval    = "interval"
	FieldAddr        = "addr"
	FieldDurationMs  = "duration_ms"
	FieldTrigger     = "trigger"
	FieldBillID      = "bill_id"
	FieldExchange    = "exchange"
	FieldRoutingKey  = "routing_key"
	FieldDBPath      = "db_path"
	FieldEnforcement = "enforce_limit"
)

// Component names.
const (
	ComponentApp       = "app"
	ComponentBilling   = "billing"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentBroker    = "broker"
	ComponentScheduler = "scheduler"
)

// Operation names.
const (
	OpCreateCard     = "create_card"
	OpEditCard       = "edit_card"
	OpDeleteCard     = "delete_card"
	OpCreateCharge   = "create_charge"
	OpPayInvoice     = "pay_invoice"
	OpPayCharge      = "pay_charge"
	OpPayFixedBill   = "pay_fixed_bill"
	OpEditCharge     = "edit_charge"
	OpDeleteCharge   = "delete_charge"
	OpRecomputeTotal = "recompute_total"
	OpRepairUsed     = "repair_used"
	OpAudit          = "audit"
	OpLoad           = "load"
	OpSave           = "save"
	OpPublish        = "publish"
	OpStartup        = "startup"
	OpShutdown       = "shutdown"
)

// Config holds logger configuration.
type Config struct {
	Level     slog.Level
	Format    string // "text" or "json"
	Component string
	Output    io.Writer
}

// DefaultConfig returns info-level text logging to stdout.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: os.Stdout,
	}
}

// New creates a logger. It is tagged with cfg.Component when one is set;
// otherwise derive tagged loggers with WithComponent.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With(FieldComponent, cfg.Component)
	}
	return logger
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithComponent derives a logger for another component.
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(FieldComponent, component)
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
