/*
scheduler.go - Automated drift audit scheduler

PURPOSE:
  Periodically compares every card's used amount with the sum of its
  charges' remaining values and reports cards that drifted beyond rounding
  tolerance. With AutoRepair on, drifted cards are reset to the expected
  amount.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Repairs go through billing.Service so they are persisted like any
    other mutation

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - AutoRepair:    Whether drifted cards are repaired (default: false)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAuditScheduler(service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetAudit and ReconcileCard endpoints (manual audit/repair)
  - billing/reconcile.go: Audit and RecomputeCardUsed
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/household-finance/billing"
	"github.com/warp/household-finance/logging"
)

// AuditScheduler runs the drift audit on a timer.
type AuditScheduler struct {
	Service       *billing.Service
	CheckInterval time.Duration
	AutoRepair    bool
	Enabled       bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// AuditRun summarizes one audit pass.
type AuditRun struct {
	Drifts   []billing.Drift
	Repaired int
	Failed   int
}

// NewAuditScheduler creates a new scheduler.
func NewAuditScheduler(service *billing.Service, logger *slog.Logger) *AuditScheduler {
	return &AuditScheduler{
		Service:       service,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logging.WithComponent(logger, logging.ComponentScheduler),
	}
}

// Start begins the scheduler.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.logger.Info("audit scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.logger.Info("audit scheduler started",
		logging.FieldInterval, s.CheckInterval.String(),
		"auto_repair", s.AutoRepair)
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("audit scheduler stopped")
	}
}

func (s *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce performs a single audit pass.
func (s *AuditScheduler) RunOnce(ctx context.Context) AuditRun {
	run := AuditRun{Drifts: s.Service.Audit()}

	for _, d := range run.Drifts {
		s.logger.Warn("card used drifted from charges",
			logging.FieldOperation, logging.OpAudit,
			logging.FieldCardID, d.CardID,
			logging.FieldUsed, d.Recorded.String(),
			logging.FieldExpected, d.Expected.String(),
			logging.FieldDifference, d.Difference().String())

		if !s.AutoRepair {
			continue
		}
		if _, err := s.Service.RepairCard(ctx, d.CardID); err != nil {
			run.Failed++
			s.logger.Error("card repair failed",
				logging.FieldCardID, d.CardID,
				logging.FieldError, err)
			continue
		}
		run.Repaired++
	}

	if len(run.Drifts) > 0 {
		s.logger.Info("audit completed",
			logging.FieldCount, len(run.Drifts),
			"repaired", run.Repaired,
			"failed", run.Failed)
	}
	return run
}
