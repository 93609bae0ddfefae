package loan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/metrics"
)

// Sweeper periodically recomputes fines on active loans, escalates
// capped fines to account blocks, and emits reminder notifications.
// It never unblocks; only fine settlement does.
type Sweeper struct {
	ledger   Ledger
	notifier Notifier
	tariff   Tariff
	interval time.Duration
	now      func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepClock overrides the time source, for tests.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(ledger Ledger, notifier Notifier, tariff Tariff, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		ledger:   ledger,
		notifier: notifier,
		tariff:   tariff,
		interval: interval,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Report aggregates the outcome of one sweep. Per-loan failures are
// collected here and never abort the scan.
type Report struct {
	StartedAt time.Time    `json:"started_at"`
	Scanned   int          `json:"scanned"`
	Updated   int          `json:"updated"`
	Blocked   int          `json:"blocked"`
	Reminded  int          `json:"reminded"`
	Errors    []SweepError `json:"errors,omitempty"`
}

// SweepError records which loan failed and why.
type SweepError struct {
	LoanID uuid.UUID `json:"loan_id"`
	Err    string    `json:"error"`
}

// Start runs a sweep immediately and then on every interval tick until
// the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logRun(s.RunOnce(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logRun(s.RunOnce(ctx))
		}
	}
}

func (s *Sweeper) logRun(report *Report) {
	slog.Info("overdue sweep finished",
		"scanned", report.Scanned,
		"updated", report.Updated,
		"blocked", report.Blocked,
		"reminded", report.Reminded,
		"errors", len(report.Errors),
	)
}

// RunOnce scans every approved, unreturned loan and processes each in
// its own transaction so one failure cannot stall the rest.
func (s *Sweeper) RunOnce(ctx context.Context) *Report {
	report := &Report{StartedAt: s.now()}

	metrics.SweepRun()

	loans, err := s.ledger.ListActive(ctx)
	if err != nil {
		report.Errors = append(report.Errors, SweepError{Err: fmt.Sprintf("listing active loans: %v", err)})
		metrics.SweepError()

		return report
	}

	for _, l := range loans {
		report.Scanned++

		metrics.SweepLoanScanned()

		if err := s.sweepLoan(ctx, l.ID, report); err != nil {
			report.Errors = append(report.Errors, SweepError{LoanID: l.ID, Err: err.Error()})
			metrics.SweepError()
		}
	}

	return report
}

// sweepLoan recomputes one loan's fine and applies the block threshold.
// The fine write and any account flip commit together; notifications go
// out after commit, best-effort.
func (s *Sweeper) sweepLoan(ctx context.Context, loanID uuid.UUID, report *Report) error {
	ref, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return fmt.Errorf("loan %s: %w", loanID, err)
	}

	if !ref.Active() {
		return nil // returned since the scan started
	}

	var (
		swept   *Loan
		blocked bool
	)

	err = runTx(ctx, s.ledger, []LockKey{LockUser(ref.UserID)}, func(tx LedgerTx) error {
		l, err := tx.GetForUpdate(ctx, loanID)
		if err != nil {
			return fmt.Errorf("loan %s: %w", loanID, err)
		}

		if !l.Active() {
			return nil // a concurrent return won; its fine is final
		}

		fine := s.tariff.Fine(*l.ApprovedAt, s.now())

		// Never decrease an accrued fine while the loan is out.
		if fine > l.FineAmount {
			l.FineAmount = fine
			if err := tx.Update(ctx, l); err != nil {
				return err
			}

			report.Updated++
		}

		if fine >= s.tariff.Cap {
			already, err := tx.AccountBlocked(ctx, l.UserID)
			if err != nil {
				return fmt.Errorf("reading block status of user %s: %w", l.UserID, err)
			}

			if !already {
				if err := tx.SetAccountBlocked(ctx, l.UserID, true); err != nil {
					return fmt.Errorf("blocking user %s: %w", l.UserID, err)
				}

				blocked = true
			}
		}

		swept = l

		return nil
	})
	if err != nil {
		return err
	}

	if swept == nil {
		return nil
	}

	if blocked {
		report.Blocked++

		metrics.AccountBlocked()

		if err := s.notifier.NotifyBlocked(ctx, swept.UserID, swept); err != nil {
			slog.Warn("blocked notification failed", "loan_id", swept.ID, "user_id", swept.UserID, "error", err)
		}
	}

	if swept.FineAmount > 0 {
		days := s.tariff.OverdueDays(*swept.ApprovedAt, s.now())
		if err := s.notifier.NotifyOverdue(ctx, swept, days); err != nil {
			return fmt.Errorf("overdue notification for loan %s: %w", swept.ID, err)
		}

		report.Reminded++
	}

	return nil
}
