package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/backoff"
	"github.com/okulib/circulate/internal/metrics"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=loan

// Ledger is the durable loan store. All reads outside a transaction
// are point-in-time; every mutating operation runs inside a LedgerTx.
type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*Loan, error)
	List(ctx context.Context, filter ListFilter) ([]*Loan, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error)
	ListActiveForBook(ctx context.Context, bookID uuid.UUID) ([]*Loan, error)
	ListActive(ctx context.Context) ([]*Loan, error)

	// Begin opens a transaction holding mutual-exclusion locks for the
	// given keys. Two transactions sharing a key serialize on Begin.
	Begin(ctx context.Context, keys ...LockKey) (LedgerTx, error)
}

// LedgerTx is one transactional scope over the ledger and the account
// rows it may flip as a side effect. Either Commit applies everything
// or Rollback applies nothing.
type LedgerTx interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Loan, error)
	ActiveForBook(ctx context.Context, bookID uuid.UUID) (*Loan, error)
	ActiveCountForUser(ctx context.Context, userID uuid.UUID) (int, error)
	Insert(ctx context.Context, l *Loan) error
	Update(ctx context.Context, l *Loan) error
	UnpaidFines(ctx context.Context, userID uuid.UUID) (int64, error)
	AccountBlocked(ctx context.Context, userID uuid.UUID) (bool, error)
	SetAccountBlocked(ctx context.Context, userID uuid.UUID, blocked bool) error
	Commit() error
	Rollback() error
}

// LockKey names a mutual-exclusion slot: one per book for the custody
// invariant, one per user for the borrow ceiling.
type LockKey struct {
	Scope string
	ID    uuid.UUID
}

func LockBook(id uuid.UUID) LockKey { return LockKey{Scope: "book", ID: id} }
func LockUser(id uuid.UUID) LockKey { return LockKey{Scope: "user", ID: id} }

// AccountInfo is the engine's read view of a patron account.
type AccountInfo struct {
	Name      string
	Approved  bool
	Blocked   bool
	CanBorrow bool
	MaxBooks  int
}

// Accounts looks up patron accounts. Lookup returns ErrNotFound for
// unknown users.
type Accounts interface {
	Lookup(ctx context.Context, userID uuid.UUID) (AccountInfo, error)
}

// Catalog provides read-only book lookups.
type Catalog interface {
	Exists(ctx context.Context, bookID uuid.UUID) (bool, error)
	Title(ctx context.Context, bookID uuid.UUID) (string, error)
}

// Notifier delivers best-effort notifications. Failures are reported
// to the caller for bookkeeping but never block a lifecycle operation.
type Notifier interface {
	NotifyOverdue(ctx context.Context, l *Loan, daysOverdue int) error
	NotifyBlocked(ctx context.Context, userID uuid.UUID, l *Loan) error
}

// Service is the lending lifecycle engine. It owns the loan state
// machine and enforces the custody and ceiling invariants; the
// exclusivity checks and the resulting write always commit as one
// unit under the per-book and per-user locks.
type Service struct {
	ledger   Ledger
	accounts Accounts
	catalog  Catalog
	tariff   Tariff
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(ledger Ledger, accounts Accounts, catalog Catalog, tariff Tariff, opts ...Option) *Service {
	s := &Service{
		ledger:   ledger,
		accounts: accounts,
		catalog:  catalog,
		tariff:   tariff,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Tariff returns the fine schedule the engine applies.
func (s *Service) Tariff() Tariff { return s.tariff }

// runTx executes fn inside a retried ledger transaction. Only faults
// the store marked transient are retried; business-rule rejections
// fail fast. Exhaustion surfaces as ErrUnavailable.
func runTx(ctx context.Context, ledger Ledger, keys []LockKey, fn func(tx LedgerTx) error) error {
	err := backoff.Retry(ctx, func(ctx context.Context) error {
		tx, err := ledger.Begin(ctx, keys...)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}

		return tx.Commit()
	}, backoff.WithRetryable(IsTransient))

	if err != nil && IsTransient(err) {
		return fmt.Errorf("%v: %w", err, ErrUnavailable)
	}

	return err
}

// Request places a borrow request for the user, leaving it PENDING for
// operator disposition. It fails if the account may not borrow, the
// book is unknown, the book's custody slot is taken, or the user's
// ceiling is reached.
func (s *Service) Request(ctx context.Context, userID, bookID uuid.UUID) (*Loan, error) {
	acct, err := s.accounts.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}

	if err := checkBorrower(userID, acct); err != nil {
		metrics.LoanOperation("request", "permission_denied")
		return nil, err
	}

	exists, err := s.catalog.Exists(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("looking up book %s: %w", bookID, err)
	}

	if !exists {
		return nil, fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}

	title, err := s.catalog.Title(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("looking up book %s: %w", bookID, err)
	}

	l := &Loan{
		ID:          uuid.New(),
		UserID:      userID,
		UserName:    acct.Name,
		BookID:      bookID,
		BookTitle:   title,
		State:       StatePending,
		RequestedAt: s.now(),
	}

	err = runTx(ctx, s.ledger, []LockKey{LockBook(bookID), LockUser(userID)}, func(tx LedgerTx) error {
		if err := s.checkExclusivity(ctx, tx, userID, bookID); err != nil {
			return err
		}

		if err := s.checkCeiling(ctx, tx, userID, acct.MaxBooks); err != nil {
			return err
		}

		return tx.Insert(ctx, l)
	})
	if err != nil {
		metrics.LoanOperation("request", "rejected")
		return nil, err
	}

	metrics.LoanOperation("request", "ok")

	return l, nil
}

// Approve moves a PENDING loan to APPROVED, re-validating the custody
// and ceiling invariants at approval time: a different pending request
// for the same book may have been approved in the interim. A losing
// request stays PENDING and the conflict is returned to the caller.
// Not idempotent: approval time determines fine accrual.
func (s *Service) Approve(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	ref, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", loanID, err)
	}

	acct, err := s.accounts.Lookup(ctx, ref.UserID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", ref.UserID, err)
	}

	var approved *Loan

	err = runTx(ctx, s.ledger, []LockKey{LockBook(ref.BookID), LockUser(ref.UserID)}, func(tx LedgerTx) error {
		l, err := tx.GetForUpdate(ctx, loanID)
		if err != nil {
			return fmt.Errorf("loan %s: %w", loanID, err)
		}

		if l.State != StatePending {
			return fmt.Errorf("loan %s is %s, not %s: %w", loanID, l.State, StatePending, ErrInvalidState)
		}

		if err := checkBorrower(l.UserID, acct); err != nil {
			return err
		}

		if err := s.checkExclusivity(ctx, tx, l.UserID, l.BookID); err != nil {
			return err
		}

		if err := s.checkCeiling(ctx, tx, l.UserID, acct.MaxBooks); err != nil {
			return err
		}

		now := s.now()
		l.State = StateApproved
		l.ApprovedAt = &now

		if err := tx.Update(ctx, l); err != nil {
			return err
		}

		approved = l

		return nil
	})
	if err != nil {
		metrics.LoanOperation("approve", "rejected")
		return nil, err
	}

	metrics.LoanOperation("approve", "ok")

	return approved, nil
}

// Reject moves a PENDING loan to the terminal REJECTED state. No other
// field changes.
func (s *Service) Reject(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	var rejected *Loan

	err := runTx(ctx, s.ledger, nil, func(tx LedgerTx) error {
		l, err := tx.GetForUpdate(ctx, loanID)
		if err != nil {
			return fmt.Errorf("loan %s: %w", loanID, err)
		}

		if l.State != StatePending {
			return fmt.Errorf("loan %s is %s, not %s: %w", loanID, l.State, StatePending, ErrInvalidState)
		}

		l.State = StateRejected

		if err := tx.Update(ctx, l); err != nil {
			return err
		}

		rejected = l

		return nil
	})
	if err != nil {
		metrics.LoanOperation("reject", "rejected")
		return nil, err
	}

	metrics.LoanOperation("reject", "ok")

	return rejected, nil
}

// Return ends custody of an APPROVED loan. When finePaid is false the
// final fine is computed now and recorded unpaid; when true the caller
// asserts the fine was settled and the last recorded amount is frozen.
// Settling the last unpaid fine of a blocked account unblocks it, in
// the same transaction.
func (s *Service) Return(ctx context.Context, loanID uuid.UUID, finePaid bool) (*Loan, error) {
	ref, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", loanID, err)
	}

	var returned *Loan

	err = runTx(ctx, s.ledger, []LockKey{LockUser(ref.UserID)}, func(tx LedgerTx) error {
		l, err := tx.GetForUpdate(ctx, loanID)
		if err != nil {
			return fmt.Errorf("loan %s: %w", loanID, err)
		}

		if l.State != StateApproved || l.ReturnedAt != nil {
			return fmt.Errorf("loan %s is %s, not returnable: %w", loanID, l.State, ErrInvalidState)
		}

		now := s.now()

		if !finePaid {
			l.FineAmount = s.tariff.Fine(*l.ApprovedAt, now)
		}

		l.FinePaid = finePaid
		l.ReturnedAt = &now
		l.State = StateReturned

		if err := tx.Update(ctx, l); err != nil {
			return err
		}

		if finePaid {
			if err := s.maybeUnblock(ctx, tx, l.UserID); err != nil {
				return err
			}
		}

		returned = l

		return nil
	})
	if err != nil {
		metrics.LoanOperation("return", "rejected")
		return nil, err
	}

	metrics.LoanOperation("return", "ok")

	return returned, nil
}

// SettleFine marks a returned loan's fine as paid. Idempotent: settling
// an already-settled fine is a no-op. Clearing the user's last unpaid
// fine unblocks a blocked account.
func (s *Service) SettleFine(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	ref, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", loanID, err)
	}

	var settled *Loan

	err = runTx(ctx, s.ledger, []LockKey{LockUser(ref.UserID)}, func(tx LedgerTx) error {
		l, err := tx.GetForUpdate(ctx, loanID)
		if err != nil {
			return fmt.Errorf("loan %s: %w", loanID, err)
		}

		if l.State != StateReturned {
			return fmt.Errorf("loan %s is %s, not %s: %w", loanID, l.State, StateReturned, ErrInvalidState)
		}

		settled = l

		if l.FinePaid {
			return nil
		}

		l.FinePaid = true

		if err := tx.Update(ctx, l); err != nil {
			return err
		}

		return s.maybeUnblock(ctx, tx, l.UserID)
	})
	if err != nil {
		metrics.LoanOperation("settle", "rejected")
		return nil, err
	}

	metrics.LoanOperation("settle", "ok")

	return settled, nil
}

// Get returns one loan by id.
func (s *Service) Get(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	l, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", loanID, err)
	}

	return l, nil
}

// List returns loans matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Loan, error) {
	return s.ledger.List(ctx, filter)
}

// ListForUser returns all of a user's loans, history included.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error) {
	return s.ledger.ListForUser(ctx, userID)
}

// ListActiveForBook returns the book's active loans; by the custody
// invariant there is at most one.
func (s *Service) ListActiveForBook(ctx context.Context, bookID uuid.UUID) ([]*Loan, error) {
	return s.ledger.ListActiveForBook(ctx, bookID)
}

func checkBorrower(userID uuid.UUID, acct AccountInfo) error {
	switch {
	case acct.Blocked:
		return fmt.Errorf("user %s is blocked: %w", userID, ErrPermission)
	case !acct.Approved:
		return fmt.Errorf("user %s is not approved: %w", userID, ErrPermission)
	case !acct.CanBorrow:
		return fmt.Errorf("user %s has borrowing disabled: %w", userID, ErrPermission)
	}

	return nil
}

func (s *Service) checkExclusivity(ctx context.Context, tx LedgerTx, userID, bookID uuid.UUID) error {
	active, err := tx.ActiveForBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("checking custody of book %s: %w", bookID, err)
	}

	if active == nil {
		return nil
	}

	if active.UserID == userID {
		return fmt.Errorf("user %s already holds book %s: %w", userID, bookID, ErrConflict)
	}

	return fmt.Errorf("book %s unavailable: %w", bookID, ErrConflict)
}

func (s *Service) checkCeiling(ctx context.Context, tx LedgerTx, userID uuid.UUID, maxBooks int) error {
	count, err := tx.ActiveCountForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("counting active loans of user %s: %w", userID, err)
	}

	if count >= maxBooks {
		return fmt.Errorf("user %s holds %d of %d books: %w", userID, count, maxBooks, ErrLimitExceeded)
	}

	return nil
}

// maybeUnblock lifts the block on a blocked account once its unpaid
// fines reach zero. The blocked flag is read inside the transaction
// that cleared the fine: under the user lock a block applied by a
// concurrent sweep is visible here, and the flip commits atomically
// with the settlement.
func (s *Service) maybeUnblock(ctx context.Context, tx LedgerTx, userID uuid.UUID) error {
	blocked, err := tx.AccountBlocked(ctx, userID)
	if err != nil {
		return fmt.Errorf("reading block status of user %s: %w", userID, err)
	}

	if !blocked {
		return nil
	}

	outstanding, err := tx.UnpaidFines(ctx, userID)
	if err != nil {
		return fmt.Errorf("summing unpaid fines of user %s: %w", userID, err)
	}

	if outstanding > 0 {
		return nil
	}

	if err := tx.SetAccountBlocked(ctx, userID, false); err != nil {
		return fmt.Errorf("unblocking user %s: %w", userID, err)
	}

	metrics.AccountUnblocked()

	return nil
}
