// Package store is the Postgres loan ledger.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"io"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okulib/circulate/internal/loan"
)

var dialect = goqu.Dialect("postgres")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectLoanColumns = `
	id, user_id, user_name, book_id, book_title, state,
	requested_at, approved_at, returned_at, fine_amount, fine_paid,
	created_at, updated_at
`

var loanColumns = []any{
	"id", "user_id", "user_name", "book_id", "book_title", "state",
	"requested_at", "approved_at", "returned_at", "fine_amount", "fine_paid",
	"created_at", "updated_at",
}

// scanLoan reads one ledger row in selectLoanColumns order.
func scanLoan(s scanner) (*loan.Loan, error) {
	var (
		l        loan.Loan
		stateStr string
	)

	if err := s.Scan(
		&l.ID, &l.UserID, &l.UserName, &l.BookID, &l.BookTitle, &stateStr,
		&l.RequestedAt, &l.ApprovedAt, &l.ReturnedAt, &l.FineAmount, &l.FinePaid,
		&l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}

	l.State = loan.State(stateStr)

	return &l, nil
}

// classify maps driver faults worth retrying (serialization failures,
// deadlocks, lock timeouts, lost connections) to transient errors so
// the engine's retry layer can tell them from business rejections.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P03":
			return loan.MarkTransient(err)
		}

		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return loan.MarkTransient(err)
	}

	return err
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	query := `SELECT ` + selectLoanColumns + ` FROM loans WHERE id = $1`

	l, err := scanLoan(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, loan.ErrNotFound
		}

		return nil, classify(fmt.Errorf("getting loan: %w", err))
	}

	return l, nil
}

func (s *Store) List(ctx context.Context, filter loan.ListFilter) ([]*loan.Loan, error) {
	ds := dialect.From("loans").Select(loanColumns...).Order(goqu.I("requested_at").Desc())

	if filter.State != nil {
		ds = ds.Where(goqu.C("state").Eq(string(*filter.State)))
	}

	if filter.UserID != nil {
		ds = ds.Where(goqu.C("user_id").Eq(*filter.UserID))
	}

	if filter.BookID != nil {
		ds = ds.Where(goqu.C("book_id").Eq(*filter.BookID))
	}

	if filter.StartDate != nil {
		ds = ds.Where(goqu.C("requested_at").Gte(*filter.StartDate))
	}

	if filter.EndDate != nil {
		ds = ds.Where(goqu.C("requested_at").Lte(*filter.EndDate))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	return s.queryLoans(ctx, query, args...)
}

func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID) ([]*loan.Loan, error) {
	query := `SELECT ` + selectLoanColumns + `
		FROM loans WHERE user_id = $1 ORDER BY requested_at DESC`

	return s.queryLoans(ctx, query, userID)
}

func (s *Store) ListActiveForBook(ctx context.Context, bookID uuid.UUID) ([]*loan.Loan, error) {
	query := `SELECT ` + selectLoanColumns + `
		FROM loans WHERE book_id = $1 AND state = $2 AND returned_at IS NULL`

	return s.queryLoans(ctx, query, bookID, loan.StateApproved)
}

func (s *Store) ListActive(ctx context.Context) ([]*loan.Loan, error) {
	query := `SELECT ` + selectLoanColumns + `
		FROM loans WHERE state = $1 AND returned_at IS NULL ORDER BY approved_at ASC`

	return s.queryLoans(ctx, query, loan.StateApproved)
}

// UnpaidFines sums the user's unpaid fine amounts across all loans.
func (s *Store) UnpaidFines(ctx context.Context, userID uuid.UUID) (int64, error) {
	return unpaidFines(ctx, s.db, userID)
}

func (s *Store) queryLoans(ctx context.Context, query string, args ...any) ([]*loan.Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("listing loans: %w", err))
	}
	defer rows.Close()

	var loans []*loan.Loan

	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}

		loans = append(loans, l)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterating loan rows: %w", err))
	}

	return loans, nil
}

// lockKey folds a lock scope and id into the advisory-lock keyspace.
func lockKey(key loan.LockKey) int64 {
	h := fnv.New64a()
	h.Write([]byte(key.Scope))
	h.Write([]byte{0})
	h.Write(key.ID[:])

	return int64(h.Sum64())
}

// Begin opens a transaction and takes an advisory xact lock per key.
// Two transactions sharing a key serialize here, which makes the
// engine's check-then-write sections mutually exclusive per book and
// per user. The locks release on commit or rollback.
func (s *Store) Begin(ctx context.Context, keys ...loan.LockKey) (loan.LedgerTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("beginning ledger tx: %w", err))
	}

	for _, key := range keys {
		if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(key)); err != nil {
			dbTx.Rollback()
			return nil, classify(fmt.Errorf("acquiring %s lock: %w", key.Scope, err))
		}
	}

	return &ledgerTx{tx: dbTx}, nil
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return classify(fmt.Errorf("committing ledger tx: %w", err))
	}

	return nil
}

func (t *ledgerTx) Rollback() error { return t.tx.Rollback() }

func (t *ledgerTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	query := `SELECT ` + selectLoanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`

	l, err := scanLoan(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, loan.ErrNotFound
		}

		return nil, classify(fmt.Errorf("getting loan for update: %w", err))
	}

	return l, nil
}

func (t *ledgerTx) ActiveForBook(ctx context.Context, bookID uuid.UUID) (*loan.Loan, error) {
	query := `SELECT ` + selectLoanColumns + `
		FROM loans WHERE book_id = $1 AND state = $2 AND returned_at IS NULL`

	l, err := scanLoan(t.tx.QueryRowContext(ctx, query, bookID, loan.StateApproved))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, classify(fmt.Errorf("getting active loan: %w", err))
	}

	return l, nil
}

func (t *ledgerTx) ActiveCountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM loans WHERE user_id = $1 AND state = $2 AND returned_at IS NULL`

	var count int
	if err := t.tx.QueryRowContext(ctx, query, userID, loan.StateApproved).Scan(&count); err != nil {
		return 0, classify(fmt.Errorf("counting active loans: %w", err))
	}

	return count, nil
}

func (t *ledgerTx) Insert(ctx context.Context, l *loan.Loan) error {
	query := `
		INSERT INTO loans (id, user_id, user_name, book_id, book_title, state,
			requested_at, approved_at, returned_at, fine_amount, fine_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := t.tx.QueryRowContext(ctx, query,
		l.ID, l.UserID, l.UserName, l.BookID, l.BookTitle, l.State,
		l.RequestedAt, l.ApprovedAt, l.ReturnedAt, l.FineAmount, l.FinePaid,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("inserting loan: %w", err))
	}

	return nil
}

func (t *ledgerTx) Update(ctx context.Context, l *loan.Loan) error {
	query := `
		UPDATE loans
		SET state = $1, approved_at = $2, returned_at = $3,
			fine_amount = $4, fine_paid = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`

	err := t.tx.QueryRowContext(ctx, query,
		l.State, l.ApprovedAt, l.ReturnedAt, l.FineAmount, l.FinePaid, l.ID,
	).Scan(&l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return loan.ErrNotFound
		}

		return classify(fmt.Errorf("updating loan: %w", err))
	}

	return nil
}

func (t *ledgerTx) UnpaidFines(ctx context.Context, userID uuid.UUID) (int64, error) {
	return unpaidFines(ctx, t.tx, userID)
}

// AccountBlocked reads the account's status inside the transaction, so
// callers deciding on a block flip see any flip a concurrent
// transaction committed before they took the user lock.
func (t *ledgerTx) AccountBlocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `SELECT status = 'BLOCKED' FROM accounts WHERE id = $1`

	var blocked bool
	if err := t.tx.QueryRowContext(ctx, query, userID).Scan(&blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("account %s: %w", userID, loan.ErrNotFound)
		}

		return false, classify(fmt.Errorf("reading account status: %w", err))
	}

	return blocked, nil
}

// SetAccountBlocked flips the account's status and borrow permission
// in the same transaction as the fine write that triggered it, so no
// request can slip through a capped-but-not-yet-blocked window.
func (t *ledgerTx) SetAccountBlocked(ctx context.Context, userID uuid.UUID, blocked bool) error {
	status, canBorrow := "APPROVED", true
	if blocked {
		status, canBorrow = "BLOCKED", false
	}

	query := `UPDATE accounts SET status = $1, can_borrow = $2, updated_at = NOW() WHERE id = $3`

	res, err := t.tx.ExecContext(ctx, query, status, canBorrow, userID)
	if err != nil {
		return classify(fmt.Errorf("updating account status: %w", err))
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", userID, loan.ErrNotFound)
	}

	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func unpaidFines(ctx context.Context, q querier, userID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(fine_amount), 0) FROM loans WHERE user_id = $1 AND fine_paid = FALSE`

	var total int64
	if err := q.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, classify(fmt.Errorf("summing unpaid fines: %w", err))
	}

	return total, nil
}
