// Package store is the Postgres account directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/account"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectAccountColumns = `
	id, first_name, last_name, email, role, status, can_borrow, max_books,
	created_at, updated_at
`

func scanAccount(s scanner) (*account.Account, error) {
	var (
		a         account.Account
		statusStr string
	)

	if err := s.Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.Role, &statusStr,
		&a.CanBorrow, &a.MaxBooks, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	a.Status = account.Status(statusStr)

	return &a, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}

		return nil, fmt.Errorf("getting account: %w", err)
	}

	return a, nil
}

func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status account.Status, canBorrow bool) error {
	query := `UPDATE accounts SET status = $1, can_borrow = $2, updated_at = NOW() WHERE id = $3`

	res, err := s.db.ExecContext(ctx, query, status, canBorrow, id)
	if err != nil {
		return fmt.Errorf("updating account status: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.ErrNotFound
	}

	return nil
}

func (s *Store) ListByStatus(ctx context.Context, status account.Status) ([]*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE status = $1 ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}

		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}

	return accounts, nil
}
