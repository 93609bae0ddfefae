// Package store is the read-only Postgres catalog lookup.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/book"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*book.Book, error) {
	query := `SELECT id, title, author, category, created_at FROM books WHERE id = $1`

	var b book.Book

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Title, &b.Author, &b.Category, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, book.ErrNotFound
		}

		return nil, fmt.Errorf("getting book: %w", err)
	}

	return &b, nil
}
