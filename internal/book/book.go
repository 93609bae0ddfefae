package book

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("book not found")

// Book is a catalog entry. Catalog maintenance happens elsewhere; the
// lending core only reads existence and title.
type Book struct {
	ID        uuid.UUID
	Title     string
	Author    string
	Category  string
	CreatedAt time.Time
}
