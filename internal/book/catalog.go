package book

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/loan"
)

// Catalog adapts the book service to the lending engine's read view,
// translating sentinels into the engine's taxonomy.
type Catalog struct {
	svc *Service
}

func NewCatalog(svc *Service) *Catalog {
	return &Catalog{svc: svc}
}

func (c *Catalog) Exists(ctx context.Context, bookID uuid.UUID) (bool, error) {
	return c.svc.Exists(ctx, bookID)
}

func (c *Catalog) Title(ctx context.Context, bookID uuid.UUID) (string, error) {
	title, err := c.svc.Title(ctx, bookID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", loan.ErrNotFound
		}

		return "", fmt.Errorf("looking up book: %w", err)
	}

	return title, nil
}
