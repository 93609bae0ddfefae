package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/loan"
)

// Directory adapts the account service to the lending engine's read
// view, translating sentinels into the engine's taxonomy.
type Directory struct {
	svc *Service
}

func NewDirectory(svc *Service) *Directory {
	return &Directory{svc: svc}
}

func (d *Directory) Lookup(ctx context.Context, userID uuid.UUID) (loan.AccountInfo, error) {
	acct, err := d.svc.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return loan.AccountInfo{}, loan.ErrNotFound
		}

		return loan.AccountInfo{}, fmt.Errorf("looking up account: %w", err)
	}

	return loan.AccountInfo{
		Name:      acct.FullName(),
		Approved:  acct.Status == StatusApproved,
		Blocked:   acct.Status == StatusBlocked,
		CanBorrow: acct.CanBorrow,
		MaxBooks:  acct.MaxBooks,
	}, nil
}
