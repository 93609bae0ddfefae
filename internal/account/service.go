package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=account

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Account, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status, canBorrow bool) error
	ListByStatus(ctx context.Context, status Status) ([]*Account, error)
}

// FineLedger reports a user's outstanding unpaid fines; the loan
// ledger provides it.
type FineLedger interface {
	UnpaidFines(ctx context.Context, userID uuid.UUID) (int64, error)
}

type Service struct {
	repo  Repository
	fines FineLedger
}

func NewService(repo Repository, fines FineLedger) *Service {
	return &Service{repo: repo, fines: fines}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.Get(ctx, id)
}

// Approve admits an unapproved account and grants borrow permission.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	return s.repo.SetStatus(ctx, id, StatusApproved, true)
}

// Block suspends the account and clears its borrow permission.
func (s *Service) Block(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	return s.repo.SetStatus(ctx, id, StatusBlocked, false)
}

// Unblock restores a blocked account, refusing while any unpaid fine
// remains on the user's loans.
func (s *Service) Unblock(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	outstanding, err := s.fines.UnpaidFines(ctx, id)
	if err != nil {
		return fmt.Errorf("summing unpaid fines: %w", err)
	}

	if outstanding > 0 {
		return fmt.Errorf("%d cents outstanding: %w", outstanding, ErrUnpaidFines)
	}

	return s.repo.SetStatus(ctx, id, StatusApproved, true)
}

func (s *Service) ListBlocked(ctx context.Context) ([]*Account, error) {
	return s.repo.ListByStatus(ctx, StatusBlocked)
}

func (s *Service) ListUnapproved(ctx context.Context) ([]*Account, error) {
	return s.repo.ListByStatus(ctx, StatusUnapproved)
}
