package book

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=book

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Book, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.repo.Get(ctx, id)
}

// Exists reports whether the catalog knows the book.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// Title returns the book's display title.
func (s *Service) Title(ctx context.Context, id uuid.UUID) (string, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	return b.Title, nil
}
