package loan

import (
	"time"

	"github.com/google/uuid"

	"github.com/okulib/circulate/internal/loan"
)

type loanResponse struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	UserName    string     `json:"user_name,omitempty"`
	BookID      uuid.UUID  `json:"book_id"`
	BookTitle   string     `json:"book_title,omitempty"`
	State       loan.State `json:"state"`
	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	FineAmount  int64      `json:"fine_amount"`
	FinePaid    bool       `json:"fine_paid"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func toResponse(l *loan.Loan) loanResponse {
	return loanResponse{
		ID:          l.ID,
		UserID:      l.UserID,
		UserName:    l.UserName,
		BookID:      l.BookID,
		BookTitle:   l.BookTitle,
		State:       l.State,
		RequestedAt: l.RequestedAt,
		ApprovedAt:  l.ApprovedAt,
		ReturnedAt:  l.ReturnedAt,
		FineAmount:  l.FineAmount,
		FinePaid:    l.FinePaid,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func toResponseList(loans []*loan.Loan) []loanResponse {
	resp := make([]loanResponse, len(loans))
	for i, l := range loans {
		resp[i] = toResponse(l)
	}

	return resp
}
