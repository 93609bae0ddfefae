package loan

import (
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a loan.
type State string

const (
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StateReturned State = "RETURNED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateReturned
}

// Loan represents one patron's custody claim on one catalog copy.
// A loan is never deleted; it only moves to a terminal state and is
// kept as history for fine auditing.
type Loan struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	UserName    string // display snapshot, not load-bearing
	BookID      uuid.UUID
	BookTitle   string // display snapshot
	State       State
	RequestedAt time.Time
	ApprovedAt  *time.Time
	ReturnedAt  *time.Time
	FineAmount  int64 // cents
	FinePaid    bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Active reports whether the loan currently occupies its book's custody
// slot: approved and not yet returned.
func (l *Loan) Active() bool {
	return l.State == StateApproved && l.ReturnedAt == nil
}

// ListFilter narrows ledger listings.
type ListFilter struct {
	State     *State
	UserID    *uuid.UUID
	BookID    *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
}
