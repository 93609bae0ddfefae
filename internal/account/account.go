package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the approval state of a patron account.
type Status string

const (
	StatusApproved   Status = "APPROVED"
	StatusBlocked    Status = "BLOCKED"
	StatusUnapproved Status = "UNAPPROVED"
)

var (
	ErrNotFound = errors.New("account not found")

	// ErrUnpaidFines blocks an unblock while fines remain outstanding.
	ErrUnpaidFines = errors.New("account has unpaid fines")
)

// Account is a patron or operator identity as the lending core sees
// it. Credentials and sessions live elsewhere.
type Account struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Role      string // ADMIN or STUDENT
	Status    Status
	CanBorrow bool
	MaxBooks  int
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func (a *Account) FullName() string {
	return a.FirstName + " " + a.LastName
}
