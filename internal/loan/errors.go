package loan

import "errors"

// Business-rule rejections. All are terminal outcomes of a single
// operation and are never retried internally; callers match them with
// errors.Is. Wrapped errors carry the entity and invariant detail.
var (
	// ErrNotFound means an unknown loan, user or book id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means a transition was attempted from a state
	// that forbids it (approving a non-pending loan, double-return).
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict means an exclusivity violation: the book is already
	// on loan, or the user already holds it.
	ErrConflict = errors.New("conflict")

	// ErrLimitExceeded means the user's borrow ceiling is reached.
	ErrLimitExceeded = errors.New("borrow limit exceeded")

	// ErrPermission means the account is unapproved, blocked, or has
	// borrowing disabled.
	ErrPermission = errors.New("permission denied")

	// ErrUnavailable means a transient storage fault persisted through
	// all retry attempts.
	ErrUnavailable = errors.New("storage unavailable")
)

// transientError marks a storage fault worth retrying at the
// transaction boundary (serialization failure, deadlock, lost
// connection). The store decides what qualifies.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so IsTransient reports true for it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}

	return &transientError{err: err}
}

// IsTransient reports whether err was marked transient by the store.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
