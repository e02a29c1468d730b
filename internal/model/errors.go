package model

import "errors"

var (
	// ErrNotFound is returned for an unknown event, registration or invoice.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded is returned when a reservation would exceed the available seats.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDuplicateInvoice is returned when an invoice identifier is already in the ledger.
	ErrDuplicateInvoice = errors.New("duplicate invoice")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")

	// ErrStorageUnavailable is returned when a persisted store cannot be read or is corrupt.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// unappliedError marks a failure that happened before any store was written.
type unappliedError struct{ err error }

func (e *unappliedError) Error() string { return e.err.Error() }
func (e *unappliedError) Unwrap() error { return e.err }

// Unapplied wraps err to record that the failed unit left every store as it
// was, so no repair is needed. errors.Is still sees the wrapped sentinel.
func Unapplied(err error) error {
	if err == nil {
		return nil
	}
	return &unappliedError{err: err}
}

// IsUnapplied reports whether err, or anything it wraps, came from Unapplied.
func IsUnapplied(err error) bool {
	var u *unappliedError
	return errors.As(err, &u)
}
