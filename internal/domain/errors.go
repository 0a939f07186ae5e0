package domain

import (
	"errors"
	"fmt"
)

// Kind errors. Use errors.Is against these to classify a failure.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// Seat ledger errors.
var (
	ErrEventNotFound        = fmt.Errorf("event %w", ErrNotFound)
	ErrRegistrationNotFound = fmt.Errorf("registration %w", ErrNotFound)
	ErrAlreadyRegistered    = fmt.Errorf("%w: participant is already registered for this event", ErrConflict)
	ErrEventFull            = fmt.Errorf("%w: event is full", ErrConflict)
	ErrEventNotOpen         = fmt.Errorf("%w: event is not open for registration", ErrConflict)

	// ErrTransientConflict means concurrent writers kept winning the race for the
	// event row and the bounded retries ran out. Safe to retry.
	ErrTransientConflict = errors.New("transient conflict: event was modified concurrently")

	// ErrStoreUnavailable wraps any storage failure that is not a domain outcome.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Catalog errors.
var (
	ErrInvalidTransition = fmt.Errorf("%w: invalid event status transition", ErrConflict)
)

// Store-level signals returned by EventStore/RegistrationStore implementations.
var (
	ErrVersionConflict    = errors.New("version conflict")
	ErrUniquenessConflict = errors.New("uniqueness conflict")
)

// Auth errors.
var (
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrDuplicateEmail     = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// IsNotFound reports whether err is any not-found outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a permanent conflict (not a transient one).
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
