package domain

import (
	"context"
	"time"
)

// RegistrationStatus is the lifecycle tag of a registration.
// CONFIRMED is the only initial state; CANCELLED is terminal.
type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

func (s RegistrationStatus) Valid() bool {
	return s == RegistrationConfirmed || s == RegistrationCancelled
}

// Registration represents a participant's seat in an event.
// swagger:model Registration
type Registration struct {
	ID            string             `json:"id"`
	ParticipantID string             `json:"participant_id"`
	EventID       string             `json:"event_id"`
	Status        RegistrationStatus `json:"status"`
	RegisteredAt  time.Time          `json:"registered_at"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
}

// NewRegistration creates a CONFIRMED registration. ID is typically set by the store on insert.
func NewRegistration(participantID, eventID string, registeredAt time.Time) *Registration {
	return &Registration{
		ParticipantID: participantID,
		EventID:       eventID,
		Status:        RegistrationConfirmed,
		RegisteredAt:  registeredAt,
	}
}

// RegistrationFilter narrows list queries. The zero value matches every registration.
type RegistrationFilter struct {
	Status RegistrationStatus
}

// Matches reports whether reg passes the filter.
func (f RegistrationFilter) Matches(reg *Registration) bool {
	return f.Status == "" || reg.Status == f.Status
}

// RegistrationStore defines storage operations for registrations.
//
// Insert must fail with ErrUniquenessConflict when a CONFIRMED registration
// for the same (participant, event) already exists. FindOne only returns
// CONFIRMED registrations. Cancel moves a CONFIRMED registration to CANCELLED.
type RegistrationStore interface {
	Exists(ctx context.Context, participantID, eventID string) (bool, error)
	Insert(ctx context.Context, reg *Registration) error
	FindOne(ctx context.Context, participantID, eventID string) (*Registration, error)
	Cancel(ctx context.Context, reg *Registration, cancelledAt time.Time) error
	ListByParticipant(ctx context.Context, participantID string, f RegistrationFilter) ([]*Registration, error)
	ListByEvent(ctx context.Context, eventID string, f RegistrationFilter) ([]*Registration, error)
	DeleteByEvent(ctx context.Context, eventID string) (int, error)
}

// TxFunc is the body of an atomic unit. The stores passed in are bound to the unit.
type TxFunc func(ctx context.Context, events EventStore, regs RegistrationStore) error

// Transactor runs fn as one atomic unit with the event row identified by
// eventID locked against other units. Writes made through the bound stores
// become visible only if fn returns nil.
type Transactor interface {
	RunInTx(ctx context.Context, eventID string, fn TxFunc) error
}

// SeatLedger is the only code path allowed to change an event's available
// seats or to create and cancel CONFIRMED registrations.
type SeatLedger interface {
	Register(ctx context.Context, participantID, eventID string) (*Registration, error)
	Cancel(ctx context.Context, participantID, eventID string) error
	ListForParticipant(ctx context.Context, participantID string, f RegistrationFilter) ([]*Registration, error)
	ListForEvent(ctx context.Context, eventID string, f RegistrationFilter) ([]*Registration, error)
	PurgeForEvent(ctx context.Context, eventID string) (int, error)
	PurgeAndDelete(ctx context.Context, eventID string) (int, error)
}

// RegistrationWithEvent bundles a registration with its related event.
type RegistrationWithEvent struct {
	Registration *Registration `json:"registration"`
	Event        *Event        `json:"event"`
}

// SeatAvailability is a read-only view of an event's seat counters.
// swagger:model SeatAvailability
type SeatAvailability struct {
	EventID        string `json:"event_id"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
	ConfirmedSeats int    `json:"confirmed_seats"`
	Open           bool   `json:"open"`
}

// RegistrationService defines participant- and organizer-facing registration operations.
type RegistrationService interface {
	Register(ctx context.Context, participantID, eventID string) (*Registration, error)
	Cancel(ctx context.Context, participantID, eventID string) error
	ListMyRegistrations(ctx context.Context, participantID string, f RegistrationFilter) ([]*RegistrationWithEvent, error)
	ListEventRegistrations(ctx context.Context, eventID, callerID string, f RegistrationFilter) ([]*Registration, error)
	GetAvailability(ctx context.Context, eventID string) (*SeatAvailability, error)
}
