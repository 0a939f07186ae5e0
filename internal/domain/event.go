package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventStatus is the lifecycle tag of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// ParseEventStatus normalizes s and returns the matching EventStatus.
func ParseEventStatus(s string) (EventStatus, error) {
	st := EventStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown event status %q", ErrInvalidInput, s)
	}
	return st, nil
}

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusPublished, EventStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the catalog may move an event from s to next.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventStatusDraft:
		return next == EventStatusPublished || next == EventStatusCancelled
	case EventStatusPublished:
		return next == EventStatusCancelled
	}
	return false
}

// Event represents a published (or draft) event with a finite number of seats.
// swagger:model Event
type Event struct {
	ID              string      `json:"id"`
	OrganizerID     string      `json:"organizer_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Category        string      `json:"category"`
	ImageURL        *string     `json:"image_url,omitempty"`
	EventDate       time.Time   `json:"event_date"`
	LocationCity    string      `json:"location_city"`
	LocationAddress string      `json:"location_address"`
	TotalSeats      int         `json:"total_seats"`
	AvailableSeats  int         `json:"available_seats"`
	Status          EventStatus `json:"status"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewEvent returns a new Event with every seat available. ID is typically set by the store on create.
func NewEvent(organizerID, title string, totalSeats int, status EventStatus, createdAt time.Time) *Event {
	return &Event{
		OrganizerID:    organizerID,
		Title:          title,
		TotalSeats:     totalSeats,
		AvailableSeats: totalSeats,
		Status:         status,
		Version:        1,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

// ConfirmedSeats is the number of seats held by CONFIRMED registrations.
func (e *Event) ConfirmedSeats() int {
	return e.TotalSeats - e.AvailableSeats
}

// OpenForRegistration reports whether participants may register.
func (e *Event) OpenForRegistration() bool {
	return e.Status == EventStatusPublished
}

// EventDetails holds the catalog-owned fields of an event. Nil fields are left unchanged on update.
type EventDetails struct {
	Title           *string
	Description     *string
	Category        *string
	ImageURL        *string
	EventDate       *time.Time
	LocationCity    *string
	LocationAddress *string
}

// Empty reports whether no field is set.
func (d EventDetails) Empty() bool {
	return d.Title == nil && d.Description == nil && d.Category == nil && d.ImageURL == nil &&
		d.EventDate == nil && d.LocationCity == nil && d.LocationAddress == nil
}

// Apply copies the non-nil fields of d onto e.
func (d EventDetails) Apply(e *Event) {
	if d.Title != nil {
		e.Title = *d.Title
	}
	if d.Description != nil {
		e.Description = *d.Description
	}
	if d.Category != nil {
		e.Category = *d.Category
	}
	if d.ImageURL != nil {
		e.ImageURL = d.ImageURL
	}
	if d.EventDate != nil {
		e.EventDate = *d.EventDate
	}
	if d.LocationCity != nil {
		e.LocationCity = *d.LocationCity
	}
	if d.LocationAddress != nil {
		e.LocationAddress = *d.LocationAddress
	}
}

// EventStore defines storage operations for events.
//
// Update writes the seat fields, status and version of e only if the stored
// version still equals expectedVersion; otherwise it returns ErrVersionConflict.
// On success e.Version is advanced.
type EventStore interface {
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	Update(ctx context.Context, e *Event, expectedVersion int64) error
	UpdateDetails(ctx context.Context, id string, details EventDetails, updatedAt time.Time) (*Event, error)
	ListPublished(ctx context.Context, p PaginationParams) ([]*Event, int, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]*Event, error)
	Delete(ctx context.Context, id string) error
}

// EventService defines the catalog operations organizers and visitors use.
type EventService interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, eventID, callerID string) (*Event, error)
	ListPublished(ctx context.Context, p PaginationParams) ([]*Event, int, error)
	ListMyEvents(ctx context.Context, organizerID string) ([]*Event, error)
	UpdateEvent(ctx context.Context, eventID, callerID string, details EventDetails) (*Event, error)
	ChangeStatus(ctx context.Context, eventID, callerID string, next EventStatus) (*Event, error)
	DeleteEvent(ctx context.Context, eventID, callerID string) error
}
