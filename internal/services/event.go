package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eventregistration/internal/domain"
)

const maxTotalSeats = 100000

type eventService struct {
	events         domain.EventStore
	tx             domain.Transactor
	ledger         domain.SeatLedger
	logger         *slog.Logger
	contextTimeout time.Duration
}

// NewEventService creates the catalog service. Status changes run through tx so
// they serialize with seat ledger units on the same event; deletion goes
// through the ledger so registrations are purged in the same unit.
func NewEventService(
	events domain.EventStore,
	tx domain.Transactor,
	ledger domain.SeatLedger,
	logger *slog.Logger,
	timeout time.Duration,
) domain.EventService {
	return &eventService{
		events:         events,
		tx:             tx,
		ledger:         ledger,
		logger:         logger,
		contextTimeout: timeout,
	}
}

func (s *eventService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.contextTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.contextTimeout)
}

func (s *eventService) CreateEvent(ctx context.Context, event *domain.Event) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if event.OrganizerID == "" {
		return fmt.Errorf("%w: event organizer is required", domain.ErrInvalidInput)
	}
	event.Title = strings.TrimSpace(event.Title)
	if event.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if event.TotalSeats < 1 || event.TotalSeats > maxTotalSeats {
		return fmt.Errorf("%w: total seats must be between 1 and %d", domain.ErrInvalidInput, maxTotalSeats)
	}
	if event.Status == "" {
		event.Status = domain.EventStatusDraft
	}
	if event.Status != domain.EventStatusDraft && event.Status != domain.EventStatusPublished {
		return fmt.Errorf("%w: new events must be DRAFT or PUBLISHED", domain.ErrInvalidInput)
	}

	now := time.Now()
	event.AvailableSeats = event.TotalSeats
	event.Version = 1
	event.CreatedAt = now
	event.UpdatedAt = now

	if err := s.events.Create(ctx, event); err != nil {
		return fmt.Errorf("%w: create event: %w", domain.ErrStoreUnavailable, err)
	}
	s.logger.InfoContext(ctx, "event created", "event_id", event.ID, "organizer_id", event.OrganizerID, "total_seats", event.TotalSeats)
	return nil
}

// GetEvent returns the event. Drafts are only visible to their organizer;
// everyone else gets ErrEventNotFound.
func (s *eventService) GetEvent(ctx context.Context, eventID, callerID string) (*domain.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ev, err := s.get(ctx, s.events, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status == domain.EventStatusDraft && ev.OrganizerID != callerID {
		return nil, domain.ErrEventNotFound
	}
	return ev, nil
}

func (s *eventService) ListPublished(ctx context.Context, p domain.PaginationParams) ([]*domain.Event, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	events, total, err := s.events.ListPublished(ctx, p)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list published events: %w", domain.ErrStoreUnavailable, err)
	}
	return events, total, nil
}

func (s *eventService) ListMyEvents(ctx context.Context, organizerID string) ([]*domain.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	events, err := s.events.ListByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %w", domain.ErrStoreUnavailable, err)
	}
	return events, nil
}

func (s *eventService) UpdateEvent(ctx context.Context, eventID, callerID string, details domain.EventDetails) (*domain.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if details.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	if details.Title != nil {
		t := strings.TrimSpace(*details.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", domain.ErrInvalidInput)
		}
		details.Title = &t
	}

	if _, err := s.owned(ctx, s.events, eventID, callerID); err != nil {
		return nil, err
	}
	ev, err := s.events.UpdateDetails(ctx, eventID, details, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: update event: %w", domain.ErrStoreUnavailable, err)
	}
	return ev, nil
}

// ChangeStatus moves the event along DRAFT -> PUBLISHED -> CANCELLED. It runs
// as an atomic unit on the event so a registration cannot interleave with the
// status write.
func (s *eventService) ChangeStatus(ctx context.Context, eventID, callerID string, next domain.EventStatus) (*domain.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated *domain.Event
	err := s.tx.RunInTx(ctx, eventID, func(ctx context.Context, events domain.EventStore, _ domain.RegistrationStore) error {
		ev, err := s.owned(ctx, events, eventID, callerID)
		if err != nil {
			return err
		}
		if !ev.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, ev.Status, next)
		}
		expected := ev.Version
		ev.Status = next
		ev.UpdatedAt = time.Now()
		if err := events.Update(ctx, ev, expected); err != nil {
			return err
		}
		updated = ev
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) ||
			errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, err
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %w", domain.ErrTransientConflict, err)
		}
		return nil, fmt.Errorf("%w: change status: %w", domain.ErrStoreUnavailable, err)
	}
	s.logger.InfoContext(ctx, "event status changed", "event_id", eventID, "status", next)
	return updated, nil
}

// DeleteEvent removes the event and every registration for it.
func (s *eventService) DeleteEvent(ctx context.Context, eventID, callerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.owned(ctx, s.events, eventID, callerID); err != nil {
		return err
	}
	if _, err := s.ledger.PurgeAndDelete(ctx, eventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (s *eventService) get(ctx context.Context, events domain.EventStore, eventID string) (*domain.Event, error) {
	ev, err := events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: get event: %w", domain.ErrStoreUnavailable, err)
	}
	return ev, nil
}

func (s *eventService) owned(ctx context.Context, events domain.EventStore, eventID, callerID string) (*domain.Event, error) {
	ev, err := s.get(ctx, events, eventID)
	if err != nil {
		return nil, err
	}
	if ev.OrganizerID != callerID {
		return nil, domain.ErrForbidden
	}
	return ev, nil
}
