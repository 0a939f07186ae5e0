package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventregistration/internal/domain"
	"eventregistration/internal/retry"
)

type registrationService struct {
	ledger domain.SeatLedger
	events domain.EventStore
	retry  retry.Config
	logger *slog.Logger
}

// NewRegistrationService wraps the seat ledger for the HTTP layer. Register and
// Cancel are retried on ErrTransientConflict according to retryCfg; every other
// ledger outcome is returned unchanged.
func NewRegistrationService(ledger domain.SeatLedger, events domain.EventStore, retryCfg retry.Config, logger *slog.Logger) domain.RegistrationService {
	return &registrationService{
		ledger: ledger,
		events: events,
		retry:  retryCfg,
		logger: logger,
	}
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransientConflict)
}

func (s *registrationService) onRetry(ctx context.Context, op, participantID, eventID string) retry.Callback {
	return func(attempt int, err error, wait time.Duration) {
		s.logger.InfoContext(ctx, "retrying registration after transient conflict",
			"operation", op, "event_id", eventID, "participant_id", participantID, "attempt", attempt, "wait", wait)
	}
}

func (s *registrationService) Register(ctx context.Context, participantID, eventID string) (*domain.Registration, error) {
	var reg *domain.Registration
	_, err := retry.Do(ctx, s.retry, isTransient, func(ctx context.Context) error {
		var err error
		reg, err = s.ledger.Register(ctx, participantID, eventID)
		return err
	}, s.onRetry(ctx, opRegister, participantID, eventID))
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *registrationService) Cancel(ctx context.Context, participantID, eventID string) error {
	_, err := retry.Do(ctx, s.retry, isTransient, func(ctx context.Context) error {
		return s.ledger.Cancel(ctx, participantID, eventID)
	}, s.onRetry(ctx, opCancel, participantID, eventID))
	return err
}

// ListMyRegistrations returns the participant's registrations with their events.
// Registrations whose event no longer exists are skipped.
func (s *registrationService) ListMyRegistrations(ctx context.Context, participantID string, f domain.RegistrationFilter) ([]*domain.RegistrationWithEvent, error) {
	regs, err := s.ledger.ListForParticipant(ctx, participantID, f)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]*domain.RegistrationWithEvent, 0, len(regs))
	for _, reg := range regs {
		ev, err := s.events.GetByID(ctx, reg.EventID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: get event: %w", domain.ErrStoreUnavailable, err)
		}
		out = append(out, &domain.RegistrationWithEvent{Registration: reg, Event: ev})
	}
	return out, nil
}

// ListEventRegistrations returns an event's registrations to its organizer.
func (s *registrationService) ListEventRegistrations(ctx context.Context, eventID, callerID string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	ev, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.OrganizerID != callerID {
		return nil, domain.ErrForbidden
	}
	regs, err := s.ledger.ListForEvent(ctx, eventID, f)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

func (s *registrationService) GetAvailability(ctx context.Context, eventID string) (*domain.SeatAvailability, error) {
	ev, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status == domain.EventStatusDraft {
		return nil, domain.ErrEventNotFound
	}
	return &domain.SeatAvailability{
		EventID:        ev.ID,
		TotalSeats:     ev.TotalSeats,
		AvailableSeats: ev.AvailableSeats,
		ConfirmedSeats: ev.ConfirmedSeats(),
		Open:           ev.OpenForRegistration() && ev.AvailableSeats > 0,
	}, nil
}

func (s *registrationService) getEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: get event: %w", domain.ErrStoreUnavailable, err)
	}
	return ev, nil
}
