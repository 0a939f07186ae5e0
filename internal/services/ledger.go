package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"eventregistration/internal/domain"
	"eventregistration/internal/retry"
	"eventregistration/internal/telemetry"
)

const (
	opRegister = "register"
	opCancel   = "cancel"
	opPurge    = "purge"
)

type seatLedger struct {
	tx      domain.Transactor
	regs    domain.RegistrationStore
	logger  *slog.Logger
	metrics *telemetry.Metrics
	retry   retry.Config
	now     func() time.Time
}

// NewSeatLedger creates the SeatLedger. Every mutation runs inside tx as one
// atomic unit; regs serves the read-only list operations. Version conflicts
// are retried according to retryCfg before surfacing as ErrTransientConflict.
func NewSeatLedger(
	tx domain.Transactor,
	regs domain.RegistrationStore,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
	retryCfg retry.Config,
) domain.SeatLedger {
	return &seatLedger{
		tx:      tx,
		regs:    regs,
		logger:  logger,
		metrics: metrics,
		retry:   retryCfg,
		now:     time.Now,
	}
}

func (l *seatLedger) Register(ctx context.Context, participantID, eventID string) (*domain.Registration, error) {
	if participantID == "" || eventID == "" {
		return nil, fmt.Errorf("%w: participant and event are required", domain.ErrInvalidInput)
	}
	ctx, span := telemetry.StartSpan(ctx, "seat_ledger.register",
		attribute.String("event_id", eventID),
		attribute.String("participant_id", participantID),
	)
	start := time.Now()

	var reg *domain.Registration
	var seatsLeft int
	err := l.atomically(ctx, opRegister, eventID, func(ctx context.Context, events domain.EventStore, regs domain.RegistrationStore) error {
		reg = nil
		ev, err := events.GetByID(ctx, eventID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("get event: %w", err)
		}

		exists, err := regs.Exists(ctx, participantID, eventID)
		if err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		if exists {
			return domain.ErrAlreadyRegistered
		}
		if !ev.OpenForRegistration() {
			return domain.ErrEventNotOpen
		}
		if ev.AvailableSeats <= 0 {
			return domain.ErrEventFull
		}

		now := l.now()
		expected := ev.Version
		ev.AvailableSeats--
		ev.UpdatedAt = now
		if err := events.Update(ctx, ev, expected); err != nil {
			return fmt.Errorf("decrement seats: %w", err)
		}

		r := domain.NewRegistration(participantID, eventID, now)
		if err := regs.Insert(ctx, r); err != nil {
			if errors.Is(err, domain.ErrUniquenessConflict) {
				return domain.ErrAlreadyRegistered
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		reg = r
		seatsLeft = ev.AvailableSeats
		return nil
	})
	if err == nil {
		span.SetAttributes(attribute.Int("available_seats", seatsLeft))
	}
	l.finish(span, opRegister, start, err)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (l *seatLedger) Cancel(ctx context.Context, participantID, eventID string) error {
	if participantID == "" || eventID == "" {
		return fmt.Errorf("%w: participant and event are required", domain.ErrInvalidInput)
	}
	ctx, span := telemetry.StartSpan(ctx, "seat_ledger.cancel",
		attribute.String("event_id", eventID),
		attribute.String("participant_id", participantID),
	)
	start := time.Now()

	var (
		clamped    bool
		dangling   bool
		before     int
		totalSeats int
	)
	err := l.atomically(ctx, opCancel, eventID, func(ctx context.Context, events domain.EventStore, regs domain.RegistrationStore) error {
		clamped, dangling = false, false

		reg, err := regs.FindOne(ctx, participantID, eventID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrRegistrationNotFound
			}
			return fmt.Errorf("find registration: %w", err)
		}

		now := l.now()
		if err := regs.Cancel(ctx, reg, now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrRegistrationNotFound
			}
			return fmt.Errorf("cancel registration: %w", err)
		}

		ev, err := events.GetByID(ctx, eventID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				dangling = true
				return nil
			}
			return fmt.Errorf("get event: %w", err)
		}

		expected := ev.Version
		before, totalSeats = ev.AvailableSeats, ev.TotalSeats
		next := ev.AvailableSeats + 1
		if next > ev.TotalSeats {
			clamped = true
			next = ev.TotalSeats
		}
		ev.AvailableSeats = next
		ev.UpdatedAt = now
		if err := events.Update(ctx, ev, expected); err != nil {
			return fmt.Errorf("increment seats: %w", err)
		}
		return nil
	})
	l.finish(span, opCancel, start, err)
	if err != nil {
		return err
	}

	if clamped {
		l.metrics.IncIntegrityWarning()
		l.logger.WarnContext(ctx, "seat ledger integrity: available seats already at total on cancel",
			"event_id", eventID, "participant_id", participantID,
			"available_seats", before, "total_seats", totalSeats)
	}
	if dangling {
		l.metrics.IncIntegrityWarning()
		l.logger.WarnContext(ctx, "seat ledger integrity: cancelled registration references a missing event",
			"event_id", eventID, "participant_id", participantID)
	}
	return nil
}

func (l *seatLedger) ListForParticipant(ctx context.Context, participantID string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	regs, err := l.regs.ListByParticipant(ctx, participantID, f)
	if err != nil {
		return nil, classify(fmt.Errorf("list registrations by participant: %w", err))
	}
	return regs, nil
}

func (l *seatLedger) ListForEvent(ctx context.Context, eventID string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	regs, err := l.regs.ListByEvent(ctx, eventID, f)
	if err != nil {
		return nil, classify(fmt.Errorf("list registrations by event: %w", err))
	}
	return regs, nil
}

// PurgeForEvent removes every registration of the event and gives all of its
// seats back in the same atomic unit.
func (l *seatLedger) PurgeForEvent(ctx context.Context, eventID string) (int, error) {
	return l.purge(ctx, eventID, false)
}

// PurgeAndDelete removes every registration of the event and the event itself
// in one atomic unit, so no registration can slip in between the two.
func (l *seatLedger) PurgeAndDelete(ctx context.Context, eventID string) (int, error) {
	return l.purge(ctx, eventID, true)
}

func (l *seatLedger) purge(ctx context.Context, eventID string, deleteEvent bool) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "seat_ledger.purge",
		attribute.String("event_id", eventID),
		attribute.Bool("delete_event", deleteEvent),
	)
	start := time.Now()

	var removed int
	err := l.atomically(ctx, opPurge, eventID, func(ctx context.Context, events domain.EventStore, regs domain.RegistrationStore) error {
		removed = 0
		ev, err := events.GetByID(ctx, eventID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("get event: %w", err)
			}
			if deleteEvent {
				return domain.ErrEventNotFound
			}
		}
		n, err := regs.DeleteByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("delete registrations: %w", err)
		}
		removed = n

		switch {
		case deleteEvent:
			if err := events.Delete(ctx, eventID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return domain.ErrEventNotFound
				}
				return fmt.Errorf("delete event: %w", err)
			}
		case ev != nil && ev.AvailableSeats != ev.TotalSeats:
			// no CONFIRMED registration is left, so every seat is free again
			expected := ev.Version
			ev.AvailableSeats = ev.TotalSeats
			ev.UpdatedAt = l.now()
			if err := events.Update(ctx, ev, expected); err != nil {
				return fmt.Errorf("release seats: %w", err)
			}
		}
		return nil
	})
	l.finish(span, opPurge, start, err)
	if err != nil {
		return 0, err
	}
	l.logger.InfoContext(ctx, "registrations purged", "event_id", eventID, "count", removed, "event_deleted", deleteEvent)
	return removed, nil
}

// atomically runs fn as one atomic unit, retrying when the unit lost a race
// for the event row, and maps the outcome onto the ledger's error taxonomy.
func (l *seatLedger) atomically(ctx context.Context, op, eventID string, fn domain.TxFunc) error {
	_, err := retry.Do(ctx, l.retry, isVersionConflict,
		func(ctx context.Context) error {
			return l.tx.RunInTx(ctx, eventID, fn)
		},
		func(attempt int, err error, wait time.Duration) {
			l.metrics.IncLedgerRetry(op)
			l.logger.DebugContext(ctx, "seat ledger retry",
				"operation", op, "event_id", eventID, "attempt", attempt, "wait", wait, "err", err)
		},
	)
	return classify(err)
}

func (l *seatLedger) finish(span trace.Span, op string, start time.Time, err error) {
	l.metrics.ObserveLedger(op, outcome(err), time.Since(start))
	telemetry.EndSpan(span, err)
}

func isVersionConflict(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict)
}

// classify keeps domain outcomes as they are and turns everything else into
// ErrTransientConflict or ErrStoreUnavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidInput):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	case errors.Is(err, domain.ErrVersionConflict):
		return fmt.Errorf("%w: %w", domain.ErrTransientConflict, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrEventFull):
		return "event_full"
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrTransientConflict):
		return "transient_conflict"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "store_unavailable"
	}
}
