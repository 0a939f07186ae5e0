package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventregistration/internal/domain"
)

//go:embed schema.sql
var schema string

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type transactor struct {
	DB      *sql.DB
	Timeout time.Duration
}

// NewTransactor returns a domain.Transactor backed by database/sql transactions.
// Each unit is bounded by timeout when it is positive.
func NewTransactor(db *sql.DB, timeout time.Duration) domain.Transactor {
	return &transactor{DB: db, Timeout: timeout}
}

// RunInTx begins a transaction, takes a row lock on the event, and runs fn
// with stores bound to the transaction. A missing event row is not an error
// here; fn decides what that means. An eventID that is not a UUID cannot
// name a row, so fn runs against empty stores without touching the database.
func (t *transactor) RunInTx(ctx context.Context, eventID string, fn domain.TxFunc) error {
	if _, err := uuid.Parse(eventID); err != nil {
		return fn(ctx, absentEventStore{}, absentRegistrationStore{})
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	tx, err := t.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&locked)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock event: %w", mapError(err))
	}

	if err := fn(ctx, &eventRepository{DB: tx}, &registrationRepository{DB: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	committed = true
	return nil
}

// absentEventStore and absentRegistrationStore stand in for a unit whose
// event cannot exist: reads find nothing and writes report ErrNotFound.
type absentEventStore struct{}

func (absentEventStore) Create(context.Context, *domain.Event) error { return domain.ErrNotFound }

func (absentEventStore) GetByID(context.Context, string) (*domain.Event, error) {
	return nil, domain.ErrNotFound
}

func (absentEventStore) Update(context.Context, *domain.Event, int64) error {
	return domain.ErrNotFound
}

func (absentEventStore) UpdateDetails(context.Context, string, domain.EventDetails, time.Time) (*domain.Event, error) {
	return nil, domain.ErrNotFound
}

func (absentEventStore) ListPublished(context.Context, domain.PaginationParams) ([]*domain.Event, int, error) {
	return []*domain.Event{}, 0, nil
}

func (absentEventStore) ListByOrganizer(context.Context, string) ([]*domain.Event, error) {
	return []*domain.Event{}, nil
}

func (absentEventStore) Delete(context.Context, string) error { return domain.ErrNotFound }

type absentRegistrationStore struct{}

func (absentRegistrationStore) Exists(context.Context, string, string) (bool, error) {
	return false, nil
}

func (absentRegistrationStore) Insert(context.Context, *domain.Registration) error {
	return domain.ErrNotFound
}

func (absentRegistrationStore) FindOne(context.Context, string, string) (*domain.Registration, error) {
	return nil, domain.ErrNotFound
}

func (absentRegistrationStore) Cancel(context.Context, *domain.Registration, time.Time) error {
	return domain.ErrNotFound
}

func (absentRegistrationStore) ListByParticipant(context.Context, string, domain.RegistrationFilter) ([]*domain.Registration, error) {
	return []*domain.Registration{}, nil
}

func (absentRegistrationStore) ListByEvent(context.Context, string, domain.RegistrationFilter) ([]*domain.Registration, error) {
	return []*domain.Registration{}, nil
}

func (absentRegistrationStore) DeleteByEvent(context.Context, string) (int, error) { return 0, nil }
