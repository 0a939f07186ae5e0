package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eventregistration/internal/domain"
)

const registrationColumns = `id, participant_id, event_id, status, registered_at, cancelled_at`

type registrationRepository struct {
	DB queryer
}

func NewRegistrationRepository(db *sql.DB) domain.RegistrationStore {
	return &registrationRepository{
		DB: db,
	}
}

func scanRegistration(row rowScanner) (*domain.Registration, error) {
	reg := &domain.Registration{}
	var status string
	var cancelledNull sql.NullTime
	if err := row.Scan(&reg.ID, &reg.ParticipantID, &reg.EventID, &status, &reg.RegisteredAt, &cancelledNull); err != nil {
		return nil, err
	}
	reg.Status = domain.RegistrationStatus(status)
	if cancelledNull.Valid {
		reg.CancelledAt = &cancelledNull.Time
	}
	return reg, nil
}

func (r *registrationRepository) Exists(ctx context.Context, participantID, eventID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM registrations
			WHERE participant_id = $1 AND event_id = $2 AND status = 'CONFIRMED'
		)
	`
	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, participantID, eventID).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// Insert relies on the partial unique index over CONFIRMED rows to reject duplicates.
func (r *registrationRepository) Insert(ctx context.Context, reg *domain.Registration) error {
	query := `
		INSERT INTO registrations (participant_id, event_id, status, registered_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query, reg.ParticipantID, reg.EventID, string(reg.Status), reg.RegisteredAt).
		Scan(&reg.ID)
	return mapError(err)
}

func (r *registrationRepository) FindOne(ctx context.Context, participantID, eventID string) (*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE participant_id = $1 AND event_id = $2 AND status = 'CONFIRMED'
	`
	reg, err := scanRegistration(r.DB.QueryRowContext(ctx, query, participantID, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapError(err)
	}
	return reg, nil
}

func (r *registrationRepository) Cancel(ctx context.Context, reg *domain.Registration, cancelledAt time.Time) error {
	query := `
		UPDATE registrations
		SET status = 'CANCELLED', cancelled_at = $1
		WHERE id = $2 AND status = 'CONFIRMED'
	`
	result, err := r.DB.ExecContext(ctx, query, cancelledAt, reg.ID)
	if err != nil {
		return mapError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	reg.Status = domain.RegistrationCancelled
	reg.CancelledAt = &cancelledAt
	return nil
}

func (r *registrationRepository) ListByParticipant(ctx context.Context, participantID string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	return r.list(ctx, "participant_id", participantID, f)
}

func (r *registrationRepository) ListByEvent(ctx context.Context, eventID string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	return r.list(ctx, "event_id", eventID, f)
}

// list is only called with a fixed column name, never with caller input.
func (r *registrationRepository) list(ctx context.Context, column, value string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE ` + column + ` = $1 AND ($2 = '' OR status = $2)
		ORDER BY registered_at ASC, id ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, value, string(f.Status))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	regs := make([]*domain.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *registrationRepository) DeleteByEvent(ctx context.Context, eventID string) (int, error) {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM registrations WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
