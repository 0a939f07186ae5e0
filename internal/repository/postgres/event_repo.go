package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"eventregistration/internal/domain"
)

const eventColumns = `id, organizer_id, title, description, category, image_url, event_date,
		location_city, location_address, total_seats, available_seats, status, version, created_at, updated_at`

type eventRepository struct {
	DB queryer
}

func NewEventRepository(db *sql.DB) domain.EventStore {
	return &eventRepository{
		DB: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var imageNull sql.NullString
	var status string
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Category, &imageNull, &e.EventDate,
		&e.LocationCity, &e.LocationAddress, &e.TotalSeats, &e.AvailableSeats, &status, &e.Version,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if imageNull.Valid {
		e.ImageURL = &imageNull.String
	}
	e.Status = domain.EventStatus(status)
	return e, nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	query := `
		INSERT INTO events (organizer_id, title, description, category, image_url, event_date,
			location_city, location_address, total_seats, available_seats, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	if e.Version == 0 {
		e.Version = 1
	}
	err := r.DB.QueryRowContext(ctx, query,
		e.OrganizerID, e.Title, e.Description, e.Category, e.ImageURL, e.EventDate,
		e.LocationCity, e.LocationAddress, e.TotalSeats, e.AvailableSeats, string(e.Status), e.Version,
		e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	return mapError(err)
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapError(err)
	}
	return e, nil
}

// Update writes the seat counter and status guarded by the version column.
// Zero affected rows means either the event is gone or another writer won.
func (r *eventRepository) Update(ctx context.Context, e *domain.Event, expectedVersion int64) error {
	query := `
		UPDATE events
		SET available_seats = $1, status = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
		RETURNING version
	`
	var next int64
	err := r.DB.QueryRowContext(ctx, query, e.AvailableSeats, string(e.Status), e.UpdatedAt, e.ID, expectedVersion).Scan(&next)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return mapError(err)
		}
		var exists bool
		if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
			return mapError(err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}
	e.Version = next
	return nil
}

func (r *eventRepository) UpdateDetails(ctx context.Context, id string, d domain.EventDetails, updatedAt time.Time) (*domain.Event, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if d.Title != nil {
		add("title", *d.Title)
	}
	if d.Description != nil {
		add("description", *d.Description)
	}
	if d.Category != nil {
		add("category", *d.Category)
	}
	if d.ImageURL != nil {
		add("image_url", *d.ImageURL)
	}
	if d.EventDate != nil {
		add("event_date", *d.EventDate)
	}
	if d.LocationCity != nil {
		add("location_city", *d.LocationCity)
	}
	if d.LocationAddress != nil {
		add("location_address", *d.LocationAddress)
	}
	add("updated_at", updatedAt)
	args = append(args, id)

	query := `UPDATE events SET ` + strings.Join(sets, ", ") +
		` WHERE id = $` + strconv.Itoa(len(args)) + ` RETURNING ` + eventColumns
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapError(err)
	}
	return e, nil
}

// ListPublished returns a page of published events ordered by event date, plus the total count.
func (r *eventRepository) ListPublished(ctx context.Context, p domain.PaginationParams) ([]*domain.Event, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE status = 'PUBLISHED'`).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE status = 'PUBLISHED'
		ORDER BY event_date ASC, created_at ASC, id ASC
		LIMIT $1 OFFSET $2`
	limit := p.PageSize
	if limit < 1 {
		limit = total
	}
	rows, err := r.DB.QueryContext(ctx, query, limit, p.Offset())
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()
	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *eventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE organizer_id = $1
		ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, organizerID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*domain.Event, error) {
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM events WHERE id = $1`
	result, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return mapError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
