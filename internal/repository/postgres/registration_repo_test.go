package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"eventregistration/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

var regRowColumns = []string{"id", "participant_id", "event_id", "status", "registered_at", "cancelled_at"}

func TestRegistrationRepository_Insert(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantID  string
		wantErr error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO registrations \(participant_id, event_id, status, registered_at\)`).
					WithArgs("p-1", "ev-1", "CONFIRMED", at).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("reg-1"))
			},
			wantID: "reg-1",
		},
		{
			name: "confirmed duplicate",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO registrations`).
					WillReturnError(&pq.Error{Code: "23505", Constraint: "registrations_confirmed_uniq"})
			},
			wantErr: domain.ErrUniquenessConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			reg := domain.NewRegistration("p-1", "ev-1", at)
			err = NewRegistrationRepository(db).Insert(ctx, reg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.wantID, reg.ID)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRegistrationRepository_ExistsAndFindOne(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS \(\s+SELECT 1 FROM registrations\s+WHERE participant_id = \$1 AND event_id = \$2 AND status = 'CONFIRMED'`).
		WithArgs("p-1", "ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM registrations\s+WHERE participant_id = \$1 AND event_id = \$2 AND status = 'CONFIRMED'`).
		WithArgs("p-1", "ev-1").
		WillReturnRows(sqlmock.NewRows(regRowColumns).AddRow("reg-1", "p-1", "ev-1", "CONFIRMED", at, nil))
	mock.ExpectQuery(`FROM registrations`).
		WithArgs("p-2", "ev-1").
		WillReturnError(sql.ErrNoRows)

	repo := NewRegistrationRepository(db)
	exists, err := repo.Exists(ctx, "p-1", "ev-1")
	require.NoError(t, err)
	require.True(t, exists)

	reg, err := repo.FindOne(ctx, "p-1", "ev-1")
	require.NoError(t, err)
	require.Equal(t, "reg-1", reg.ID)
	require.Equal(t, domain.RegistrationConfirmed, reg.Status)
	require.Nil(t, reg.CancelledAt)

	_, err = repo.FindOne(ctx, "p-2", "ev-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepository_Cancel(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "confirmed row cancelled", affected: 1},
		{name: "already cancelled", affected: 0, wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(`UPDATE registrations\s+SET status = 'CANCELLED', cancelled_at = \$1\s+WHERE id = \$2 AND status = 'CONFIRMED'`).
				WithArgs(at, "reg-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			reg := &domain.Registration{ID: "reg-1", Status: domain.RegistrationConfirmed}
			err = NewRegistrationRepository(db).Cancel(ctx, reg, at)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, domain.RegistrationConfirmed, reg.Status)
			} else {
				require.NoError(t, err)
				require.Equal(t, domain.RegistrationCancelled, reg.Status)
				require.Equal(t, at, *reg.CancelledAt)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRegistrationRepository_ListByEvent(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cancelled := at.Add(time.Hour)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE event_id = \$1 AND \(\$2 = '' OR status = \$2\)\s+ORDER BY registered_at ASC, id ASC`).
		WithArgs("ev-1", "").
		WillReturnRows(sqlmock.NewRows(regRowColumns).
			AddRow("reg-1", "p-1", "ev-1", "CANCELLED", at, cancelled).
			AddRow("reg-2", "p-2", "ev-1", "CONFIRMED", at.Add(time.Minute), nil))
	mock.ExpectQuery(`WHERE participant_id = \$1`).
		WithArgs("p-1", "CONFIRMED").
		WillReturnRows(sqlmock.NewRows(regRowColumns))

	repo := NewRegistrationRepository(db)
	regs, err := repo.ListByEvent(ctx, "ev-1", domain.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Equal(t, domain.RegistrationCancelled, regs[0].Status)
	require.Equal(t, cancelled, *regs[0].CancelledAt)

	mine, err := repo.ListByParticipant(ctx, "p-1", domain.RegistrationFilter{Status: domain.RegistrationConfirmed})
	require.NoError(t, err)
	require.NotNil(t, mine)
	require.Empty(t, mine)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepository_DeleteByEvent(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM registrations WHERE event_id = \$1`).
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewRegistrationRepository(db).DeleteByEvent(ctx, "ev-1")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

const lockedEventID = "7d0c6c9e-3f6b-4b8e-9a57-1f2d3c4b5a60"

func TestTransactor_RunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and binds stores to the transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM events WHERE id = \$1 FOR UPDATE`).
			WithArgs(lockedEventID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(lockedEventID))
		mock.ExpectExec(`DELETE FROM registrations WHERE event_id = \$1`).
			WithArgs(lockedEventID).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err = NewTransactor(db, time.Second).RunInTx(ctx, lockedEventID, func(ctx context.Context, _ domain.EventStore, regs domain.RegistrationStore) error {
			n, err := regs.DeleteByEvent(ctx, lockedEventID)
			require.Equal(t, 2, n)
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(lockedEventID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err = NewTransactor(db, 0).RunInTx(ctx, lockedEventID, func(context.Context, domain.EventStore, domain.RegistrationStore) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(lockedEventID).
			WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()

		called := false
		err = NewTransactor(db, 0).RunInTx(ctx, lockedEventID, func(context.Context, domain.EventStore, domain.RegistrationStore) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, domain.ErrVersionConflict)
		require.False(t, called)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed event id sees an empty unit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		err = NewTransactor(db, 0).RunInTx(ctx, "not-a-uuid", func(ctx context.Context, events domain.EventStore, regs domain.RegistrationStore) error {
			_, err := regs.FindOne(ctx, "p-1", "not-a-uuid")
			require.ErrorIs(t, err, domain.ErrNotFound)
			exists, err := regs.Exists(ctx, "p-1", "not-a-uuid")
			require.NoError(t, err)
			require.False(t, exists)
			_, err = events.GetByID(ctx, "not-a-uuid")
			require.ErrorIs(t, err, domain.ErrNotFound)
			n, err := regs.DeleteByEvent(ctx, "not-a-uuid")
			require.NoError(t, err)
			require.Zero(t, n)
			return domain.ErrRegistrationNotFound
		})
		require.ErrorIs(t, err, domain.ErrRegistrationNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
