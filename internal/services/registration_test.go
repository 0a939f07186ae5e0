package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventregistration/internal/domain"
)

// scriptedLedger returns the queued errors from Register and Cancel, then succeeds.
type scriptedLedger struct {
	domain.SeatLedger
	errs  []error
	calls int
}

func (s *scriptedLedger) next() error {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return s.errs[s.calls]
	}
	return nil
}

func (s *scriptedLedger) Register(ctx context.Context, participantID, eventID string) (*domain.Registration, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return domain.NewRegistration(participantID, eventID, time.Now()), nil
}

func (s *scriptedLedger) Cancel(ctx context.Context, participantID, eventID string) error {
	return s.next()
}

func TestRegistrationService_RetriesTransientConflicts(t *testing.T) {
	transient := domain.ErrTransientConflict

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{name: "first try", wantCalls: 1},
		{name: "recovers", errs: []error{transient, transient}, wantCalls: 3},
		{name: "gives up", errs: []error{transient, transient, transient, transient}, wantErr: domain.ErrTransientConflict, wantCalls: 3},
		{name: "domain errors are not retried", errs: []error{domain.ErrEventFull}, wantErr: domain.ErrEventFull, wantCalls: 1},
		{name: "store errors are not retried", errs: []error{domain.ErrStoreUnavailable}, wantErr: domain.ErrStoreUnavailable, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, op := range []string{"register", "cancel"} {
				ledger := &scriptedLedger{errs: tt.errs}
				svc := NewRegistrationService(ledger, nil, fastRetry(3), discardLogger())

				var err error
				if op == "register" {
					var reg *domain.Registration
					reg, err = svc.Register(context.Background(), "p-1", "ev-1")
					if tt.wantErr == nil {
						require.NotNil(t, reg)
					}
				} else {
					err = svc.Cancel(context.Background(), "p-1", "ev-1")
				}

				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr, op)
				} else {
					require.NoError(t, err, op)
				}
				assert.Equal(t, tt.wantCalls, ledger.calls, op)
			}
		})
	}
}

func newRegistrationFixture(t *testing.T) (*ledgerFixture, domain.RegistrationService) {
	t.Helper()
	f := newLedgerFixture(t)
	return f, NewRegistrationService(f.ledger, f.store.Events(), fastRetry(3), discardLogger())
}

func TestRegistrationService_ListMyRegistrations(t *testing.T) {
	ctx := context.Background()
	f, svc := newRegistrationFixture(t)
	a := f.event(t, 5, domain.EventStatusPublished)
	b := f.event(t, 5, domain.EventStatusPublished)

	_, err := svc.Register(ctx, "p-1", a.ID)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "p-1", b.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, "p-1", b.ID))

	all, err := svc.ListMyRegistrations(ctx, "p-1", domain.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].Event.ID)
	assert.Equal(t, 4, all[0].Event.AvailableSeats)
	assert.Equal(t, domain.RegistrationCancelled, all[1].Registration.Status)

	confirmed, err := svc.ListMyRegistrations(ctx, "p-1", domain.RegistrationFilter{Status: domain.RegistrationConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)

	// registrations of a deleted event are skipped
	require.NoError(t, f.store.Events().Delete(ctx, a.ID))
	confirmed, err = svc.ListMyRegistrations(ctx, "p-1", domain.RegistrationFilter{Status: domain.RegistrationConfirmed})
	require.NoError(t, err)
	assert.Empty(t, confirmed)
}

func TestRegistrationService_ListEventRegistrations(t *testing.T) {
	ctx := context.Background()
	f, svc := newRegistrationFixture(t)
	e := f.event(t, 5, domain.EventStatusPublished)
	_, err := svc.Register(ctx, "p-1", e.ID)
	require.NoError(t, err)

	tests := []struct {
		name     string
		eventID  string
		callerID string
		wantErr  error
		wantLen  int
	}{
		{name: "organizer", eventID: e.ID, callerID: "org-1", wantLen: 1},
		{name: "someone else", eventID: e.ID, callerID: "p-1", wantErr: domain.ErrForbidden},
		{name: "unknown event", eventID: "missing", callerID: "org-1", wantErr: domain.ErrEventNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs, err := svc.ListEventRegistrations(ctx, tt.eventID, tt.callerID, domain.RegistrationFilter{})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, regs, tt.wantLen)
		})
	}
}

func TestRegistrationService_GetAvailability(t *testing.T) {
	ctx := context.Background()
	f, svc := newRegistrationFixture(t)
	e := f.event(t, 2, domain.EventStatusPublished)
	draft := f.event(t, 2, domain.EventStatusDraft)

	_, err := svc.Register(ctx, "p-1", e.ID)
	require.NoError(t, err)

	av, err := svc.GetAvailability(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, &domain.SeatAvailability{EventID: e.ID, TotalSeats: 2, AvailableSeats: 1, ConfirmedSeats: 1, Open: true}, av)

	_, err = svc.Register(ctx, "p-2", e.ID)
	require.NoError(t, err)
	av, err = svc.GetAvailability(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, av.Open)

	_, err = svc.GetAvailability(ctx, draft.ID)
	require.ErrorIs(t, err, domain.ErrEventNotFound)
	_, err = svc.GetAvailability(ctx, "missing")
	require.True(t, errors.Is(err, domain.ErrNotFound))
}
