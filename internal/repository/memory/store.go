// Package memory is an in-process implementation of the storage ports. It is
// used when STORE_DRIVER=memory and as the reference store in service tests.
package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventregistration/internal/domain"
)

var errSeatsOutOfRange = errors.New("available seats out of range")

type regRecord struct {
	reg domain.Registration
	seq uint64
}

// Store keeps events, registrations, users and roles in maps guarded by a
// single RWMutex. RunInTx holds the write lock for the whole unit, so units
// are serialized against each other and against plain reads.
type Store struct {
	mu sync.RWMutex

	events map[string]*domain.Event
	regs   map[string]*regRecord
	seq    uint64

	users        map[string]*domain.User
	usersByEmail map[string]string
	roles        map[string]*domain.Role
	userRoles    map[string][]string
}

// New returns an empty store seeded with the organizer and participant roles.
func New() *Store {
	s := &Store{
		events:       make(map[string]*domain.Event),
		regs:         make(map[string]*regRecord),
		users:        make(map[string]*domain.User),
		usersByEmail: make(map[string]string),
		roles:        make(map[string]*domain.Role),
		userRoles:    make(map[string][]string),
	}
	for _, code := range []string{domain.RoleOrganizer, domain.RoleParticipant} {
		r := domain.NewRole(uuid.NewString(), code)
		s.roles[r.ID] = r
	}
	return s
}

// Events returns the store as a domain.EventStore.
func (s *Store) Events() domain.EventStore { return &eventView{s: s} }

// Registrations returns the store as a domain.RegistrationStore.
func (s *Store) Registrations() domain.RegistrationStore { return &regView{s: s} }

// Users returns the store as a domain.UserRepository.
func (s *Store) Users() domain.UserRepository { return &userView{s: s} }

// Roles returns the store as a domain.RoleRepository.
func (s *Store) Roles() domain.RoleRepository { return &roleView{s: s} }

// RunInTx runs fn under the store's write lock. If fn returns an error (or
// panics) every write it made through the bound stores is undone.
func (s *Store) RunInTx(ctx context.Context, eventID string, fn domain.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &journal{}
	committed := false
	defer func() {
		if !committed {
			j.rollback()
		}
	}()

	if err := fn(ctx, &eventView{s: s, j: j}, &regView{s: s, j: j}); err != nil {
		return err
	}
	committed = true
	return nil
}

// journal records undo steps for writes made inside a unit.
type journal struct {
	undo []func()
}

func (j *journal) record(f func()) {
	if j != nil {
		j.undo = append(j.undo, f)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// lock and unlock are no-ops for views bound to a unit, which already hold the write lock.
func lock(s *Store, j *journal) func() {
	if j != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func rlock(s *Store, j *journal) func() {
	if j != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func cloneEvent(e *domain.Event) *domain.Event {
	c := *e
	if e.ImageURL != nil {
		u := *e.ImageURL
		c.ImageURL = &u
	}
	return &c
}

func cloneReg(r *domain.Registration) *domain.Registration {
	c := *r
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

type eventView struct {
	s *Store
	j *journal
}

func (v *eventView) putEvent(e *domain.Event) {
	prev, existed := v.s.events[e.ID]
	v.j.record(func() {
		if existed {
			v.s.events[e.ID] = prev
		} else {
			delete(v.s.events, e.ID)
		}
	})
	v.s.events[e.ID] = e
}

func (v *eventView) Create(ctx context.Context, e *domain.Event) error {
	defer lock(v.s, v.j)()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, ok := v.s.events[e.ID]; ok {
		return domain.ErrUniquenessConflict
	}
	if e.AvailableSeats < 0 || e.AvailableSeats > e.TotalSeats {
		return errSeatsOutOfRange
	}
	if e.Version == 0 {
		e.Version = 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	v.putEvent(cloneEvent(e))
	return nil
}

func (v *eventView) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	defer rlock(v.s, v.j)()
	e, ok := v.s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (v *eventView) Update(ctx context.Context, e *domain.Event, expectedVersion int64) error {
	defer lock(v.s, v.j)()
	cur, ok := v.s.events[e.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	if e.AvailableSeats < 0 || e.AvailableSeats > cur.TotalSeats {
		return errSeatsOutOfRange
	}
	next := cloneEvent(cur)
	next.AvailableSeats = e.AvailableSeats
	next.Status = e.Status
	next.UpdatedAt = e.UpdatedAt
	next.Version = expectedVersion + 1
	v.putEvent(next)
	e.Version = next.Version
	return nil
}

func (v *eventView) UpdateDetails(ctx context.Context, id string, details domain.EventDetails, updatedAt time.Time) (*domain.Event, error) {
	defer lock(v.s, v.j)()
	cur, ok := v.s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := cloneEvent(cur)
	details.Apply(next)
	next.UpdatedAt = updatedAt
	v.putEvent(next)
	return cloneEvent(next), nil
}

// ListPublished returns published events ordered by event date, then creation time.
func (v *eventView) ListPublished(ctx context.Context, p domain.PaginationParams) ([]*domain.Event, int, error) {
	defer rlock(v.s, v.j)()
	var all []*domain.Event
	for _, e := range v.s.events {
		if e.Status == domain.EventStatusPublished {
			all = append(all, e)
		}
	}
	slices.SortFunc(all, func(a, b *domain.Event) int {
		return cmp.Or(a.EventDate.Compare(b.EventDate), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	start, end := p.Window(len(all))
	out := make([]*domain.Event, 0, end-start)
	for _, e := range all[start:end] {
		out = append(out, cloneEvent(e))
	}
	return out, len(all), nil
}

// ListByOrganizer returns the organizer's events, newest first.
func (v *eventView) ListByOrganizer(ctx context.Context, organizerID string) ([]*domain.Event, error) {
	defer rlock(v.s, v.j)()
	var out []*domain.Event
	for _, e := range v.s.events {
		if e.OrganizerID == organizerID {
			out = append(out, cloneEvent(e))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Event) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (v *eventView) Delete(ctx context.Context, id string) error {
	defer lock(v.s, v.j)()
	prev, ok := v.s.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.j.record(func() { v.s.events[id] = prev })
	delete(v.s.events, id)
	return nil
}

type regView struct {
	s *Store
	j *journal
}

func (v *regView) confirmed(participantID, eventID string) *regRecord {
	for _, rec := range v.s.regs {
		if rec.reg.ParticipantID == participantID && rec.reg.EventID == eventID &&
			rec.reg.Status == domain.RegistrationConfirmed {
			return rec
		}
	}
	return nil
}

func (v *regView) Exists(ctx context.Context, participantID, eventID string) (bool, error) {
	defer rlock(v.s, v.j)()
	return v.confirmed(participantID, eventID) != nil, nil
}

func (v *regView) Insert(ctx context.Context, reg *domain.Registration) error {
	defer lock(v.s, v.j)()
	if reg.Status == domain.RegistrationConfirmed && v.confirmed(reg.ParticipantID, reg.EventID) != nil {
		return domain.ErrUniquenessConflict
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if _, ok := v.s.regs[reg.ID]; ok {
		return domain.ErrUniquenessConflict
	}
	v.s.seq++
	id := reg.ID
	v.s.regs[id] = &regRecord{reg: *cloneReg(reg), seq: v.s.seq}
	v.j.record(func() { delete(v.s.regs, id) })
	return nil
}

func (v *regView) FindOne(ctx context.Context, participantID, eventID string) (*domain.Registration, error) {
	defer rlock(v.s, v.j)()
	rec := v.confirmed(participantID, eventID)
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return cloneReg(&rec.reg), nil
}

func (v *regView) Cancel(ctx context.Context, reg *domain.Registration, cancelledAt time.Time) error {
	defer lock(v.s, v.j)()
	rec, ok := v.s.regs[reg.ID]
	if !ok || rec.reg.Status != domain.RegistrationConfirmed {
		return domain.ErrNotFound
	}
	prev := rec.reg
	v.j.record(func() { rec.reg = prev })
	at := cancelledAt
	rec.reg.Status = domain.RegistrationCancelled
	rec.reg.CancelledAt = &at
	reg.Status = rec.reg.Status
	reg.CancelledAt = &at
	return nil
}

func (v *regView) list(match func(*domain.Registration) bool, f domain.RegistrationFilter) []*domain.Registration {
	var recs []*regRecord
	for _, rec := range v.s.regs {
		if match(&rec.reg) && f.Matches(&rec.reg) {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b *regRecord) int {
		return cmp.Or(a.reg.RegisteredAt.Compare(b.reg.RegisteredAt), cmp.Compare(a.seq, b.seq))
	})
	out := make([]*domain.Registration, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneReg(&rec.reg))
	}
	return out
}

// ListByParticipant returns the participant's registrations, oldest first.
func (v *regView) ListByParticipant(ctx context.Context, participantID string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	defer rlock(v.s, v.j)()
	return v.list(func(r *domain.Registration) bool { return r.ParticipantID == participantID }, f), nil
}

// ListByEvent returns the event's registrations, oldest first.
func (v *regView) ListByEvent(ctx context.Context, eventID string, f domain.RegistrationFilter) ([]*domain.Registration, error) {
	defer rlock(v.s, v.j)()
	return v.list(func(r *domain.Registration) bool { return r.EventID == eventID }, f), nil
}

func (v *regView) DeleteByEvent(ctx context.Context, eventID string) (int, error) {
	defer lock(v.s, v.j)()
	n := 0
	for id, rec := range v.s.regs {
		if rec.reg.EventID != eventID {
			continue
		}
		v.j.record(func() { v.s.regs[id] = rec })
		delete(v.s.regs, id)
		n++
	}
	return n, nil
}

type userView struct {
	s *Store
}

func (v *userView) Create(ctx context.Context, user *domain.User, roleID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.usersByEmail[user.Email]; ok {
		return domain.ErrDuplicateEmail
	}
	if _, ok := v.s.roles[roleID]; !ok {
		return domain.ErrNotFound
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	c := *user
	v.s.users[c.ID] = &c
	v.s.usersByEmail[c.Email] = c.ID
	v.s.userRoles[c.ID] = []string{roleID}
	return nil
}

func (v *userView) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	id, ok := v.s.usersByEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *v.s.users[id]
	return &c, nil
}

func (v *userView) GetByID(ctx context.Context, id string) (*domain.User, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	u, ok := v.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

type roleView struct {
	s *Store
}

func (v *roleView) GetByCode(ctx context.Context, code string) (*domain.Role, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, r := range v.s.roles {
		if r.Code == code {
			c := *r
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (v *roleView) ListByUserID(ctx context.Context, userID string) ([]*domain.Role, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]*domain.Role, 0, len(v.s.userRoles[userID]))
	for _, id := range v.s.userRoles[userID] {
		c := *v.s.roles[id]
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *domain.Role) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}
