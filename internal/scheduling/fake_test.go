package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/notify"
)

// memRepo is an in-memory Repository. Transactions are serialized and roll
// back by restoring a snapshot taken when they start.
type memRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	patients  map[uuid.UUID]Patient
	providers map[uuid.UUID]Provider
	templates map[uuid.UUID]AvailabilityTemplate
	slots     map[uuid.UUID]SlotInstance
	bookings  map[uuid.UUID]Booking
	events    []EventLog

	seq           int
	conflictsLeft int
	txCalls       int
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients:  map[uuid.UUID]Patient{},
		providers: map[uuid.UUID]Provider{},
		templates: map[uuid.UUID]AvailabilityTemplate{},
		slots:     map[uuid.UUID]SlotInstance{},
		bookings:  map[uuid.UUID]Booking{},
	}
}

var memEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func (r *memRepo) stamp() time.Time {
	r.seq++
	return memEpoch.Add(time.Duration(r.seq) * time.Second)
}

func (r *memRepo) addPatient() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.patients[id] = Patient{ID: id, Name: "Test Patient"}
	return id
}

func (r *memRepo) addProvider() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.providers[id] = Provider{ID: id, Name: "Dr. Test"}
	return id
}

func (r *memRepo) slot(id uuid.UUID) SlotInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[id]
}

func (r *memRepo) slotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *memRepo) WithTx(ctx context.Context, fn func(tx Store) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	r.txCalls++
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		r.mu.Unlock()
		return fmt.Errorf("%w: injected", ErrConcurrencyConflict)
	}
	snapshot := r.snapshot()
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.restore(snapshot)
		r.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	templates map[uuid.UUID]AvailabilityTemplate
	slots     map[uuid.UUID]SlotInstance
	bookings  map[uuid.UUID]Booking
	events    []EventLog
}

func (r *memRepo) snapshot() memSnapshot {
	s := memSnapshot{
		templates: make(map[uuid.UUID]AvailabilityTemplate, len(r.templates)),
		slots:     make(map[uuid.UUID]SlotInstance, len(r.slots)),
		bookings:  make(map[uuid.UUID]Booking, len(r.bookings)),
		events:    append([]EventLog(nil), r.events...),
	}
	for k, v := range r.templates {
		s.templates[k] = v
	}
	for k, v := range r.slots {
		s.slots[k] = v
	}
	for k, v := range r.bookings {
		s.bookings[k] = v
	}
	return s
}

func (r *memRepo) restore(s memSnapshot) {
	r.templates, r.slots, r.bookings, r.events = s.templates, s.slots, s.bookings, s.events
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (r *memRepo) CreateTemplate(_ context.Context, t *AvailabilityTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = r.stamp()
	t.UpdatedAt = t.CreatedAt
	r.templates[t.ID] = *t
	return nil
}

func (r *memRepo) UpdateTemplate(_ context.Context, t *AvailabilityTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.templates[t.ID]
	if !ok || existing.DeletedAt != nil {
		return ErrTemplateNotFound
	}
	t.UpdatedAt = r.stamp()
	r.templates[t.ID] = *t
	return nil
}

func (r *memRepo) GetTemplateByID(_ context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &t, nil
}

func (r *memRepo) ListTemplates(_ context.Context, providerID uuid.UUID, includeInactive bool) ([]AvailabilityTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AvailabilityTemplate
	for _, t := range r.templates {
		if t.ProviderID != providerID {
			continue
		}
		if !includeInactive && (!t.Active || t.DeletedAt != nil) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday == out[j].Weekday {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].Weekday < out[j].Weekday
	})
	return out, nil
}

func (r *memRepo) FindActiveTemplate(_ context.Context, providerID uuid.UUID, weekday time.Weekday, excludeID uuid.UUID) (*AvailabilityTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.ProviderID == providerID && t.Weekday == weekday && t.ID != excludeID && t.Active && t.DeletedAt == nil {
			return &t, nil
		}
	}
	return nil, ErrTemplateNotFound
}

func (r *memRepo) SoftDeleteTemplate(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok || t.DeletedAt != nil {
		return ErrTemplateNotFound
	}
	t.Active = false
	t.DeletedAt = &at
	r.templates[id] = t
	return nil
}

func (r *memRepo) ListProvidersWithActiveTemplates(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, t := range r.templates {
		if t.Active && t.DeletedAt == nil && !seen[t.ProviderID] {
			seen[t.ProviderID] = true
			out = append(out, t.ProviderID)
		}
	}
	return out, nil
}

func (r *memRepo) InsertSlotIfAbsent(_ context.Context, s SlotInstance) (*SlotInstance, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.slots {
		if existing.ProviderID == s.ProviderID && existing.StartTime.Equal(s.StartTime) && existing.EndTime.Equal(s.EndTime) {
			return &existing, false, nil
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.BookedCount = 0
	s.CreatedAt = r.stamp()
	s.UpdatedAt = s.CreatedAt
	r.slots[s.ID] = s
	return &s, true, nil
}

func (r *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*SlotInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *memRepo) ListSlotsByDate(_ context.Context, providerID uuid.UUID, date time.Time) ([]SlotInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SlotInstance
	for _, s := range r.slots {
		if s.ProviderID == providerID && s.Date.Equal(date) {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *memRepo) UpdateSlot(_ context.Context, id uuid.UUID, patch SlotPatch) (*SlotInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if patch.Capacity != nil {
		if *patch.Capacity < s.BookedCount {
			return nil, invalid("capacity", "capacity %d is below the %d bookings already held", *patch.Capacity, s.BookedCount)
		}
		s.Capacity = *patch.Capacity
	}
	if patch.Available != nil {
		s.Available = *patch.Available
	}
	if patch.Notes != nil {
		s.Notes = patch.Notes
	}
	r.slots[id] = s
	return &s, nil
}

func (r *memRepo) IncrementBookedCount(_ context.Context, slotID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || !s.Available || s.BookedCount >= s.Capacity {
		return false, nil
	}
	s.BookedCount++
	r.slots[slotID] = s
	return true, nil
}

func (r *memRepo) DecrementBookedCount(_ context.Context, slotID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok || s.BookedCount <= 0 {
		return false, nil
	}
	s.BookedCount--
	r.slots[slotID] = s
	return true, nil
}

func (r *memRepo) CreateBooking(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = r.stamp()
	b.UpdatedAt = b.CreatedAt
	r.bookings[b.ID] = *b
	return nil
}

func (r *memRepo) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *memRepo) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to BookingStatus, change StatusChange) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = r.stamp()
	if to == StatusCancelled {
		at := change.At
		b.CancelledAt = &at
		b.CancelledBy = change.ActorID
		b.CancelReason = change.Reason
	}
	r.bookings[id] = b
	return &b, nil
}

func (r *memRepo) ListBookingsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.bookings {
		if b.PatientID == patientID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ListBookingsBySlot(_ context.Context, slotID uuid.UUID) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Booking
	for _, b := range r.bookings {
		if b.SlotID == slotID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) ListEventsByBooking(_ context.Context, bookingID uuid.UUID) ([]EventLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventLog
	for _, ev := range r.events {
		if ev.BookingID != nil && *ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
