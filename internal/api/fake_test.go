package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
)

// fakeService implements SchedulingService with overridable funcs. Calls to an
// unset func panic, which the router turns into a 500.
type fakeService struct {
	listSlots        func(ctx context.Context, providerID uuid.UUID, date time.Time, duration int) ([]scheduling.SlotInstance, error)
	availableSlots   func(ctx context.Context, providerID uuid.UUID, date time.Time, duration int) ([]scheduling.SlotInstance, error)
	countSlots       func(ctx context.Context, providerID uuid.UUID, date time.Time, duration int) (int, error)
	getSlot          func(ctx context.Context, id uuid.UUID) (*scheduling.SlotInstance, error)
	updateSlot       func(ctx context.Context, id uuid.UUID, patch scheduling.SlotPatch) (*scheduling.SlotInstance, error)
	materializeRange func(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.SlotInstance, int, error)

	book           func(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Booking, error)
	getBooking     func(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error)
	listByPatient  func(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]scheduling.Booking, error)
	listBySlot     func(ctx context.Context, slotID uuid.UUID) ([]scheduling.Booking, error)
	bookingEvents  func(ctx context.Context, bookingID uuid.UUID) ([]scheduling.EventLog, error)
	cancel         func(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*scheduling.Booking, error)
	reschedule     func(ctx context.Context, bookingID, newSlotID, actorID uuid.UUID) (*scheduling.Booking, error)
	complete       func(ctx context.Context, bookingID, actorID uuid.UUID) (*scheduling.Booking, error)
	markNoShow     func(ctx context.Context, bookingID, actorID uuid.UUID) (*scheduling.Booking, error)
	createTemplate func(ctx context.Context, t *scheduling.AvailabilityTemplate) error
	updateTemplate func(ctx context.Context, t *scheduling.AvailabilityTemplate) error
	getTemplate    func(ctx context.Context, id uuid.UUID) (*scheduling.AvailabilityTemplate, error)
	listTemplates  func(ctx context.Context, providerID uuid.UUID, includeInactive bool) ([]scheduling.AvailabilityTemplate, error)
	setActive      func(ctx context.Context, id uuid.UUID, active bool) (*scheduling.AvailabilityTemplate, error)
	deleteTemplate func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeService) ListSlots(ctx context.Context, providerID uuid.UUID, date time.Time, duration int) ([]scheduling.SlotInstance, error) {
	return f.listSlots(ctx, providerID, date, duration)
}

func (f *fakeService) GetAvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time, duration int) ([]scheduling.SlotInstance, error) {
	return f.availableSlots(ctx, providerID, date, duration)
}

func (f *fakeService) CountSlots(ctx context.Context, providerID uuid.UUID, date time.Time, duration int) (int, error) {
	return f.countSlots(ctx, providerID, date, duration)
}

func (f *fakeService) ListBookingEvents(ctx context.Context, bookingID uuid.UUID) ([]scheduling.EventLog, error) {
	return f.bookingEvents(ctx, bookingID)
}

func (f *fakeService) GetSlot(ctx context.Context, id uuid.UUID) (*scheduling.SlotInstance, error) {
	return f.getSlot(ctx, id)
}

func (f *fakeService) UpdateSlot(ctx context.Context, id uuid.UUID, patch scheduling.SlotPatch) (*scheduling.SlotInstance, error) {
	return f.updateSlot(ctx, id, patch)
}

func (f *fakeService) MaterializeRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.SlotInstance, int, error) {
	return f.materializeRange(ctx, providerID, from, to)
}

func (f *fakeService) BookConsultation(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Booking, error) {
	return f.book(ctx, req)
}

func (f *fakeService) GetBooking(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error) {
	return f.getBooking(ctx, id)
}

func (f *fakeService) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]scheduling.Booking, error) {
	return f.listByPatient(ctx, patientID, limit, offset)
}

func (f *fakeService) ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]scheduling.Booking, error) {
	return f.listBySlot(ctx, slotID)
}

func (f *fakeService) Cancel(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*scheduling.Booking, error) {
	return f.cancel(ctx, bookingID, actorID, reason)
}

func (f *fakeService) Reschedule(ctx context.Context, bookingID, newSlotID, actorID uuid.UUID) (*scheduling.Booking, error) {
	return f.reschedule(ctx, bookingID, newSlotID, actorID)
}

func (f *fakeService) Complete(ctx context.Context, bookingID, actorID uuid.UUID) (*scheduling.Booking, error) {
	return f.complete(ctx, bookingID, actorID)
}

func (f *fakeService) MarkNoShow(ctx context.Context, bookingID, actorID uuid.UUID) (*scheduling.Booking, error) {
	return f.markNoShow(ctx, bookingID, actorID)
}

func (f *fakeService) CreateTemplate(ctx context.Context, t *scheduling.AvailabilityTemplate) error {
	return f.createTemplate(ctx, t)
}

func (f *fakeService) UpdateTemplate(ctx context.Context, t *scheduling.AvailabilityTemplate) error {
	return f.updateTemplate(ctx, t)
}

func (f *fakeService) GetTemplate(ctx context.Context, id uuid.UUID) (*scheduling.AvailabilityTemplate, error) {
	return f.getTemplate(ctx, id)
}

func (f *fakeService) ListTemplates(ctx context.Context, providerID uuid.UUID, includeInactive bool) ([]scheduling.AvailabilityTemplate, error) {
	return f.listTemplates(ctx, providerID, includeInactive)
}

func (f *fakeService) SetTemplateActive(ctx context.Context, id uuid.UUID, active bool) (*scheduling.AvailabilityTemplate, error) {
	return f.setActive(ctx, id, active)
}

func (f *fakeService) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return f.deleteTemplate(ctx, id)
}
