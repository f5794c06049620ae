package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrProviderNotFound = errors.New("provider not found")
	ErrTemplateNotFound = errors.New("availability template not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrBookingNotFound  = errors.New("booking not found")

	// ErrConcurrencyConflict signals a serialization failure or deadlock; the
	// whole transaction may be retried.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)

// Store contains all DB interactions needed by the scheduling components. It is
// implemented both by the pool-backed repository and by its transactions.
type Store interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	// Availability templates
	CreateTemplate(ctx context.Context, t *AvailabilityTemplate) error
	UpdateTemplate(ctx context.Context, t *AvailabilityTemplate) error
	GetTemplateByID(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, providerID uuid.UUID, includeInactive bool) ([]AvailabilityTemplate, error)
	// FindActiveTemplate returns the active template for the weekday, ignoring excludeID.
	FindActiveTemplate(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, excludeID uuid.UUID) (*AvailabilityTemplate, error)
	SoftDeleteTemplate(ctx context.Context, id uuid.UUID, at time.Time) error
	ListProvidersWithActiveTemplates(ctx context.Context) ([]uuid.UUID, error)

	// Slots
	InsertSlotIfAbsent(ctx context.Context, s SlotInstance) (*SlotInstance, bool, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*SlotInstance, error)
	ListSlotsByDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]SlotInstance, error)
	UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*SlotInstance, error)

	// Ledger counters; false means the guard in the WHERE clause did not match.
	IncrementBookedCount(ctx context.Context, slotID uuid.UUID) (bool, error)
	DecrementBookedCount(ctx context.Context, slotID uuid.UUID) (bool, error)

	// Bookings
	CreateBooking(ctx context.Context, b *Booking) error
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// UpdateBookingStatus only applies when the current status equals from;
	// otherwise ErrBookingNotFound is returned.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, change StatusChange) (*Booking, error)
	ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error)
	ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
	ListEventsByBooking(ctx context.Context, bookingID uuid.UUID) ([]EventLog, error)
}

// Repository is a Store that can also run a function inside one transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
