package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/notify"
)

type BookingRequest struct {
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	AppointmentDate  time.Time // exact slot start
	DurationMinutes  int       // 0 accepts whatever length the slot has
	ConsultationType ConsultationType
	Priority         Priority
	Reason           string
	Notes            string
}

func (r *BookingRequest) normalize() error {
	if r.DoctorID == uuid.Nil {
		return invalid("doctorId", "doctor id is required")
	}
	if r.PatientID == uuid.Nil {
		return invalid("patientId", "patient id is required")
	}
	if r.AppointmentDate.IsZero() {
		return invalid("appointmentDate", "appointment date is required")
	}
	if r.DurationMinutes < 0 {
		return invalid("duration", "duration must not be negative")
	}
	if r.ConsultationType == "" {
		r.ConsultationType = ConsultationInPerson
	}
	if !validConsultationTypes[r.ConsultationType] {
		return invalid("consultationType", "unknown consultation type %q", r.ConsultationType)
	}
	if r.Priority == "" {
		r.Priority = PriorityRoutine
	}
	if !validPriorities[r.Priority] {
		return invalid("priority", "unknown priority %q", r.Priority)
	}
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

// BookConsultation books the doctor's slot that starts exactly at
// req.AppointmentDate. The capacity reservation and the booking row are
// written in one transaction.
func (s *Service) BookConsultation(ctx context.Context, req BookingRequest) (*Booking, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := s.resolveSlot(ctx, req)
	if err != nil {
		return nil, err
	}
	if !slot.StartTime.After(s.now()) {
		return nil, ErrPastSlotBooking
	}

	var (
		created *Booking
		event   notify.Event
	)
	err = s.inTx(ctx, func(tx Store) error {
		if err := s.ledger.Reserve(ctx, tx, slot.ID); err != nil {
			return err
		}

		b := &Booking{
			SlotID:           slot.ID,
			PatientID:        req.PatientID,
			ProviderID:       slot.ProviderID,
			Status:           StatusBooked,
			ConsultationType: req.ConsultationType,
			Priority:         req.Priority,
			Reason:           req.Reason,
			Notes:            req.Notes,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}

		payload := bookingPayload(b)
		payload["startTime"] = slot.StartTime
		ev, err := s.recordEvent(ctx, tx, notify.TypeBookingCreated, b, payload)
		if err != nil {
			return err
		}

		created, event = b, ev
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: %w", ErrSlotFull, err)
		}
		return nil, err
	}

	s.log.Info().
		Str("booking_id", created.ID.String()).
		Str("slot_id", slot.ID.String()).
		Str("patient_id", created.PatientID.String()).
		Msg("consultation booked")

	s.publish(ctx, event)
	return created, nil
}

func (s *Service) resolveSlot(ctx context.Context, req BookingRequest) (*SlotInstance, error) {
	date := s.materializer.DateIn(req.AppointmentDate)
	slots, err := s.slotsForDate(ctx, req.DoctorID, date)
	if err != nil {
		return nil, err
	}

	var mismatch *SlotInstance
	for i := range slots {
		slot := &slots[i]
		if !slot.StartTime.Equal(req.AppointmentDate) {
			continue
		}
		if req.DurationMinutes == 0 || slot.DurationMinutes() == req.DurationMinutes {
			return slot, nil
		}
		mismatch = slot
	}

	if mismatch != nil {
		return nil, invalid("duration", "requested %d minutes but the slot at %s is %d minutes",
			req.DurationMinutes, mismatch.StartTime.Format(time.RFC3339), mismatch.DurationMinutes())
	}
	return nil, ErrSlotNotFound
}

// Cancel cancels a booked appointment and frees its capacity. Cancelling a
// booking that is already cancelled returns it unchanged.
func (s *Service) Cancel(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "a cancellation reason is required")
	}

	var (
		result  *Booking
		events  []notify.Event
		changed bool
	)
	err := s.inTx(ctx, func(tx Store) error {
		changed, events = false, nil

		b, err := tx.GetBookingByID(ctx, bookingID)
		if err != nil {
			return err
		}
		switch b.Status {
		case StatusCancelled:
			result = b
			return nil
		case StatusBooked:
		default:
			return fmt.Errorf("%w: cannot cancel a %s booking", ErrInvalidStatusTransition, b.Status)
		}

		updated, err := tx.UpdateBookingStatus(ctx, b.ID, StatusBooked, StatusCancelled, StatusChange{
			At:      s.now(),
			ActorID: uuidPtr(actorID),
			Reason:  &reason,
		})
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				// Status moved between the read and the update.
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("cancel booking: %w", err)
		}

		if err := s.ledger.Release(ctx, tx, b.SlotID); err != nil {
			return err
		}

		payload := bookingPayload(updated)
		payload["reason"] = reason
		ev, err := s.recordEvent(ctx, tx, notify.TypeBookingCancelled, updated, payload)
		if err != nil {
			return err
		}

		result, events, changed = updated, []notify.Event{ev}, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.Info().Str("booking_id", result.ID.String()).Msg("booking cancelled")
		s.publish(ctx, events...)
	} else {
		s.log.Debug().Str("booking_id", result.ID.String()).Msg("booking already cancelled")
	}
	return result, nil
}

// Reschedule moves a booking to another slot. The old booking becomes
// RESCHEDULED and a new BOOKED booking pointing back at it is returned. If the
// destination cannot be reserved nothing changes.
func (s *Service) Reschedule(ctx context.Context, bookingID, newSlotID, actorID uuid.UUID) (*Booking, error) {
	if newSlotID == uuid.Nil {
		return nil, invalid("slotId", "destination slot id is required")
	}

	var (
		created *Booking
		event   notify.Event
	)
	err := s.inTx(ctx, func(tx Store) error {
		old, err := tx.GetBookingByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if old.Status != StatusBooked {
			return fmt.Errorf("%w: cannot reschedule a %s booking", ErrInvalidStatusTransition, old.Status)
		}
		if old.SlotID == newSlotID {
			return invalid("slotId", "booking already holds this slot")
		}

		dest, err := tx.GetSlotByID(ctx, newSlotID)
		if err != nil {
			return err
		}
		if !dest.StartTime.After(s.now()) {
			return ErrPastSlotBooking
		}

		if _, err := tx.UpdateBookingStatus(ctx, old.ID, StatusBooked, StatusRescheduled, StatusChange{
			At:      s.now(),
			ActorID: uuidPtr(actorID),
		}); err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("mark booking rescheduled: %w", err)
		}

		if err := s.ledger.Reserve(ctx, tx, dest.ID); err != nil {
			return err
		}
		if err := s.ledger.Release(ctx, tx, old.SlotID); err != nil {
			return err
		}

		previous := old.ID
		b := &Booking{
			SlotID:            dest.ID,
			PatientID:         old.PatientID,
			ProviderID:        dest.ProviderID,
			Status:            StatusBooked,
			ConsultationType:  old.ConsultationType,
			Priority:          old.Priority,
			Reason:            old.Reason,
			Notes:             old.Notes,
			PreviousBookingID: &previous,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("create rescheduled booking: %w", err)
		}

		payload := bookingPayload(b)
		payload["previousBookingId"] = old.ID.String()
		payload["previousSlotId"] = old.SlotID.String()
		payload["startTime"] = dest.StartTime
		ev, err := s.recordEvent(ctx, tx, notify.TypeBookingRescheduled, b, payload)
		if err != nil {
			return err
		}

		created, event = b, ev
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: %w", ErrSlotFull, err)
		}
		return nil, err
	}

	s.log.Info().
		Str("booking_id", created.ID.String()).
		Str("previous_booking_id", bookingID.String()).
		Str("slot_id", newSlotID.String()).
		Msg("booking rescheduled")

	s.publish(ctx, event)
	return created, nil
}

// Complete marks a booking as attended. The slot capacity stays consumed.
func (s *Service) Complete(ctx context.Context, bookingID, actorID uuid.UUID) (*Booking, error) {
	return s.closeBooking(ctx, bookingID, actorID, StatusCompleted, notify.TypeBookingCompleted)
}

// MarkNoShow records that the patient did not attend.
func (s *Service) MarkNoShow(ctx context.Context, bookingID, actorID uuid.UUID) (*Booking, error) {
	return s.closeBooking(ctx, bookingID, actorID, StatusNoShow, notify.TypeBookingNoShow)
}

func (s *Service) closeBooking(ctx context.Context, bookingID, actorID uuid.UUID, to BookingStatus, eventType string) (*Booking, error) {
	var (
		result *Booking
		event  notify.Event
	)
	err := s.inTx(ctx, func(tx Store) error {
		b, err := tx.GetBookingByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, to)
		}

		slot, err := tx.GetSlotByID(ctx, b.SlotID)
		if err != nil {
			return err
		}
		if slot.StartTime.After(s.now()) {
			return invalid("status", "cannot mark a booking %s before its slot starts", to)
		}

		updated, err := tx.UpdateBookingStatus(ctx, b.ID, StatusBooked, to, StatusChange{
			At:      s.now(),
			ActorID: uuidPtr(actorID),
		})
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("update booking status: %w", err)
		}

		ev, err := s.recordEvent(ctx, tx, eventType, updated, bookingPayload(updated))
		if err != nil {
			return err
		}

		result, event = updated, ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event)
	return result, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookingsByPatient pages through a patient's bookings, newest first.
func (s *Service) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.repo.ListBookingsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by patient: %w", err)
	}
	return bookings, nil
}

// ListBookingEvents returns the audit trail of a booking, oldest first. A
// rescheduled booking's trail ends at the move; the new booking carries the
// rescheduled event.
func (s *Service) ListBookingEvents(ctx context.Context, bookingID uuid.UUID) ([]EventLog, error) {
	if _, err := s.repo.GetBookingByID(ctx, bookingID); err != nil {
		return nil, err
	}

	events, err := s.repo.ListEventsByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list booking events: %w", err)
	}
	return events, nil
}

func (s *Service) ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]Booking, error) {
	bookings, err := s.repo.ListBookingsBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by slot: %w", err)
	}
	return bookings, nil
}
