package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Slots

type SlotResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"providerId"`
	TemplateID      *uuid.UUID `json:"templateId,omitempty"`
	Date            string     `json:"date"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         time.Time  `json:"endTime"`
	DurationMinutes int        `json:"durationMinutes"`
	Capacity        int        `json:"capacity"`
	BookedCount     int        `json:"bookedCount"`
	Available       bool       `json:"available"`
	Kind            string     `json:"kind"`
	Notes           *string    `json:"notes,omitempty"`
}

// Available is true only when the slot can take another booking, which folds
// the provider's availability flag and remaining capacity into one field.
func toSlotResponse(s scheduling.SlotInstance) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		TemplateID:      s.TemplateID,
		Date:            s.Date.Format(time.DateOnly),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationMinutes: s.DurationMinutes(),
		Capacity:        s.Capacity,
		BookedCount:     s.BookedCount,
		Available:       s.HasCapacity(),
		Kind:            string(s.Kind),
		Notes:           s.Notes,
	}
}

func toSlotResponses(slots []scheduling.SlotInstance) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

type SlotsMeta struct {
	DoctorID       uuid.UUID `json:"doctorId"`
	Date           string    `json:"date"`
	TotalSlots     int       `json:"totalSlots"`
	AvailableSlots int       `json:"availableSlots"`
}

type AvailableSlotsResponse struct {
	Slots []SlotResponse `json:"slots"`
	Meta  SlotsMeta      `json:"meta"`
}

type UpdateSlotRequest struct {
	Capacity  *int    `json:"capacity"`
	Available *bool   `json:"available"`
	Notes     *string `json:"notes"`
}

type MaterializeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type MaterializeResponse struct {
	Created int            `json:"created"`
	Slots   []SlotResponse `json:"slots"`
}

// Bookings

type BookRequest struct {
	DoctorID         string    `json:"doctorId"`
	PatientID        string    `json:"patientId"`
	AppointmentDate  time.Time `json:"appointmentDate"`
	Duration         int       `json:"duration"`
	ConsultationType string    `json:"consultationType"`
	Priority         string    `json:"priority"`
	Reason           string    `json:"reason"`
	Notes            string    `json:"notes"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RescheduleRequest struct {
	SlotID string `json:"slotId"`
}

type BookingResponse struct {
	ID                uuid.UUID  `json:"id"`
	SlotID            uuid.UUID  `json:"slotId"`
	PatientID         uuid.UUID  `json:"patientId"`
	DoctorID          uuid.UUID  `json:"doctorId"`
	Status            string     `json:"status"`
	ConsultationType  string     `json:"consultationType"`
	Priority          string     `json:"priority"`
	Reason            string     `json:"reason,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CancelReason      *string    `json:"cancelReason,omitempty"`
	CancelledBy       *uuid.UUID `json:"cancelledBy,omitempty"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
	PreviousBookingID *uuid.UUID `json:"previousBookingId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func toBookingResponse(b *scheduling.Booking) BookingResponse {
	return BookingResponse{
		ID:                b.ID,
		SlotID:            b.SlotID,
		PatientID:         b.PatientID,
		DoctorID:          b.ProviderID,
		Status:            string(b.Status),
		ConsultationType:  string(b.ConsultationType),
		Priority:          string(b.Priority),
		Reason:            b.Reason,
		Notes:             b.Notes,
		CancelReason:      b.CancelReason,
		CancelledBy:       b.CancelledBy,
		CancelledAt:       b.CancelledAt,
		PreviousBookingID: b.PreviousBookingID,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

type ListMeta struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
	Count  int `json:"count"`
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Meta     ListMeta          `json:"meta"`
}

// Templates

type TemplateRequest struct {
	DayOfWeek             *int    `json:"dayOfWeek"`
	StartTime             string  `json:"startTime"`
	EndTime               string  `json:"endTime"`
	SlotDurationMinutes   int     `json:"slotDurationMinutes"`
	MaxConcurrentBookings int     `json:"maxConcurrentBookings"`
	BreakStart            *string `json:"breakStart"`
	BreakEnd              *string `json:"breakEnd"`
	Kind                  string  `json:"kind"`
	IntervalWeeks         int     `json:"intervalWeeks"`
	ValidFrom             string  `json:"validFrom"`
	ValidUntil            *string `json:"validUntil"`
}

type SetActiveRequest struct {
	Active *bool `json:"active"`
}

type TemplateResponse struct {
	ID                    uuid.UUID  `json:"id"`
	ProviderID            uuid.UUID  `json:"providerId"`
	DayOfWeek             int        `json:"dayOfWeek"`
	StartTime             string     `json:"startTime"`
	EndTime               string     `json:"endTime"`
	SlotDurationMinutes   int        `json:"slotDurationMinutes"`
	MaxConcurrentBookings int        `json:"maxConcurrentBookings"`
	BreakStart            *string    `json:"breakStart,omitempty"`
	BreakEnd              *string    `json:"breakEnd,omitempty"`
	Kind                  string     `json:"kind"`
	IntervalWeeks         int        `json:"intervalWeeks"`
	ValidFrom             string     `json:"validFrom"`
	ValidUntil            *string    `json:"validUntil,omitempty"`
	Recurrence            string     `json:"recurrence"`
	Active                bool       `json:"active"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
	DeletedAt             *time.Time `json:"deletedAt,omitempty"`
}

func toTemplateResponse(t *scheduling.AvailabilityTemplate) TemplateResponse {
	resp := TemplateResponse{
		ID:                    t.ID,
		ProviderID:            t.ProviderID,
		DayOfWeek:             int(t.Weekday),
		StartTime:             t.StartTime.String(),
		EndTime:               t.EndTime.String(),
		SlotDurationMinutes:   t.SlotDuration,
		MaxConcurrentBookings: t.Capacity,
		Kind:                  string(t.Kind),
		IntervalWeeks:         t.IntervalWeeks,
		ValidFrom:             t.ValidFrom.Format(time.DateOnly),
		Recurrence:            t.Rule().String(),
		Active:                t.Active,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
		DeletedAt:             t.DeletedAt,
	}
	if t.BreakStart != nil && t.BreakEnd != nil {
		bs, be := t.BreakStart.String(), t.BreakEnd.String()
		resp.BreakStart, resp.BreakEnd = &bs, &be
	}
	if t.ValidUntil != nil {
		until := t.ValidUntil.Format(time.DateOnly)
		resp.ValidUntil = &until
	}
	return resp
}

// toTemplate parses the wire form. Range checks are left to the service.
func (req TemplateRequest) toTemplate() (scheduling.AvailabilityTemplate, error) {
	var t scheduling.AvailabilityTemplate

	if req.DayOfWeek == nil {
		return t, fieldError("dayOfWeek", "day of week is required")
	}
	t.Weekday = time.Weekday(*req.DayOfWeek)

	var err error
	if t.StartTime, err = scheduling.ParseClock(req.StartTime); err != nil {
		return t, fieldError("startTime", err.Error())
	}
	if t.EndTime, err = scheduling.ParseClock(req.EndTime); err != nil {
		return t, fieldError("endTime", err.Error())
	}
	if req.BreakStart != nil {
		bs, err := scheduling.ParseClock(*req.BreakStart)
		if err != nil {
			return t, fieldError("breakStart", err.Error())
		}
		t.BreakStart = &bs
	}
	if req.BreakEnd != nil {
		be, err := scheduling.ParseClock(*req.BreakEnd)
		if err != nil {
			return t, fieldError("breakEnd", err.Error())
		}
		t.BreakEnd = &be
	}

	t.SlotDuration = req.SlotDurationMinutes
	t.Capacity = req.MaxConcurrentBookings
	if t.Capacity == 0 {
		t.Capacity = 1
	}
	t.Kind = scheduling.SlotKind(req.Kind)
	t.IntervalWeeks = req.IntervalWeeks

	if req.ValidFrom != "" {
		if t.ValidFrom, err = time.Parse(time.DateOnly, req.ValidFrom); err != nil {
			return t, fieldError("validFrom", "validFrom must be a date in YYYY-MM-DD format")
		}
	}
	if req.ValidUntil != nil {
		until, err := time.Parse(time.DateOnly, *req.ValidUntil)
		if err != nil {
			return t, fieldError("validUntil", "validUntil must be a date in YYYY-MM-DD format")
		}
		t.ValidUntil = &until
	}

	return t, nil
}

func fieldError(field, message string) error {
	return &scheduling.ValidationError{Field: field, Message: message}
}

// Booking events

type EventResponse struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	BookingID *uuid.UUID      `json:"bookingId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type BookingEventsResponse struct {
	Events []EventResponse `json:"events"`
}

func toEventResponse(ev scheduling.EventLog) EventResponse {
	resp := EventResponse{
		ID:        ev.ID,
		Type:      ev.EventType,
		BookingID: ev.BookingID,
		CreatedAt: ev.CreatedAt,
	}
	if json.Valid(ev.Payload) {
		resp.Payload = json.RawMessage(ev.Payload)
	}
	return resp
}
