package scheduling

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/recurrence"
)

type BookingStatus string

const (
	StatusBooked      BookingStatus = "booked"
	StatusCancelled   BookingStatus = "cancelled"
	StatusRescheduled BookingStatus = "rescheduled"
	StatusCompleted   BookingStatus = "completed"
	StatusNoShow      BookingStatus = "no_show"
)

// CanTransitionTo reports whether a booking may move from s to next.
// Only BOOKED has outgoing transitions; every other status is terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != StatusBooked {
		return false
	}
	switch next {
	case StatusCancelled, StatusRescheduled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

type SlotKind string

const (
	SlotRegular      SlotKind = "regular"
	SlotEmergency    SlotKind = "emergency"
	SlotConsultation SlotKind = "consultation"
	SlotFollowUp     SlotKind = "follow_up"
)

var validSlotKinds = map[SlotKind]bool{
	SlotRegular: true, SlotEmergency: true, SlotConsultation: true, SlotFollowUp: true,
}

type ConsultationType string

const (
	ConsultationInPerson ConsultationType = "in_person"
	ConsultationVideo    ConsultationType = "video"
	ConsultationPhone    ConsultationType = "phone"
)

var validConsultationTypes = map[ConsultationType]bool{
	ConsultationInPerson: true, ConsultationVideo: true, ConsultationPhone: true,
}

type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

var validPriorities = map[Priority]bool{
	PriorityRoutine: true, PriorityUrgent: true, PriorityEmergency: true,
}

// ClockTime is a time of day in minutes since midnight. 24:00 is allowed as an
// end of day marker.
type ClockTime int

const endOfDay ClockTime = 24 * 60

func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	h, errH := strconv.Atoi(s[:2])
	m, errM := strconv.Atoi(s[3:])
	if errH != nil || errM != nil {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock(h, m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On places the clock time on a calendar date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityTemplate is a provider's recurring weekly pattern for one weekday.
type AvailabilityTemplate struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	Weekday       time.Weekday
	StartTime     ClockTime
	EndTime       ClockTime
	SlotDuration  int // minutes
	Capacity      int
	BreakStart    *ClockTime
	BreakEnd      *ClockTime
	Kind          SlotKind
	IntervalWeeks int
	ValidFrom     time.Time
	ValidUntil    *time.Time
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Rule returns the weekly recurrence the template follows, anchored on the
// first matching weekday on or after ValidFrom.
func (t AvailabilityTemplate) Rule() recurrence.Rule {
	start := recurrence.DateOf(t.ValidFrom)
	offset := (int(t.Weekday) - int(start.Weekday()) + 7) % 7
	start = start.AddDate(0, 0, offset)

	interval := t.IntervalWeeks
	if interval < 1 {
		interval = 1
	}

	return recurrence.Rule{
		Frequency: recurrence.Weekly,
		Interval:  interval,
		Start:     start,
		End:       t.ValidUntil,
	}
}

// windows splits the working day around the break, if any.
func (t AvailabilityTemplate) windows() [][2]ClockTime {
	if t.BreakStart == nil || t.BreakEnd == nil {
		return [][2]ClockTime{{t.StartTime, t.EndTime}}
	}
	return [][2]ClockTime{
		{t.StartTime, *t.BreakStart},
		{*t.BreakEnd, t.EndTime},
	}
}

func (t AvailabilityTemplate) Validate() error {
	if t.ProviderID == uuid.Nil {
		return invalid("providerId", "provider id is required")
	}
	if t.Weekday < time.Sunday || t.Weekday > time.Saturday {
		return invalid("dayOfWeek", "day of week must be between 0 and 6, got %d", t.Weekday)
	}
	if t.StartTime < 0 || t.EndTime > endOfDay || t.StartTime >= t.EndTime {
		return invalid("startTime", "start time %s must be before end time %s", t.StartTime, t.EndTime)
	}
	if t.SlotDuration <= 0 {
		return invalid("slotDurationMinutes", "slot duration must be positive, got %d", t.SlotDuration)
	}
	if t.Capacity < 1 {
		return invalid("maxConcurrentBookings", "capacity must be at least 1, got %d", t.Capacity)
	}
	if (t.BreakStart == nil) != (t.BreakEnd == nil) {
		return invalid("breakStart", "break start and break end must be set together")
	}
	if t.BreakStart != nil {
		bs, be := *t.BreakStart, *t.BreakEnd
		if bs < t.StartTime || be > t.EndTime || bs >= be {
			return invalid("breakStart", "break %s-%s must lie within %s-%s", bs, be, t.StartTime, t.EndTime)
		}
	}
	if t.Kind != "" && !validSlotKinds[t.Kind] {
		return invalid("kind", "unknown slot kind %q", t.Kind)
	}
	if t.IntervalWeeks < 1 {
		return invalid("intervalWeeks", "interval must be at least 1 week, got %d", t.IntervalWeeks)
	}
	if t.ValidFrom.IsZero() {
		return invalid("validFrom", "valid from date is required")
	}
	if t.ValidUntil != nil && recurrence.DateOf(*t.ValidUntil).Before(recurrence.DateOf(t.ValidFrom)) {
		return invalid("validUntil", "valid until must not be before valid from")
	}
	return nil
}

// SlotInstance is a concrete bookable window materialized from a template.
type SlotInstance struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	TemplateID  *uuid.UUID
	Date        time.Time
	StartTime   time.Time
	EndTime     time.Time
	Capacity    int
	BookedCount int
	Available   bool
	Kind        SlotKind
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s SlotInstance) HasCapacity() bool {
	return s.Available && s.BookedCount < s.Capacity
}

func (s SlotInstance) DurationMinutes() int {
	return int(s.EndTime.Sub(s.StartTime) / time.Minute)
}

// SlotPatch carries provider edits to a materialized slot. Nil fields are left unchanged.
type SlotPatch struct {
	Capacity  *int
	Available *bool
	Notes     *string
}

type Booking struct {
	ID                uuid.UUID
	SlotID            uuid.UUID
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	Status            BookingStatus
	ConsultationType  ConsultationType
	Priority          Priority
	Reason            string
	Notes             string
	CancelReason      *string
	CancelledBy       *uuid.UUID
	PreviousBookingID *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CancelledAt       *time.Time
}

// StatusChange is the audit data stored with a status transition.
type StatusChange struct {
	At      time.Time
	ActorID *uuid.UUID
	Reason  *string
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
