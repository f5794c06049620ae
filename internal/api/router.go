package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
)

// SchedulingService is the slice of scheduling.Service the HTTP layer uses.
type SchedulingService interface {
	ListSlots(ctx context.Context, providerID uuid.UUID, date time.Time, durationMinutes int) ([]scheduling.SlotInstance, error)
	GetAvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time, durationMinutes int) ([]scheduling.SlotInstance, error)
	CountSlots(ctx context.Context, providerID uuid.UUID, date time.Time, durationMinutes int) (int, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*scheduling.SlotInstance, error)
	UpdateSlot(ctx context.Context, id uuid.UUID, patch scheduling.SlotPatch) (*scheduling.SlotInstance, error)
	MaterializeRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.SlotInstance, int, error)

	BookConsultation(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error)
	ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]scheduling.Booking, error)
	ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]scheduling.Booking, error)
	ListBookingEvents(ctx context.Context, bookingID uuid.UUID) ([]scheduling.EventLog, error)
	Cancel(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*scheduling.Booking, error)
	Reschedule(ctx context.Context, bookingID, newSlotID, actorID uuid.UUID) (*scheduling.Booking, error)
	Complete(ctx context.Context, bookingID, actorID uuid.UUID) (*scheduling.Booking, error)
	MarkNoShow(ctx context.Context, bookingID, actorID uuid.UUID) (*scheduling.Booking, error)

	CreateTemplate(ctx context.Context, t *scheduling.AvailabilityTemplate) error
	UpdateTemplate(ctx context.Context, t *scheduling.AvailabilityTemplate) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*scheduling.AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, providerID uuid.UUID, includeInactive bool) ([]scheduling.AvailabilityTemplate, error)
	SetTemplateActive(ctx context.Context, id uuid.UUID, active bool) (*scheduling.AvailabilityTemplate, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

type RouterConfig struct {
	Service  SchedulingService
	Postgres Pinger
	Redis    Pinger
	Logger   zerolog.Logger
	Location *time.Location // zone dates in query strings are read in
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	// Patient facing
	r.Get("/available-slots", availableSlotsHandler(svc, cfg.Location))
	r.Post("/book", bookHandler(svc))
	r.Route("/bookings", func(r chi.Router) {
		r.Get("/", listBookingsHandler(svc))
		r.Get("/{id}", getBookingHandler(svc))
		r.Get("/{id}/events", bookingEventsHandler(svc))
		r.Post("/{id}/cancel", cancelBookingHandler(svc))
		r.Post("/{id}/reschedule", rescheduleBookingHandler(svc))

		r.With(RequireRole(RoleProvider, RoleAdmin)).Post("/{id}/complete", completeBookingHandler(svc))
		r.With(RequireRole(RoleProvider, RoleAdmin)).Post("/{id}/no-show", noShowBookingHandler(svc))
	})

	// Provider facing
	r.Group(func(r chi.Router) {
		r.Use(RequireRole(RoleProvider, RoleAdmin))

		r.Get("/providers/{providerId}/templates", listTemplatesHandler(svc))
		r.Post("/providers/{providerId}/templates", createTemplateHandler(svc))
		r.Post("/providers/{providerId}/materialize", materializeHandler(svc, cfg.Location))

		r.Get("/templates/{id}", getTemplateHandler(svc))
		r.Put("/templates/{id}", updateTemplateHandler(svc))
		r.Put("/templates/{id}/active", setTemplateActiveHandler(svc))
		r.Delete("/templates/{id}", deleteTemplateHandler(svc))

		r.Get("/slots/{id}", getSlotHandler(svc))
		r.Patch("/slots/{id}", updateSlotHandler(svc))
	})

	return r
}
