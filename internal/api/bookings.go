package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
)

func bookHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}

		b, err := svc.BookConsultation(r.Context(), scheduling.BookingRequest{
			DoctorID:         doctorID,
			PatientID:        patientID,
			AppointmentDate:  req.AppointmentDate,
			DurationMinutes:  req.Duration,
			ConsultationType: scheduling.ConsultationType(req.ConsultationType),
			Priority:         scheduling.Priority(req.Priority),
			Reason:           req.Reason,
			Notes:            req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func getBookingHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func bookingEventsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		events, err := svc.ListBookingEvents(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := BookingEventsResponse{Events: make([]EventResponse, 0, len(events))}
		for _, ev := range events {
			resp.Events = append(resp.Events, toEventResponse(ev))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// listBookingsHandler lists by patientId (paged) or by slotId.
func listBookingsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			bookings []scheduling.Booking
			meta     ListMeta
			err      error
		)
		switch {
		case q.Get("patientId") != "":
			patientID, perr := uuid.Parse(q.Get("patientId"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
				return
			}
			if meta.Limit, err = intQuery(r, "limit", 20); err != nil {
				handleServiceError(w, r, err)
				return
			}
			if meta.Offset, err = intQuery(r, "offset", 0); err != nil {
				handleServiceError(w, r, err)
				return
			}
			meta.Limit, meta.Offset = clampPage(meta.Limit, meta.Offset)
			bookings, err = svc.ListBookingsByPatient(r.Context(), patientID, meta.Limit, meta.Offset)

		case q.Get("slotId") != "":
			slotID, perr := uuid.Parse(q.Get("slotId"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
				return
			}
			bookings, err = svc.ListBookingsBySlot(r.Context(), slotID)

		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patientId or slotId is required")
			return
		}
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := BookingListResponse{Bookings: make([]BookingResponse, 0, len(bookings)), Meta: meta}
		for i := range bookings {
			resp.Bookings = append(resp.Bookings, toBookingResponse(&bookings[i]))
		}
		resp.Meta.Count = len(resp.Bookings)

		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelBookingHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		b, err := svc.Cancel(r.Context(), id, ActorFromContext(r.Context()).ID, req.Reason)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func rescheduleBookingHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
			return
		}

		b, err := svc.Reschedule(r.Context(), id, slotID, ActorFromContext(r.Context()).ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func completeBookingHandler(svc SchedulingService) http.HandlerFunc {
	return transitionHandler(svc.Complete)
}

func noShowBookingHandler(svc SchedulingService) http.HandlerFunc {
	return transitionHandler(svc.MarkNoShow)
}

type transitionFunc func(ctx context.Context, bookingID, actorID uuid.UUID) (*scheduling.Booking, error)

func transitionHandler(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		b, err := fn(r.Context(), id, ActorFromContext(r.Context()).ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

// clampPage applies the same bounds the service does so meta reports the
// page that was actually returned.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
