package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
)

// availableSlotsHandler returns the slots of the day that can still be booked.
// meta.totalSlots counts every slot of the day. With includeUnavailable=true
// full and disabled slots are listed too, flagged available=false.
func availableSlotsHandler(svc SchedulingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		doctorID, err := uuid.Parse(q.Get("doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		date, err := time.ParseInLocation(time.DateOnly, q.Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be in YYYY-MM-DD format")
			return
		}

		duration, err := intQuery(r, "duration", 0)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		var (
			slots []scheduling.SlotInstance
			total int
		)
		if q.Get("includeUnavailable") == "true" {
			slots, err = svc.ListSlots(r.Context(), doctorID, date, duration)
			total = len(slots)
		} else {
			slots, err = svc.GetAvailableSlots(r.Context(), doctorID, date, duration)
			if err == nil {
				total, err = svc.CountSlots(r.Context(), doctorID, date, duration)
			}
		}
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := AvailableSlotsResponse{
			Slots: toSlotResponses(slots),
			Meta: SlotsMeta{
				DoctorID:   doctorID,
				Date:       date.Format(time.DateOnly),
				TotalSlots: total,
			},
		}
		for _, s := range resp.Slots {
			if s.Available {
				resp.Meta.AvailableSlots++
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getSlotHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		slot, err := svc.GetSlot(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func updateSlotHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		slot, err := svc.UpdateSlot(r.Context(), id, scheduling.SlotPatch{
			Capacity:  req.Capacity,
			Available: req.Available,
			Notes:     req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func materializeHandler(svc SchedulingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "providerId")
		if !ok {
			return
		}

		var req MaterializeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		from, err := time.ParseInLocation(time.DateOnly, req.From, loc)
		if err != nil {
			handleServiceError(w, r, fieldError("from", "from must be a date in YYYY-MM-DD format"))
			return
		}
		to, err := time.ParseInLocation(time.DateOnly, req.To, loc)
		if err != nil {
			handleServiceError(w, r, fieldError("to", "to must be a date in YYYY-MM-DD format"))
			return
		}

		slots, created, err := svc.MaterializeRange(r.Context(), providerID, from, to)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MaterializeResponse{Created: created, Slots: toSlotResponses(slots)})
	}
}
