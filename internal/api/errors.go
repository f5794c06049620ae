package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/recurrence"
	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "request body is empty")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, fmt.Sprintf("%s must be a valid UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(name, name+" must be an integer")
	}
	return v, nil
}

// handleServiceError maps scheduling errors to HTTP responses. Anything
// unexpected is logged with the request id and hidden from the caller.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *scheduling.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: ve.Message, Field: ve.Field})

	case errors.Is(err, scheduling.ErrSlotFull):
		writeError(w, http.StatusBadRequest, "slot_full", "the selected slot is fully booked")
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusBadRequest, "slot_unavailable", scheduling.ErrSlotUnavailable.Error())
	case errors.Is(err, scheduling.ErrPastSlotBooking):
		writeError(w, http.StatusBadRequest, "past_slot", scheduling.ErrPastSlotBooking.Error())
	case errors.Is(err, recurrence.ErrInvalidRecurrence):
		writeError(w, http.StatusBadRequest, "invalid_recurrence", err.Error())

	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, scheduling.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "template_not_found", err.Error())

	case errors.Is(err, scheduling.ErrOverlappingTemplate):
		writeError(w, http.StatusConflict, "overlapping_template", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "concurrency_conflict", "the request conflicted with another update, please retry")

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}
