package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrOverlappingTemplate     = errors.New("an active template already governs this provider and weekday")
	ErrSlotFull                = errors.New("slot is fully booked")
	ErrSlotUnavailable         = errors.New("slot is not available for booking")
	ErrPastSlotBooking         = errors.New("cannot book a slot that has already started")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ValidationError reports a request that breaks an input rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
