package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SlotCounter is the slice of the store the ledger needs.
type SlotCounter interface {
	GetSlotByID(ctx context.Context, id uuid.UUID) (*SlotInstance, error)
	IncrementBookedCount(ctx context.Context, slotID uuid.UUID) (bool, error)
	DecrementBookedCount(ctx context.Context, slotID uuid.UUID) (bool, error)
}

// Ledger tracks how much of each slot's capacity is taken. Every mutation is a
// single conditional update so concurrent callers can never push booked_count
// outside [0, capacity].
type Ledger struct {
	log zerolog.Logger
}

func NewLedger(logger zerolog.Logger) *Ledger {
	return &Ledger{log: logger.With().Str("component", "ledger").Logger()}
}

func (l *Ledger) Reserve(ctx context.Context, store SlotCounter, slotID uuid.UUID) error {
	ok, err := store.IncrementBookedCount(ctx, slotID)
	if err != nil {
		return fmt.Errorf("reserve slot %s: %w", slotID, err)
	}
	if ok {
		return nil
	}

	// The guard failed; find out why.
	slot, err := store.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if !slot.Available {
		return ErrSlotUnavailable
	}
	return ErrSlotFull
}

// Release gives back one unit of capacity. Releasing a slot that is already at
// zero is logged and ignored.
func (l *Ledger) Release(ctx context.Context, store SlotCounter, slotID uuid.UUID) error {
	ok, err := store.DecrementBookedCount(ctx, slotID)
	if err != nil {
		return fmt.Errorf("release slot %s: %w", slotID, err)
	}
	if ok {
		return nil
	}

	if _, err := store.GetSlotByID(ctx, slotID); err != nil {
		return err
	}
	l.log.Warn().Str("slot_id", slotID.String()).Msg("release on slot with no bookings ignored")
	return nil
}
