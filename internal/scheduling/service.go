package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/notify"
)

type Service struct {
	repo         Repository
	materializer *Materializer
	ledger       *Ledger
	publisher    notify.Publisher
	cfg          config.Config
	log          zerolog.Logger
	now          func() time.Time
}

func NewService(repo Repository, publisher notify.Publisher, cfg config.Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:         repo,
		materializer: NewMaterializer(cfg.Location, logger),
		ledger:       NewLedger(logger),
		publisher:    publisher,
		cfg:          cfg,
		log:          logger.With().Str("component", "scheduling").Logger(),
		now:          time.Now,
	}
}

// inTx runs fn in a transaction and retries the whole unit when the store
// reports a serialization conflict. After the last attempt the conflict is
// returned to the caller.
func (s *Service) inTx(ctx context.Context, fn func(tx Store) error) error {
	attempts := s.cfg.ConflictRetries + 1

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		if attempt == attempts {
			break
		}

		s.log.Warn().Err(err).Int("attempt", attempt).Msg("transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return err
}

// recordEvent writes the event log row inside tx and returns the event to
// publish once the transaction has committed.
func (s *Service) recordEvent(ctx context.Context, tx Store, eventType string, b *Booking, payload map[string]any) (notify.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return notify.Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	at := s.now()
	bookingID := b.ID
	if err := tx.InsertEvent(ctx, EventLog{
		EventType: eventType,
		BookingID: &bookingID,
		Payload:   data,
		CreatedAt: at,
	}); err != nil {
		return notify.Event{}, err
	}

	return notify.Event{Type: eventType, BookingID: b.ID, Payload: payload, OccurredAt: at}, nil
}

func (s *Service) publish(ctx context.Context, events ...notify.Event) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.Error().Err(err).
				Str("type", ev.Type).
				Str("booking_id", ev.BookingID.String()).
				Msg("failed to publish booking event")
		}
	}
}

func bookingPayload(b *Booking) map[string]any {
	return map[string]any{
		"bookingId":        b.ID.String(),
		"slotId":           b.SlotID.String(),
		"patientId":        b.PatientID.String(),
		"providerId":       b.ProviderID.String(),
		"status":           string(b.Status),
		"consultationType": string(b.ConsultationType),
		"priority":         string(b.Priority),
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
