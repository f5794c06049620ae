// Package notify hands booking events to the notification layer. Delivery
// (SMS, email, push) happens in whatever consumes the queue.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	TypeBookingCreated     = "booking:created"
	TypeBookingCancelled   = "booking:cancelled"
	TypeBookingRescheduled = "booking:rescheduled"
	TypeBookingCompleted   = "booking:completed"
	TypeBookingNoShow      = "booking:no_show"
)

type Event struct {
	Type       string
	BookingID  uuid.UUID
	Payload    map[string]any
	OccurredAt time.Time
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type taskPayload struct {
	BookingID  string         `json:"bookingId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

func encodePayload(ev Event) ([]byte, error) {
	return json.Marshal(taskPayload{
		BookingID:  ev.BookingID.String(),
		OccurredAt: ev.OccurredAt.UTC(),
		Data:       ev.Payload,
	})
}

// AsynqPublisher enqueues every event as an asynq task on a single queue.
type AsynqPublisher struct {
	client *asynq.Client
	queue  string
	log    zerolog.Logger
}

func NewAsynqPublisher(opt asynq.RedisClientOpt, queue string, logger zerolog.Logger) *AsynqPublisher {
	return &AsynqPublisher{
		client: asynq.NewClient(opt),
		queue:  queue,
		log:    logger.With().Str("component", "notify").Logger(),
	}
}

func (p *AsynqPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := encodePayload(ev)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}

	info, err := p.client.EnqueueContext(ctx, asynq.NewTask(ev.Type, payload),
		asynq.Queue(p.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Type, err)
	}

	p.log.Debug().
		Str("task_id", info.ID).
		Str("type", ev.Type).
		Str("booking_id", ev.BookingID.String()).
		Msg("event enqueued")
	return nil
}

func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher only logs events. Used when NOTIFY_ENABLED is false.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: logger.With().Str("component", "notify").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.log.Info().
		Str("type", ev.Type).
		Str("booking_id", ev.BookingID.String()).
		Interface("payload", ev.Payload).
		Msg("booking event")
	return nil
}
