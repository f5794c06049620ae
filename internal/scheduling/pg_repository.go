package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    queryable
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&PgRepository{pool: r.pool, q: tx}); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"

	activeTemplateConstraint = "uq_active_template_per_weekday"
)

// mapPgError translates postgres error codes the service reacts to into
// package errors. Anything else is returned unchanged.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Message)
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeTemplateConstraint:
		return ErrOverlappingTemplate
	}
	return err
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

const templateColumns = `id, provider_id, weekday, start_minute, end_minute, slot_duration_minutes,
	capacity, break_start_minute, break_end_minute, kind, interval_weeks,
	valid_from, valid_until, active, created_at, updated_at, deleted_at`

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var (
		t                    AvailabilityTemplate
		weekday, start, end  int
		breakStart, breakEnd *int
		kind                 string
	)

	err := row.Scan(
		&t.ID,
		&t.ProviderID,
		&weekday,
		&start,
		&end,
		&t.SlotDuration,
		&t.Capacity,
		&breakStart,
		&breakEnd,
		&kind,
		&t.IntervalWeeks,
		&t.ValidFrom,
		&t.ValidUntil,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Weekday = time.Weekday(weekday)
	t.StartTime = ClockTime(start)
	t.EndTime = ClockTime(end)
	t.Kind = SlotKind(kind)
	if breakStart != nil && breakEnd != nil {
		bs, be := ClockTime(*breakStart), ClockTime(*breakEnd)
		t.BreakStart, t.BreakEnd = &bs, &be
	}
	return &t, nil
}

const slotColumns = `id, provider_id, template_id, slot_date, start_time, end_time,
	capacity, booked_count, available, kind, notes, created_at, updated_at`

func scanSlot(row pgx.Row) (*SlotInstance, error) {
	var (
		s    SlotInstance
		kind string
	)

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.TemplateID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Capacity,
		&s.BookedCount,
		&s.Available,
		&kind,
		&s.Notes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Kind = SlotKind(kind)
	return &s, nil
}

const bookingColumns = `id, slot_id, patient_id, provider_id, status, consultation_type, priority,
	reason, notes, cancel_reason, cancelled_by, previous_booking_id,
	created_at, updated_at, cancelled_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b                                  Booking
		status, consultationType, priority string
	)

	err := row.Scan(
		&b.ID,
		&b.SlotID,
		&b.PatientID,
		&b.ProviderID,
		&status,
		&consultationType,
		&priority,
		&b.Reason,
		&b.Notes,
		&b.CancelReason,
		&b.CancelledBy,
		&b.PreviousBookingID,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Status = BookingStatus(status)
	b.ConsultationType = ConsultationType(consultationType)
	b.Priority = Priority(priority)
	return &b, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func clockPtr(c *ClockTime) *int {
	if c == nil {
		return nil
	}
	v := int(*c)
	return &v
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

// CreatePatient and CreateProvider are used by the seed command.
func (r *PgRepository) CreatePatient(ctx context.Context, name string, email *string) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, email, created_at, updated_at
	`, uuid.New(), name, email)
	return scanPatient(row)
}

func (r *PgRepository) CreateProvider(ctx context.Context, name string, specialty *string) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO providers (id, name, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, specialty, created_at, updated_at
	`, uuid.New(), name, specialty)
	return scanProvider(row)
}

func (r *PgRepository) CreateTemplate(ctx context.Context, t *AvailabilityTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO availability_templates (
			id, provider_id, weekday, start_minute, end_minute, slot_duration_minutes,
			capacity, break_start_minute, break_end_minute, kind, interval_weeks,
			valid_from, valid_until, active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+templateColumns,
		t.ID, t.ProviderID, int(t.Weekday), int(t.StartTime), int(t.EndTime), t.SlotDuration,
		t.Capacity, clockPtr(t.BreakStart), clockPtr(t.BreakEnd), string(t.Kind), t.IntervalWeeks,
		t.ValidFrom, t.ValidUntil, t.Active,
	)

	saved, err := scanTemplate(row)
	if err != nil {
		return mapPgError(err)
	}
	*t = *saved
	return nil
}

func (r *PgRepository) UpdateTemplate(ctx context.Context, t *AvailabilityTemplate) error {
	row := r.q.QueryRow(ctx, `
		UPDATE availability_templates
		SET weekday = $2,
		    start_minute = $3,
		    end_minute = $4,
		    slot_duration_minutes = $5,
		    capacity = $6,
		    break_start_minute = $7,
		    break_end_minute = $8,
		    kind = $9,
		    interval_weeks = $10,
		    valid_from = $11,
		    valid_until = $12,
		    active = $13,
		    updated_at = now()
		WHERE id = $1
		  AND deleted_at IS NULL
		RETURNING `+templateColumns,
		t.ID, int(t.Weekday), int(t.StartTime), int(t.EndTime), t.SlotDuration,
		t.Capacity, clockPtr(t.BreakStart), clockPtr(t.BreakEnd), string(t.Kind), t.IntervalWeeks,
		t.ValidFrom, t.ValidUntil, t.Active,
	)

	saved, err := scanTemplate(row)
	if err != nil {
		return mapPgError(err)
	}
	*t = *saved
	return nil
}

func (r *PgRepository) GetTemplateByID(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (r *PgRepository) ListTemplates(ctx context.Context, providerID uuid.UUID, includeInactive bool) ([]AvailabilityTemplate, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE provider_id = $1
		  AND ($2 OR (active AND deleted_at IS NULL))
		ORDER BY weekday, start_minute
	`, providerID, includeInactive)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTemplate)
}

func (r *PgRepository) FindActiveTemplate(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, excludeID uuid.UUID) (*AvailabilityTemplate, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE provider_id = $1
		  AND weekday = $2
		  AND id <> $3
		  AND active
		  AND deleted_at IS NULL
		LIMIT 1
	`, providerID, int(weekday), excludeID)
	return scanTemplate(row)
}

func (r *PgRepository) SoftDeleteTemplate(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE availability_templates
		SET active = false,
		    deleted_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *PgRepository) ListProvidersWithActiveTemplates(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT provider_id
		FROM availability_templates
		WHERE active
		  AND deleted_at IS NULL
		ORDER BY provider_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertSlotIfAbsent inserts s unless a slot with the same provider, start and
// end already exists. It returns the stored row and whether it was created.
func (r *PgRepository) InsertSlotIfAbsent(ctx context.Context, s SlotInstance) (*SlotInstance, bool, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO slot_instances (
			id, provider_id, template_id, slot_date, start_time, end_time,
			capacity, booked_count, available, kind, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, now(), now())
		ON CONFLICT (provider_id, start_time, end_time) DO NOTHING
		RETURNING `+slotColumns,
		id, s.ProviderID, s.TemplateID, s.Date, s.StartTime, s.EndTime,
		s.Capacity, s.Available, string(s.Kind), s.Notes,
	)

	created, err := scanSlot(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, false, err
	}

	existing, err := scanSlot(r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slot_instances
		WHERE provider_id = $1
		  AND start_time = $2
		  AND end_time = $3
	`, s.ProviderID, s.StartTime, s.EndTime))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*SlotInstance, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slot_instances
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]SlotInstance, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slot_instances
		WHERE provider_id = $1
		  AND slot_date = $2
		ORDER BY start_time, end_time
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSlot)
}

func (r *PgRepository) UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*SlotInstance, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE slot_instances
		SET capacity = COALESCE($2, capacity),
		    available = COALESCE($3, available),
		    notes = COALESCE($4, notes),
		    updated_at = now()
		WHERE id = $1
		  AND COALESCE($2, capacity) >= booked_count
		RETURNING `+slotColumns,
		id, patch.Capacity, patch.Available, patch.Notes,
	)

	updated, err := scanSlot(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}

	current, err := r.GetSlotByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Capacity == nil {
		return nil, ErrSlotNotFound
	}
	return nil, invalid("capacity", "capacity %d is below the %d bookings already held", *patch.Capacity, current.BookedCount)
}

func (r *PgRepository) IncrementBookedCount(ctx context.Context, slotID uuid.UUID) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE slot_instances
		SET booked_count = booked_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND available
		  AND booked_count < capacity
	`, slotID)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) DecrementBookedCount(ctx context.Context, slotID uuid.UUID) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE slot_instances
		SET booked_count = booked_count - 1,
		    updated_at = now()
		WHERE id = $1
		  AND booked_count > 0
	`, slotID)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) CreateBooking(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO bookings (
			id, slot_id, patient_id, provider_id, status, consultation_type, priority,
			reason, notes, previous_booking_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+bookingColumns,
		b.ID, b.SlotID, b.PatientID, b.ProviderID, string(b.Status), string(b.ConsultationType),
		string(b.Priority), b.Reason, b.Notes, b.PreviousBookingID,
	)

	saved, err := scanBooking(row)
	if err != nil {
		return mapPgError(err)
	}
	*b = *saved
	return nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, change StatusChange) (*Booking, error) {
	var (
		cancelledAt *time.Time
		cancelledBy *uuid.UUID
		reason      *string
	)
	if to == StatusCancelled {
		at := change.At
		cancelledAt, cancelledBy, reason = &at, change.ActorID, change.Reason
	}

	row := r.q.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    cancel_reason = COALESCE($4, cancel_reason),
		    cancelled_by = COALESCE($5, cancelled_by),
		    cancelled_at = COALESCE($6, cancelled_at),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns,
		id, string(to), string(from), reason, cancelledBy, cancelledAt,
	)
	return scanBooking(row)
}

func (r *PgRepository) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

func (r *PgRepository) ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE slot_id = $1
		ORDER BY created_at, id
	`, slotID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// ListEventsByBooking returns the event log rows of one booking, oldest first.
func (r *PgRepository) ListEventsByBooking(ctx context.Context, bookingID uuid.UUID) ([]EventLog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, event_type, booking_id, payload, created_at
		FROM event_logs
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.BookingID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
