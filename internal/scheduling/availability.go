package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/recurrence"
)

// -- Availability templates --

func (s *Service) CreateTemplate(ctx context.Context, t *AvailabilityTemplate) error {
	if t.Kind == "" {
		t.Kind = SlotRegular
	}
	if t.IntervalWeeks == 0 {
		t.IntervalWeeks = 1
	}
	if t.ValidFrom.IsZero() {
		t.ValidFrom = s.materializer.DateIn(s.now())
	}
	t.ValidFrom = recurrence.DateOf(t.ValidFrom)
	t.Active = true
	t.DeletedAt = nil

	if err := t.Validate(); err != nil {
		return err
	}

	if _, err := s.repo.GetProviderByID(ctx, t.ProviderID); err != nil {
		return err
	}

	if err := s.ensureNoOverlap(ctx, t); err != nil {
		return err
	}

	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		return fmt.Errorf("create template: %w", err)
	}

	s.log.Info().
		Str("template_id", t.ID.String()).
		Str("provider_id", t.ProviderID.String()).
		Str("weekday", t.Weekday.String()).
		Msg("availability template created")
	return nil
}

// UpdateTemplate replaces the editable fields of a template. The active flag is
// left alone; see SetTemplateActive. Slots that were already materialized keep
// their original shape.
func (s *Service) UpdateTemplate(ctx context.Context, t *AvailabilityTemplate) error {
	existing, err := s.repo.GetTemplateByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing.DeletedAt != nil {
		return ErrTemplateNotFound
	}

	t.ProviderID = existing.ProviderID
	t.CreatedAt = existing.CreatedAt
	t.Active = existing.Active
	t.DeletedAt = nil
	if t.Kind == "" {
		t.Kind = existing.Kind
	}
	if t.IntervalWeeks == 0 {
		t.IntervalWeeks = existing.IntervalWeeks
	}
	if t.ValidFrom.IsZero() {
		t.ValidFrom = existing.ValidFrom
	}
	t.ValidFrom = recurrence.DateOf(t.ValidFrom)

	if err := t.Validate(); err != nil {
		return err
	}

	if t.Active {
		if err := s.ensureNoOverlap(ctx, t); err != nil {
			return err
		}
	}

	if err := s.repo.UpdateTemplate(ctx, t); err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

func (s *Service) ensureNoOverlap(ctx context.Context, t *AvailabilityTemplate) error {
	other, err := s.repo.FindActiveTemplate(ctx, t.ProviderID, t.Weekday, t.ID)
	if err != nil && !errors.Is(err, ErrTemplateNotFound) {
		return fmt.Errorf("check overlapping template: %w", err)
	}
	if other != nil {
		return ErrOverlappingTemplate
	}
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	return s.repo.GetTemplateByID(ctx, id)
}

// ListTemplates returns the provider's active templates, or every template
// including deactivated and deleted ones when includeInactive is set.
func (s *Service) ListTemplates(ctx context.Context, providerID uuid.UUID, includeInactive bool) ([]AvailabilityTemplate, error) {
	templates, err := s.repo.ListTemplates(ctx, providerID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// SetTemplateActive switches a template on or off. Turning one on fails with
// ErrOverlappingTemplate if another active template covers the same weekday.
func (s *Service) SetTemplateActive(ctx context.Context, id uuid.UUID, active bool) (*AvailabilityTemplate, error) {
	t, err := s.repo.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.DeletedAt != nil {
		return nil, ErrTemplateNotFound
	}
	if t.Active == active {
		return t, nil
	}

	t.Active = active
	if active {
		if err := s.ensureNoOverlap(ctx, t); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	s.log.Info().Str("template_id", id.String()).Bool("active", active).Msg("availability template toggled")
	return t, nil
}

// DeleteTemplate soft-deletes a template so slots keep their provenance.
func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetTemplateByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.DeletedAt != nil {
		return nil
	}
	if err := s.repo.SoftDeleteTemplate(ctx, id, s.now()); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// -- Slots --

// ListSlots materializes the date if needed and returns every slot the
// provider has on it. A positive duration keeps only slots of exactly that
// length; adjacent shorter slots are never merged.
func (s *Service) ListSlots(ctx context.Context, providerID uuid.UUID, date time.Time, durationMinutes int) ([]SlotInstance, error) {
	if err := checkSlotQuery(providerID, durationMinutes); err != nil {
		return nil, err
	}

	slots, err := s.slotsForDate(ctx, providerID, recurrence.DateOf(date))
	if err != nil {
		return nil, err
	}
	return withDuration(slots, durationMinutes), nil
}

// GetAvailableSlots returns the slots on date that can still take a booking,
// sorted by start time.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time, durationMinutes int) ([]SlotInstance, error) {
	slots, err := s.ListSlots(ctx, providerID, date, durationMinutes)
	if err != nil {
		return nil, err
	}

	available := make([]SlotInstance, 0, len(slots))
	for _, slot := range slots {
		if slot.HasCapacity() {
			available = append(available, slot)
		}
	}
	return available, nil
}

// CountSlots counts the slots already stored for the date, bookable or not.
// It does not materialize.
func (s *Service) CountSlots(ctx context.Context, providerID uuid.UUID, date time.Time, durationMinutes int) (int, error) {
	if err := checkSlotQuery(providerID, durationMinutes); err != nil {
		return 0, err
	}

	slots, err := s.repo.ListSlotsByDate(ctx, providerID, recurrence.DateOf(date))
	if err != nil {
		return 0, fmt.Errorf("list slots: %w", err)
	}
	return len(withDuration(slots, durationMinutes)), nil
}

func checkSlotQuery(providerID uuid.UUID, durationMinutes int) error {
	if providerID == uuid.Nil {
		return invalid("doctorId", "doctor id is required")
	}
	if durationMinutes < 0 {
		return invalid("duration", "duration must not be negative")
	}
	return nil
}

func withDuration(slots []SlotInstance, durationMinutes int) []SlotInstance {
	if durationMinutes == 0 {
		return slots
	}
	filtered := slots[:0]
	for _, slot := range slots {
		if slot.DurationMinutes() == durationMinutes {
			filtered = append(filtered, slot)
		}
	}
	return filtered
}

func (s *Service) slotsForDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]SlotInstance, error) {
	if _, _, err := s.materializer.Materialize(ctx, s.repo, providerID, date, date); err != nil {
		return nil, fmt.Errorf("materialize %s: %w", date.Format(time.DateOnly), err)
	}

	slots, err := s.repo.ListSlotsByDate(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	sortSlots(slots)
	return slots, nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*SlotInstance, error) {
	return s.repo.GetSlotByID(ctx, id)
}

// UpdateSlot applies a provider edit. Capacity may not drop below the number
// of bookings the slot already holds.
func (s *Service) UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*SlotInstance, error) {
	if patch.Capacity != nil && *patch.Capacity < 1 {
		return nil, invalid("capacity", "capacity must be at least 1")
	}

	slot, err := s.repo.UpdateSlot(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// MaterializeRange pre-generates slots for one provider, e.g. for backfill.
func (s *Service) MaterializeRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]SlotInstance, int, error) {
	from, to = recurrence.DateOf(from), recurrence.DateOf(to)
	if to.Before(from) {
		return nil, 0, invalid("to", "range end must not be before range start")
	}
	if s.cfg.MaterializeMaxDays > 0 {
		if days := int(to.Sub(from).Hours()/24) + 1; days > s.cfg.MaterializeMaxDays {
			return nil, 0, invalid("to", "range covers %d days, at most %d allowed", days, s.cfg.MaterializeMaxDays)
		}
	}

	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, 0, err
	}

	return s.materializer.Materialize(ctx, s.repo, providerID, from, to)
}

// MaterializeAll pre-generates slots for every provider with an active
// template. A failing provider is logged and skipped.
func (s *Service) MaterializeAll(ctx context.Context, from, to time.Time) (int, error) {
	providers, err := s.repo.ListProvidersWithActiveTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list providers: %w", err)
	}

	from, to = recurrence.DateOf(from), recurrence.DateOf(to)

	var (
		created int
		errs    []error
	)
	for _, providerID := range providers {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		_, n, err := s.materializer.Materialize(ctx, s.repo, providerID, from, to)
		if err != nil {
			s.log.Error().Err(err).Str("provider_id", providerID.String()).Msg("materialize provider failed")
			errs = append(errs, fmt.Errorf("provider %s: %w", providerID, err))
			continue
		}
		created += n
	}

	return created, errors.Join(errs...)
}
