package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/recurrence"
)

// Materializer turns availability templates into concrete slot rows. It only
// ever inserts missing slots; existing rows, and the bookings they carry, are
// never modified or removed.
type Materializer struct {
	loc *time.Location
	log zerolog.Logger
}

func NewMaterializer(loc *time.Location, logger zerolog.Logger) *Materializer {
	if loc == nil {
		loc = time.UTC
	}
	return &Materializer{
		loc: loc,
		log: logger.With().Str("component", "materializer").Logger(),
	}
}

// Plan computes the slots a template yields for dates in [from, to] without
// touching storage. A remainder shorter than one slot at the end of a window
// is dropped.
func (m *Materializer) Plan(t AvailabilityTemplate, from, to time.Time) ([]SlotInstance, error) {
	dates, err := t.Rule().Dates(from, to)
	if err != nil {
		return nil, fmt.Errorf("expand template %s: %w", t.ID, err)
	}

	step := ClockTime(t.SlotDuration)
	kind := t.Kind
	if kind == "" {
		kind = SlotRegular
	}

	var out []SlotInstance
	for _, date := range dates {
		for _, w := range t.windows() {
			windowEnd := w[1].On(date, m.loc)
			for c := w[0]; c+step <= w[1]; c += step {
				start := c.On(date, m.loc)
				// Wall-clock times skipped by a DST change do not exist on this date.
				if ClockTime(start.Hour()*60+start.Minute()) != c {
					continue
				}
				end := start.Add(time.Duration(step) * time.Minute)
				if end.After(windowEnd) {
					continue
				}
				templateID := t.ID
				out = append(out, SlotInstance{
					ProviderID:  t.ProviderID,
					TemplateID:  &templateID,
					Date:        date,
					StartTime:   start,
					EndTime:     end,
					Capacity:    t.Capacity,
					BookedCount: 0,
					Available:   true,
					Kind:        kind,
				})
			}
		}
	}
	return out, nil
}

// Materialize makes sure every slot the provider's active templates produce in
// [from, to] exists, and returns them sorted by start time along with the number
// of rows it created. Dates without an active template produce nothing.
func (m *Materializer) Materialize(ctx context.Context, store Store, providerID uuid.UUID, from, to time.Time) ([]SlotInstance, int, error) {
	templates, err := store.ListTemplates(ctx, providerID, false)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}

	var (
		slots   []SlotInstance
		created int
	)
	for _, t := range templates {
		planned, err := m.Plan(t, from, to)
		if err != nil {
			return nil, 0, err
		}
		for _, candidate := range planned {
			slot, inserted, err := store.InsertSlotIfAbsent(ctx, candidate)
			if err != nil {
				return nil, 0, fmt.Errorf("insert slot: %w", err)
			}
			if inserted {
				created++
			}
			slots = append(slots, *slot)
		}
	}

	sortSlots(slots)

	if created > 0 {
		m.log.Debug().
			Str("provider_id", providerID.String()).
			Str("from", from.Format(time.DateOnly)).
			Str("to", to.Format(time.DateOnly)).
			Int("created", created).
			Msg("materialized slots")
	}

	return slots, created, nil
}

// DateIn returns the calendar date of t as seen in the materializer's zone.
func (m *Materializer) DateIn(t time.Time) time.Time {
	return recurrence.DateOf(t.In(m.loc))
}

func sortSlots(slots []SlotInstance) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].EndTime.Before(slots[j].EndTime)
		}
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}
