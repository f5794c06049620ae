package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{
			name: "valid weekly",
			rule: Rule{Frequency: Weekly, Interval: 1, Start: day(2025, 1, 6)},
		},
		{
			name:    "zero interval",
			rule:    Rule{Frequency: Daily, Interval: 0, Start: day(2025, 1, 6)},
			wantErr: true,
		},
		{
			name:    "unknown frequency",
			rule:    Rule{Frequency: "yearly", Interval: 1, Start: day(2025, 1, 6)},
			wantErr: true,
		},
		{
			name:    "end before start",
			rule:    Rule{Frequency: Daily, Interval: 1, Start: day(2025, 2, 1), End: ptr(day(2025, 1, 1))},
			wantErr: true,
		},
		{
			name: "end equal to start",
			rule: Rule{Frequency: Daily, Interval: 1, Start: day(2025, 2, 1), End: ptr(day(2025, 2, 1))},
		},
		{
			name:    "missing start",
			rule:    Rule{Frequency: Daily, Interval: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecurrence)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRule_Dates_Daily(t *testing.T) {
	r := Rule{Frequency: Daily, Interval: 2, Start: day(2025, 1, 1)}

	got, err := r.Dates(day(2025, 1, 4), day(2025, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2025, 1, 5), day(2025, 1, 7), day(2025, 1, 9)}, got)
}

func TestRule_Dates_WeeklyKeepsWeekday(t *testing.T) {
	// 2025-01-06 is a Monday.
	r := Rule{Frequency: Weekly, Interval: 2, Start: day(2025, 1, 6), End: ptr(day(2025, 2, 28))}

	got, err := r.Dates(day(2025, 1, 1), day(2025, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2025, 1, 6), day(2025, 1, 20), day(2025, 2, 3), day(2025, 2, 17)}, got)
	for _, d := range got {
		assert.Equal(t, time.Monday, d.Weekday())
	}
}

func TestRule_Dates_MonthlySkipsMissingDays(t *testing.T) {
	r := Rule{Frequency: Monthly, Interval: 1, Start: day(2025, 1, 31)}

	got, err := r.Dates(day(2025, 1, 1), day(2025, 6, 30))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2025, 1, 31), day(2025, 3, 31), day(2025, 5, 31)}, got)
}

func TestRule_Dates_MonthlyWindowStartsMidYear(t *testing.T) {
	r := Rule{Frequency: Monthly, Interval: 2, Start: day(2024, 1, 15)}

	got, err := r.Dates(day(2024, 4, 20), day(2024, 9, 30))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 5, 15), day(2024, 7, 15), day(2024, 9, 15)}, got)
}

func TestRule_Dates_NoIntersection(t *testing.T) {
	r := Rule{Frequency: Daily, Interval: 1, Start: day(2025, 1, 1), End: ptr(day(2025, 1, 31))}

	got, err := r.Dates(day(2025, 3, 1), day(2025, 3, 31))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Dates(day(2025, 1, 10), day(2025, 1, 5))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRule_Dates_InvalidRule(t *testing.T) {
	r := Rule{Frequency: Daily, Interval: 0, Start: day(2025, 1, 1)}

	_, err := r.Dates(day(2025, 1, 1), day(2025, 1, 31))
	assert.ErrorIs(t, err, ErrInvalidRecurrence)
}

func TestIterator_Reset(t *testing.T) {
	r := Rule{Frequency: Weekly, Interval: 1, Start: day(2025, 1, 6)}

	it, err := r.Expand(day(2025, 1, 1), day(2025, 1, 31))
	require.NoError(t, err)

	var first []time.Time
	for d, ok := it.Next(); ok; d, ok = it.Next() {
		first = append(first, d)
	}
	_, ok := it.Next()
	assert.False(t, ok, "exhausted iterator stays exhausted")

	it.Reset()
	var second []time.Time
	for d, ok := it.Next(); ok; d, ok = it.Next() {
		second = append(second, d)
	}

	assert.Len(t, first, 4)
	assert.Equal(t, first, second)
}

func TestRule_String(t *testing.T) {
	r := Rule{Frequency: Weekly, Interval: 2, Start: day(2025, 1, 6), End: ptr(day(2025, 3, 31))}
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO;UNTIL=20250331", r.String())

	m := Rule{Frequency: Monthly, Interval: 1, Start: day(2025, 1, 31)}
	assert.Equal(t, "FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=31", m.String())
}
