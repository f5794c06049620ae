// Package recurrence expands repetition rules into concrete calendar dates.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

var ErrInvalidRecurrence = errors.New("invalid recurrence rule")

// Rule describes a repetition anchored on Start. A nil End means the rule is
// open ended and the query window alone bounds the expansion.
type Rule struct {
	Frequency Frequency
	Interval  int
	Start     time.Time
	End       *time.Time
}

func (r Rule) Validate() error {
	switch r.Frequency {
	case Daily, Weekly, Monthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidRecurrence, r.Interval)
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidRecurrence)
	}
	if r.End != nil && DateOf(*r.End).Before(DateOf(r.Start)) {
		return fmt.Errorf("%w: end date %s is before start date %s",
			ErrInvalidRecurrence, r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return nil
}

// Dates collects every occurrence of the rule within [from, to].
func (r Rule) Dates(from, to time.Time) ([]time.Time, error) {
	it, err := r.Expand(from, to)
	if err != nil {
		return nil, err
	}

	var out []time.Time
	for d, ok := it.Next(); ok; d, ok = it.Next() {
		out = append(out, d)
	}
	return out, nil
}

// String renders the rule in RFC 5545 RRULE form, e.g. FREQ=WEEKLY;INTERVAL=2;BYDAY=MO.
func (r Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FREQ=%s;INTERVAL=%d", strings.ToUpper(string(r.Frequency)), r.Interval)

	switch r.Frequency {
	case Weekly:
		b.WriteString(";BYDAY=")
		b.WriteString(byDay[DateOf(r.Start).Weekday()])
	case Monthly:
		fmt.Fprintf(&b, ";BYMONTHDAY=%d", r.Start.Day())
	}

	if r.End != nil {
		b.WriteString(";UNTIL=")
		b.WriteString(DateOf(*r.End).Format("20060102"))
	}
	return b.String()
}

var byDay = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
