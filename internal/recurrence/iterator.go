package recurrence

import "time"

// Iterator yields occurrences lazily in ascending order. It is finite because
// the query window always bounds it, and Reset rewinds it to the first
// occurrence inside the window.
type Iterator struct {
	rule  Rule
	start time.Time
	from  time.Time
	to    time.Time
	first int
	step  int
	empty bool
}

// Expand prepares an iterator over the occurrences of r that fall in [from, to].
func (r Rule) Expand(from, to time.Time) (*Iterator, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	it := &Iterator{
		rule:  r,
		start: DateOf(r.Start),
		from:  DateOf(from),
		to:    DateOf(to),
	}

	if it.from.Before(it.start) {
		it.from = it.start
	}
	if r.End != nil {
		if end := DateOf(*r.End); end.Before(it.to) {
			it.to = end
		}
	}
	if it.to.Before(it.from) {
		it.empty = true
		return it, nil
	}

	it.first = it.firstStep()
	it.step = it.first
	return it, nil
}

func (it *Iterator) Next() (time.Time, bool) {
	if it.empty {
		return time.Time{}, false
	}

	for {
		date, ok := it.occurrence(it.step)
		if date.After(it.to) {
			return time.Time{}, false
		}
		it.step++
		if !ok || date.Before(it.from) {
			continue
		}
		return date, true
	}
}

func (it *Iterator) Reset() {
	it.step = it.first
}

// firstStep skips whole periods that end before the window starts.
func (it *Iterator) firstStep() int {
	interval := it.rule.Interval

	switch it.rule.Frequency {
	case Daily, Weekly:
		period := interval
		if it.rule.Frequency == Weekly {
			period = 7 * interval
		}
		days := int(it.from.Sub(it.start).Hours() / 24)
		return (days + period - 1) / period
	case Monthly:
		months := (it.from.Year()-it.start.Year())*12 + int(it.from.Month()) - int(it.start.Month())
		return months / interval
	}
	return 0
}

// occurrence returns the n-th candidate date. For monthly rules a month that
// lacks the anchor day yields ok=false and the first day of that month, which
// is still usable for the window bound check.
func (it *Iterator) occurrence(n int) (time.Time, bool) {
	k := n * it.rule.Interval

	switch it.rule.Frequency {
	case Daily:
		return it.start.AddDate(0, 0, k), true
	case Weekly:
		return it.start.AddDate(0, 0, 7*k), true
	default:
		y, m, d := it.start.Date()
		candidate := time.Date(y, m+time.Month(k), d, 0, 0, 0, 0, time.UTC)
		if candidate.Day() != d {
			return time.Date(y, m+time.Month(k), 1, 0, 0, 0, 0, time.UTC), false
		}
		return candidate, true
	}
}
