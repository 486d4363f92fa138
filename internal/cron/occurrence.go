package cron

import "time"

// DefaultLookback is how far LastOccurrence searches by default: one
// leap year of minutes.
const DefaultLookback = 366 * 24 * 60

// Matches reports whether t (at minute precision) satisfies the expression.
func (e *Expression) Matches(t time.Time) bool {
	if !e.Minute.Has(t.Minute()) || !e.Hour.Has(t.Hour()) {
		return false
	}
	return e.dayMatches(t)
}

// dayMatches checks month plus the day-of-month/day-of-week pair. With
// both day fields restricted either may match; otherwise both must.
func (e *Expression) dayMatches(t time.Time) bool {
	if !e.Month.Has(int(t.Month())) {
		return false
	}
	dom := e.DayOfMonth.Has(t.Day())
	dow := e.DayOfWeek.Has(int(t.Weekday()))
	if !e.DayOfMonth.any && !e.DayOfWeek.any {
		return dom || dow
	}
	return dom && dow
}

// Last returns the most recent minute at or before ref that matches the
// expression, searching back at most lookback minutes. The result is in
// ref's location with seconds cleared. ok is false when the window holds
// no match.
//
// The result is the same as testing ref, ref-1m, ref-2m, ... in turn;
// whole days and hours that cannot match are skipped.
func (e *Expression) Last(ref time.Time, lookback int) (time.Time, bool) {
	t := ref.Truncate(time.Minute)
	offset := 0
	for offset <= lookback {
		if !e.dayMatches(t) {
			if skip, ok := minutesIntoDay(t); ok {
				offset += skip
				t = t.Add(-time.Duration(skip) * time.Minute)
				continue
			}
		} else if !e.Hour.Has(t.Hour()) {
			if skip, ok := minutesIntoHour(t); ok {
				offset += skip
				t = t.Add(-time.Duration(skip) * time.Minute)
				continue
			}
		} else if e.Minute.Has(t.Minute()) {
			return t, true
		}
		offset++
		t = t.Add(-time.Minute)
	}
	return time.Time{}, false
}

// Next returns the first minute strictly after ref that matches, looking
// ahead at most lookahead minutes.
func (e *Expression) Next(ref time.Time, lookahead int) (time.Time, bool) {
	t := ref.Truncate(time.Minute).Add(time.Minute)
	for offset := 1; offset <= lookahead; offset++ {
		if e.Matches(t) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}

// minutesIntoDay returns how many whole minutes separate t from the last
// minute of the previous calendar day. ok is false if the start of the
// day cannot be located unambiguously (DST gap at midnight).
func minutesIntoDay(t time.Time) (int, bool) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if start.After(t) || start.Day() != t.Day() {
		return 0, false
	}
	return int(t.Sub(start)/time.Minute) + 1, true
}

// minutesIntoHour is minutesIntoDay for the current wall-clock hour.
func minutesIntoHour(t time.Time) (int, bool) {
	start := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	if start.After(t) || start.Hour() != t.Hour() || start.Day() != t.Day() {
		return 0, false
	}
	return int(t.Sub(start)/time.Minute) + 1, true
}

// LastOccurrence parses expression and returns its most recent match at
// or before ref within lookback minutes. A parse failure is reported the
// same way as "no match"; call Validate first to tell them apart.
func LastOccurrence(expression string, ref time.Time, lookback int) (time.Time, bool) {
	e, err := Parse(expression)
	if err != nil {
		return time.Time{}, false
	}
	return e.Last(ref, lookback)
}

// IsDue reports whether expression matches the minute containing t.
// Invalid expressions are never due.
func IsDue(expression string, t time.Time) bool {
	e, err := Parse(expression)
	if err != nil {
		return false
	}
	return e.Matches(t.Truncate(time.Minute))
}
