// Package clock handles wall-clock times of day in HH:MM form.
package clock

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrFormat is returned for strings that are not a 24-hour HH:MM time.
var ErrFormat = errors.New("clock: invalid HH:MM time")

const minutesPerDay = 24 * 60

var hhmm = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// Time is a time of day as minutes since midnight, in [0, 1440).
type Time int

// Valid reports whether s is an HH:MM time. The leading zero on the hour
// is optional.
func Valid(s string) bool {
	return hhmm.MatchString(s)
}

// Parse parses an HH:MM string.
func Parse(s string) (Time, error) {
	m := hhmm.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return Time(h*60 + min), nil
}

// MustParse is Parse for constants. It panics on malformed input.
func MustParse(s string) Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// OrDefault parses s, returning def when s is malformed.
func OrDefault(s string, def Time) Time {
	t, err := Parse(s)
	if err != nil {
		return def
	}
	return t
}

// FromMinutes wraps any minute count into a time of day.
func FromMinutes(minutes int) Time {
	m := minutes % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return Time(m)
}

// Of returns the time of day of t in t's location, at minute precision.
func Of(t time.Time) Time {
	return Time(t.Hour()*60 + t.Minute())
}

func (t Time) Minutes() int { return int(t) }
func (t Time) Hour() int    { return int(t) / 60 }
func (t Time) Minute() int  { return int(t) % 60 }

// String formats t as zero-padded HH:MM.
func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add shifts t by delta minutes, wrapping around midnight in either
// direction.
func (t Time) Add(delta int) Time {
	return FromMinutes(int(t) + delta)
}

// On returns the instant at time of day t on the calendar date of day.
func (t Time) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}

// AddMinutes adds delta minutes to an HH:MM string and formats the
// result. Only the time of day is kept.
func AddMinutes(s string, delta int) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.Add(delta).String(), nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Time) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
