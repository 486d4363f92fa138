// Package schedule decides whether it is currently day or night from
// manual clock times, sunrise/sunset, or a pair of cron expressions.
package schedule

import "github.com/dohr-michael/umbra/internal/geo"

// Defaults used when a configured value is missing or malformed.
const (
	DefaultDayStart   = "06:00"
	DefaultNightStart = "18:00"
	DefaultDayCron    = "0 6 * * *"
	DefaultNightCron  = "0 18 * * *"
)

// Source names where a decision's boundaries came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceLocation Source = "location"
	SourceCron     Source = "cron"
	SourceDefault  Source = "default"
)

// Period is the outcome of a decision.
type Period string

const (
	Day   Period = "day"
	Night Period = "night"
)

// Opposite returns the other period.
func (p Period) Opposite() Period {
	if p == Night {
		return Day
	}
	return Night
}

// Valid reports whether p is Day or Night.
func (p Period) Valid() bool { return p == Day || p == Night }

// Config selects and parameterizes the time source. It is owned by the
// caller and read-only here.
type Config struct {
	// Enabled gates automatic switching. Evaluation itself ignores it.
	Enabled bool

	UseCron     bool
	UseLocation bool

	DayStart   string // HH:MM
	NightStart string // HH:MM

	DayCron   string
	NightCron string

	// Offsets in minutes, applied to sun times only.
	SunriseOffset int
	SunsetOffset  int

	Location geo.Coordinates

	DayMode   string
	NightMode string
}

// ActiveSource applies source precedence: cron, then location, then
// manual. Cron being on forces location off.
func (c Config) ActiveSource() Source {
	switch {
	case c.UseCron:
		return SourceCron
	case c.UseLocation:
		return SourceLocation
	default:
		return SourceManual
	}
}

// ModeFor returns the configured mode name for p.
func (c Config) ModeFor(p Period) string {
	if p == Night {
		return c.NightMode
	}
	return c.DayMode
}
