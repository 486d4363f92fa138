package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dohr-michael/umbra/internal/clock"
	"github.com/dohr-michael/umbra/internal/cron"
	"github.com/dohr-michael/umbra/internal/geo"
)

// SunFunc resolves today's sun times. An error means "unavailable".
type SunFunc func() (geo.SunTimes, error)

// Decision is the outcome of one evaluation together with how it was
// reached.
type Decision struct {
	IsNight bool      `json:"is_night"`
	Period  Period    `json:"period"`
	Mode    string    `json:"mode"`
	Source  Source    `json:"source"`
	At      time.Time `json:"at"`

	// Boundaries compared against At. Empty when cron decided.
	DayStart   string `json:"day_start,omitempty"`
	NightStart string `json:"night_start,omitempty"`

	// Last cron occurrences. Zero when cron was not used or did not fire.
	LastDay   time.Time `json:"last_day,omitzero"`
	LastNight time.Time `json:"last_night,omitzero"`

	// CronScan is the time spent searching for the last cron occurrences.
	// Zero when the expressions were not searched.
	CronScan time.Duration `json:"cron_scan,omitempty"`

	// Fallbacks lists each degradation taken, in order.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// cronLookup abstracts cron evaluation so Evaluator can plug in a cache.
type cronLookup interface {
	Validate(expression string) bool
	LastOccurrence(expression string, ref time.Time, lookback int) (time.Time, bool)
}

type directCron struct{}

func (directCron) Validate(expression string) bool { return cron.Validate(expression) }

func (directCron) LastOccurrence(expression string, ref time.Time, lookback int) (time.Time, bool) {
	return cron.LastOccurrence(expression, ref, lookback)
}

// Decide reports whether now falls in the night period. It never fails:
// malformed cron expressions, unusable coordinates, resolver errors and
// malformed clock times each degrade to the next source, ending at the
// 06:00/18:00 defaults. resolve is called at most once and only when the
// location source is active; it may be nil.
func Decide(cfg Config, now time.Time, resolve SunFunc) bool {
	return Evaluate(cfg, now, resolve).IsNight
}

// Evaluate is Decide returning the full Decision.
func Evaluate(cfg Config, now time.Time, resolve SunFunc) Decision {
	return evaluate(cfg, now, resolve, directCron{}, cron.DefaultLookback)
}

func evaluate(cfg Config, now time.Time, resolve SunFunc, crons cronLookup, lookback int) Decision {
	d := Decision{At: now}
	source := cfg.ActiveSource()

	if source == SourceCron {
		if decided := decideCron(&d, cfg, now, crons, lookback); decided {
			return finish(d, cfg)
		}
		// Cron precedence keeps location off, so boundaries are manual.
		source = SourceManual
	}

	dayStart, nightStart := cfg.DayStart, cfg.NightStart
	d.Source = SourceManual

	if source == SourceLocation {
		if st, ok := sunBoundaries(&d, cfg, resolve); ok {
			dayStart, nightStart = st.Sunrise, st.Sunset
			d.Source = SourceLocation
		}
	}

	day, dayOK := parseBoundary(&d, "day start", dayStart, DefaultDayStart)
	night, nightOK := parseBoundary(&d, "night start", nightStart, DefaultNightStart)
	if !dayOK && !nightOK {
		d.Source = SourceDefault
	}

	d.DayStart = day.String()
	d.NightStart = night.String()
	d.IsNight = IsNight(clock.Of(now), day, night)
	return finish(d, cfg)
}

// decideCron fills d from the cron pair and reports whether it was
// conclusive.
func decideCron(d *Decision, cfg Config, now time.Time, crons cronLookup, lookback int) bool {
	dayOK := crons.Validate(cfg.DayCron)
	nightOK := crons.Validate(cfg.NightCron)
	if !dayOK || !nightOK {
		var bad []string
		if !dayOK {
			bad = append(bad, fmt.Sprintf("day %q", cfg.DayCron))
		}
		if !nightOK {
			bad = append(bad, fmt.Sprintf("night %q", cfg.NightCron))
		}
		fallback(d, fmt.Sprintf("cron: invalid expression %v", bad))
		return false
	}

	start := time.Now()
	lastDay, firedDay := crons.LastOccurrence(cfg.DayCron, now, lookback)
	lastNight, firedNight := crons.LastOccurrence(cfg.NightCron, now, lookback)
	d.CronScan = max(time.Since(start), time.Nanosecond)
	if firedDay {
		d.LastDay = lastDay
	}
	if firedNight {
		d.LastNight = lastNight
	}

	switch {
	case !firedDay && !firedNight:
		fallback(d, "cron: neither expression fired within the lookback window")
		return false
	case firedDay && firedNight && lastDay.Equal(lastNight):
		fallback(d, fmt.Sprintf("cron: day and night both last fired at %s", lastDay.Format(time.RFC3339)))
		return false
	}

	// A missing occurrence counts as never having happened.
	d.IsNight = firedNight && (!firedDay || lastNight.After(lastDay))
	d.Source = SourceCron
	return true
}

// sunBoundaries resolves sun times and applies the configured offsets.
func sunBoundaries(d *Decision, cfg Config, resolve SunFunc) (geo.SunTimes, bool) {
	if !cfg.Location.Usable() {
		fallback(d, fmt.Sprintf("location: coordinates %s not usable", cfg.Location))
		return geo.SunTimes{}, false
	}
	if resolve == nil {
		fallback(d, "location: no resolver")
		return geo.SunTimes{}, false
	}

	st, err := resolve()
	if err != nil {
		fallback(d, fmt.Sprintf("location: %v", err))
		return geo.SunTimes{}, false
	}

	sunrise, err := clock.Parse(st.Sunrise)
	if err != nil {
		fallback(d, fmt.Sprintf("location: sunrise: %v", err))
		return geo.SunTimes{}, false
	}
	sunset, err := clock.Parse(st.Sunset)
	if err != nil {
		fallback(d, fmt.Sprintf("location: sunset: %v", err))
		return geo.SunTimes{}, false
	}

	return geo.SunTimes{
		Sunrise: sunrise.Add(cfg.SunriseOffset).String(),
		Sunset:  sunset.Add(cfg.SunsetOffset).String(),
	}, true
}

// parseBoundary parses s, substituting def when it is malformed. ok is
// false when the default was used.
func parseBoundary(d *Decision, name, s, def string) (clock.Time, bool) {
	t, err := clock.Parse(s)
	if err != nil {
		fallback(d, fmt.Sprintf("%s %q invalid, using %s", name, s, def))
		return clock.MustParse(def), false
	}
	return t, true
}

func fallback(d *Decision, reason string) {
	d.Fallbacks = append(d.Fallbacks, reason)
	slog.Warn("schedule: falling back", "reason", reason)
}

func finish(d Decision, cfg Config) Decision {
	d.Period = Day
	if d.IsNight {
		d.Period = Night
	}
	d.Mode = cfg.ModeFor(d.Period)
	return d
}

// IsNight compares a time of day against the two boundaries.
//
// When nightStart >= dayStart the day is the contiguous interval and the
// night wraps around midnight. When nightStart < dayStart the night is the
// contiguous interval [nightStart, dayStart). Equal boundaries mean it is
// always night.
func IsNight(current, dayStart, nightStart clock.Time) bool {
	if nightStart >= dayStart {
		return current >= nightStart || current < dayStart
	}
	return current >= nightStart && current < dayStart
}
