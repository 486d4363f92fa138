package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dohr-michael/umbra/internal/cron"
	"github.com/dohr-michael/umbra/internal/geo"
)

// GeoResolver returns sun times for coordinates on the calendar date of day.
type GeoResolver interface {
	Resolve(ctx context.Context, c geo.Coordinates, day time.Time) (geo.SunTimes, error)
}

// geoEntry is an immutable cached resolution.
type geoEntry struct {
	date   string
	zone   string
	coords geo.Coordinates
	times  geo.SunTimes
}

func (e *geoEntry) matches(c geo.Coordinates, day time.Time) bool {
	return e != nil &&
		e.coords == c &&
		e.date == day.Format(time.DateOnly) &&
		e.zone == day.Location().String()
}

// Evaluator is the stateful counterpart of Decide. It keeps the last
// resolved sun times per (date, coordinates) and memoizes cron lookups.
// Safe for concurrent use.
type Evaluator struct {
	resolver GeoResolver
	crons    *cron.Cache
	lookback int

	sun atomic.Pointer[geoEntry]
	mu  sync.Mutex // serializes resolver calls
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLookback sets the cron search window in minutes.
func WithLookback(minutes int) Option {
	return func(e *Evaluator) {
		if minutes > 0 {
			e.lookback = minutes
		}
	}
}

// WithCronCache shares a cron cache between evaluators.
func WithCronCache(c *cron.Cache) Option {
	return func(e *Evaluator) {
		if c != nil {
			e.crons = c
		}
	}
}

// NewEvaluator creates an Evaluator. resolver may be nil, in which case
// the location source always falls back to manual times.
func NewEvaluator(resolver GeoResolver, opts ...Option) *Evaluator {
	e := &Evaluator{
		resolver: resolver,
		crons:    cron.NewCache(cron.DefaultCacheSize),
		lookback: cron.DefaultLookback,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides day or night for now. It never fails.
func (e *Evaluator) Evaluate(ctx context.Context, cfg Config, now time.Time) Decision {
	var resolve SunFunc
	if e.resolver != nil {
		resolve = func() (geo.SunTimes, error) {
			return e.sunTimes(ctx, cfg.Location, now)
		}
	}
	return evaluate(cfg, now, resolve, e.crons, e.lookback)
}

// Invalidate drops the cached sun times.
func (e *Evaluator) Invalidate() {
	e.sun.Store(nil)
}

// CachedSunTimes returns the cached sun times, if any.
func (e *Evaluator) CachedSunTimes() (geo.SunTimes, bool) {
	entry := e.sun.Load()
	if entry == nil {
		return geo.SunTimes{}, false
	}
	return entry.times, true
}

func (e *Evaluator) sunTimes(ctx context.Context, c geo.Coordinates, now time.Time) (geo.SunTimes, error) {
	if entry := e.sun.Load(); entry.matches(c, now) {
		return entry.times, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if entry := e.sun.Load(); entry.matches(c, now) {
		return entry.times, nil
	}

	st, err := e.resolver.Resolve(ctx, c, now)
	if err != nil {
		return geo.SunTimes{}, err
	}
	e.sun.Store(&geoEntry{
		date:   now.Format(time.DateOnly),
		zone:   now.Location().String(),
		coords: c,
		times:  st,
	})
	return st, nil
}
