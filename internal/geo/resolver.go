package geo

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Fetcher returns sun times for a date. SunClient implements it.
type Fetcher interface {
	Fetch(ctx context.Context, c Coordinates, day time.Time) (SunTimes, error)
}

// Resolver looks up sun times in the store first and falls back to the
// fetcher, writing successful fetches back. The store is optional.
type Resolver struct {
	fetcher Fetcher
	store   *SunStore
}

// NewResolver creates a Resolver. store may be nil.
func NewResolver(fetcher Fetcher, store *SunStore) *Resolver {
	return &Resolver{fetcher: fetcher, store: store}
}

// Resolve returns sun times for c on the calendar date of day.
func (r *Resolver) Resolve(ctx context.Context, c Coordinates, day time.Time) (SunTimes, error) {
	if err := c.Validate(); err != nil {
		return SunTimes{}, err
	}
	if c.IsZero() {
		return SunTimes{}, fmt.Errorf("%w: coordinates not configured", ErrInvalidCoordinates)
	}

	if r.store != nil {
		st, ok, err := r.store.Get(ctx, c, day)
		if err != nil {
			slog.Warn("geo: store lookup failed", "error", err)
		} else if ok {
			return st, nil
		}
	}

	st, err := r.fetcher.Fetch(ctx, c, day)
	if err != nil {
		return SunTimes{}, err
	}
	slog.Debug("geo: fetched sun times", "coords", c.String(), "date", dateKey(day), "sunrise", st.Sunrise, "sunset", st.Sunset)

	if r.store != nil {
		if err := r.store.Put(ctx, c, day, st); err != nil {
			slog.Warn("geo: store write failed", "error", err)
		}
	}
	return st, nil
}
