// Package geo resolves sunrise and sunset times for a pair of coordinates.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidCoordinates is returned for coordinates outside the
	// latitude/longitude ranges or that are not finite numbers.
	ErrInvalidCoordinates = errors.New("geo: invalid coordinates")

	// ErrUnavailable is returned when sun times cannot be obtained.
	ErrUnavailable = errors.New("geo: sun times unavailable")
)

// Coordinates is a point on Earth in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Validate checks that both values are finite and within range.
func (c Coordinates) Validate() error {
	if !finite(c.Latitude) || !finite(c.Longitude) {
		return fmt.Errorf("%w: latitude and longitude must be valid numbers", ErrInvalidCoordinates)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90 degrees", ErrInvalidCoordinates)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180 degrees", ErrInvalidCoordinates)
	}
	return nil
}

// IsZero reports whether either value is unset. A zero latitude or
// longitude is treated as "not configured".
func (c Coordinates) IsZero() bool {
	return c.Latitude == 0 || c.Longitude == 0
}

// Usable reports whether c is configured and valid.
func (c Coordinates) Usable() bool {
	return !c.IsZero() && c.Validate() == nil
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SunTimes holds local sunrise and sunset as HH:MM strings.
type SunTimes struct {
	Sunrise string `json:"sunrise"`
	Sunset  string `json:"sunset"`
}

// dateKey is the calendar date of t in t's location.
func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
