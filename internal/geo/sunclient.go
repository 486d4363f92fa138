package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultSunAPI is the sunrise-sunset.org endpoint.
const DefaultSunAPI = "https://api.sunrise-sunset.org/json"

type sunResponse struct {
	Results struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"results"`
	Status string `json:"status"`
}

// SunClient queries a sunrise-sunset.org compatible API.
type SunClient struct {
	baseURL string
	client  *http.Client
}

// NewSunClient creates a client. An empty baseURL selects DefaultSunAPI and
// a non-positive timeout selects 10s.
func NewSunClient(baseURL string, timeout time.Duration) *SunClient {
	if baseURL == "" {
		baseURL = DefaultSunAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SunClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch returns sunrise and sunset for c on the calendar date of day,
// formatted as HH:MM in day's location.
func (s *SunClient) Fetch(ctx context.Context, c Coordinates, day time.Time) (SunTimes, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return SunTimes{}, fmt.Errorf("geo: parse api url: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(c.Longitude, 'f', -1, 64))
	q.Set("formatted", "0")
	q.Set("date", dateKey(day))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return SunTimes{}, fmt.Errorf("geo: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SunTimes{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return SunTimes{}, fmt.Errorf("%w: http status %d", ErrUnavailable, resp.StatusCode)
	}

	var body sunResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return SunTimes{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	if body.Status != "OK" {
		return SunTimes{}, fmt.Errorf("%w: api status %q", ErrUnavailable, body.Status)
	}

	sunrise, err := localHHMM(body.Results.Sunrise, day.Location())
	if err != nil {
		return SunTimes{}, fmt.Errorf("%w: sunrise: %w", ErrUnavailable, err)
	}
	sunset, err := localHHMM(body.Results.Sunset, day.Location())
	if err != nil {
		return SunTimes{}, fmt.Errorf("%w: sunset: %w", ErrUnavailable, err)
	}
	return SunTimes{Sunrise: sunrise, Sunset: sunset}, nil
}

// localHHMM converts an RFC 3339 timestamp into HH:MM in loc.
func localHHMM(ts string, loc *time.Location) (string, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format("15:04"), nil
}
