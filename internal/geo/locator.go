package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultLocateAPI is the ip-api.com endpoint used to guess coordinates.
const DefaultLocateAPI = "http://ip-api.com/json"

// Place is the result of an IP based location lookup.
type Place struct {
	Coordinates
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Timezone string `json:"timezone"`
	IP       string `json:"ip"`
}

type ipAPIResponse struct {
	Query      string  `json:"query"`
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Timezone   string  `json:"timezone"`
}

// Locator detects approximate coordinates from the caller's public IP.
type Locator struct {
	url    string
	client *http.Client
}

// NewLocator creates a Locator. An empty url selects DefaultLocateAPI.
func NewLocator(url string, timeout time.Duration) *Locator {
	if url == "" {
		url = DefaultLocateAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Locator{url: url, client: &http.Client{Timeout: timeout}}
}

// Locate performs the lookup.
func (l *Locator) Locate(ctx context.Context) (Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return Place{}, fmt.Errorf("geo: create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("geo: locate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Place{}, fmt.Errorf("geo: locate: http status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Place{}, fmt.Errorf("geo: locate: decode response: %w", err)
	}
	if body.Status == "fail" {
		msg := body.Message
		if msg == "" {
			msg = "failed to detect location"
		}
		return Place{}, fmt.Errorf("geo: locate: %s", msg)
	}

	p := Place{
		Coordinates: Coordinates{Latitude: body.Lat, Longitude: body.Lon},
		City:        body.City,
		Region:      body.RegionName,
		Country:     body.Country,
		Timezone:    body.Timezone,
		IP:          body.Query,
	}
	if err := p.Validate(); err != nil {
		return Place{}, err
	}
	return p, nil
}
