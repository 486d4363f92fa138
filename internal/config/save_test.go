package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dohr-michael/umbra/internal/geo"
)

func TestSaveLocation_JSONCKeepsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	orig := `{
	// my modes
	"modes": {"day": "solarized-light", "night": "solarized-dark"},
	"location": {"latitude": 1.5, "longitude": 2.5, "sunset_offset": -30},
}
`
	if err := os.WriteFile(path, []byte(orig), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := SaveLocation(path, geo.Coordinates{Latitude: 48.8566, Longitude: 2.3522}); err != nil {
		t.Fatalf("SaveLocation: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "// my modes") {
		t.Errorf("comment lost:\n%s", data)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Location.Latitude != 48.8566 || cfg.Location.Longitude != 2.3522 {
		t.Errorf("location = %+v", cfg.Location)
	}
	if cfg.Location.SunsetOffset != -30 || cfg.Modes.Night != "solarized-dark" {
		t.Errorf("other settings changed: %+v", cfg)
	}
}

func TestSaveLocation_CreatesSection(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"missing jsonc", "config.jsonc", ""},
		{"jsonc without location", "config.jsonc", `{"modes": {"day": "a"}}`},
		{"missing yaml", "config.yaml", ""},
		{"yaml without location", "config.yaml", "modes:\n  day: a\n"},
		{"yaml with location", "config.yml", "# keep me\nlocation:\n  latitude: 1\n  sunrise_offset: 15\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if tt.body != "" {
				if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			if err := SaveLocation(path, geo.Coordinates{Latitude: -33.86, Longitude: 151.21}); err != nil {
				t.Fatalf("SaveLocation: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Location.Latitude != -33.86 || cfg.Location.Longitude != 151.21 {
				t.Errorf("location = %+v", cfg.Location)
			}
			if strings.Contains(tt.body, "sunrise_offset") && cfg.Location.SunriseOffset != 15 {
				t.Errorf("sunrise_offset lost: %+v", cfg.Location)
			}
		})
	}
}

func TestSaveLocation_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	err := SaveLocation(path, geo.Coordinates{Latitude: 95, Longitude: 0})
	if !errors.Is(err, geo.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file must not be created for invalid coordinates")
	}
}
