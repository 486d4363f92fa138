package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/umbra/internal/geo"
	"github.com/dohr-michael/umbra/internal/schedule"
)

// Config is the root configuration for umbra.
type Config struct {
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
	Location LocationConfig `json:"location" yaml:"location"`
	Modes    ModesConfig    `json:"modes" yaml:"modes"`
	Apply    ApplyConfig    `json:"apply" yaml:"apply"`
	Daemon   DaemonConfig   `json:"daemon" yaml:"daemon"`
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	Events   EventsConfig   `json:"events" yaml:"events"`
}

// ScheduleConfig selects the time source and its manual/cron parameters.
type ScheduleConfig struct {
	Enabled     *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"` // default true
	UseCron     bool   `json:"use_cron" yaml:"use_cron"`
	UseLocation bool   `json:"use_location" yaml:"use_location"`
	DayStart    string `json:"day_start" yaml:"day_start"`     // HH:MM
	NightStart  string `json:"night_start" yaml:"night_start"` // HH:MM
	DayCron     string `json:"day_cron" yaml:"day_cron"`
	NightCron   string `json:"night_cron" yaml:"night_cron"`
}

// IsEnabled reports whether automatic switching is on.
func (s ScheduleConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LocationConfig holds coordinates and the sun times API settings.
type LocationConfig struct {
	Latitude      float64  `json:"latitude" yaml:"latitude"`
	Longitude     float64  `json:"longitude" yaml:"longitude"`
	SunriseOffset int      `json:"sunrise_offset" yaml:"sunrise_offset"` // minutes
	SunsetOffset  int      `json:"sunset_offset" yaml:"sunset_offset"`   // minutes
	APIURL        string   `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	LocateURL     string   `json:"locate_url,omitempty" yaml:"locate_url,omitempty"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CacheDB       string   `json:"cache_db,omitempty" yaml:"cache_db,omitempty"` // default: $UMBRA_PATH/sun.db
}

// Coordinates returns the configured point.
func (l LocationConfig) Coordinates() geo.Coordinates {
	return geo.Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
}

// ModesConfig names what each period switches to (e.g. a theme name).
type ModesConfig struct {
	Day   string `json:"day" yaml:"day"`
	Night string `json:"night" yaml:"night"`
}

// ApplyConfig configures how a decided mode is applied.
type ApplyConfig struct {
	StateDir    string   `json:"state_dir,omitempty" yaml:"state_dir,omitempty"` // default: $UMBRA_PATH/state
	Hook        string   `json:"hook,omitempty" yaml:"hook,omitempty"`           // shell script run on every switch
	HookTimeout Duration `json:"hook_timeout,omitempty" yaml:"hook_timeout,omitempty"`
}

// DaemonConfig holds the periodic check settings.
type DaemonConfig struct {
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Preview  Duration `json:"preview,omitempty" yaml:"preview,omitempty"`
	EventLog string   `json:"event_log,omitempty" yaml:"event_log,omitempty"` // default: $UMBRA_PATH/logs/events.jsonl
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// ScheduleSettings flattens the config into what the evaluator reads.
func (c *Config) ScheduleSettings() schedule.Config {
	return schedule.Config{
		Enabled:       c.Schedule.IsEnabled(),
		UseCron:       c.Schedule.UseCron,
		UseLocation:   c.Schedule.UseLocation,
		DayStart:      c.Schedule.DayStart,
		NightStart:    c.Schedule.NightStart,
		DayCron:       c.Schedule.DayCron,
		NightCron:     c.Schedule.NightCron,
		SunriseOffset: c.Location.SunriseOffset,
		SunsetOffset:  c.Location.SunsetOffset,
		Location:      c.Location.Coordinates(),
		DayMode:       c.Modes.Day,
		NightMode:     c.Modes.Night,
	}
}

// Duration wraps time.Duration for JSON and YAML unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.set(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) set(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
