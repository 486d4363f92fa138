package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/umbra/internal/schedule"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC (or YAML, by extension) config file, expands
// ${{ .Env.VAR }} templates, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before parsing, since templates are in strings)
	expanded := []byte(expandEnvTemplates(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	default:
		std, err := hujson.Standardize(expanded)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Default returns a Config with only defaults applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Malformed HH:MM values are left alone; the evaluator reports and
// replaces them.
func applyDefaults(cfg *Config) {
	if cfg.Schedule.DayStart == "" {
		cfg.Schedule.DayStart = schedule.DefaultDayStart
	}
	if cfg.Schedule.NightStart == "" {
		cfg.Schedule.NightStart = schedule.DefaultNightStart
	}
	if cfg.Schedule.DayCron == "" {
		cfg.Schedule.DayCron = schedule.DefaultDayCron
	}
	if cfg.Schedule.NightCron == "" {
		cfg.Schedule.NightCron = schedule.DefaultNightCron
	}
	// Cron takes precedence over location.
	if cfg.Schedule.UseCron {
		cfg.Schedule.UseLocation = false
	}

	if cfg.Location.Timeout == 0 {
		cfg.Location.Timeout = Duration(10 * time.Second)
	}
	if cfg.Location.CacheDB == "" {
		cfg.Location.CacheDB = SunDBPath()
	}

	if cfg.Modes.Day == "" {
		cfg.Modes.Day = "light"
	}
	if cfg.Modes.Night == "" {
		cfg.Modes.Night = "dark"
	}

	if cfg.Apply.StateDir == "" {
		cfg.Apply.StateDir = StatePath()
	}
	if cfg.Apply.HookTimeout == 0 {
		cfg.Apply.HookTimeout = Duration(30 * time.Second)
	}

	if cfg.Daemon.Interval == 0 {
		cfg.Daemon.Interval = Duration(time.Minute)
	}
	if cfg.Daemon.Preview == 0 {
		cfg.Daemon.Preview = Duration(5 * time.Second)
	}
	if cfg.Daemon.EventLog == "" {
		cfg.Daemon.EventLog = EventLogPath()
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
}
