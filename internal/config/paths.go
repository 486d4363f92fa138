package config

import (
	"os"
	"path/filepath"
)

// UmbraPath returns the root directory for umbra data.
// It uses $UMBRA_PATH if set, otherwise defaults to ~/.umbra.
func UmbraPath() string {
	if v := os.Getenv("UMBRA_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".umbra")
	}
	return filepath.Join(home, ".umbra")
}

// ConfigPath returns the path to the umbra config file.
func ConfigPath() string {
	return filepath.Join(UmbraPath(), "config.jsonc")
}

// DotenvPath returns the path to the umbra .env file.
func DotenvPath() string {
	return filepath.Join(UmbraPath(), ".env")
}

// StatePath returns the directory holding the applied mode state.
func StatePath() string {
	return filepath.Join(UmbraPath(), "state")
}

// EventLogPath returns the JSONL file the daemon appends events to.
func EventLogPath() string {
	return filepath.Join(UmbraPath(), "logs", "events.jsonl")
}

// SunDBPath returns the SQLite database caching sun times.
func SunDBPath() string {
	return filepath.Join(UmbraPath(), "sun.db")
}

// HeartbeatPath returns the daemon liveness file.
func HeartbeatPath() string {
	return filepath.Join(UmbraPath(), "heartbeat.json")
}
