package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Reloader provides hot config reload with atomic swap and listener notification.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]
	mu         sync.Mutex // serializes reload
	listeners  []func(*Config)
}

// NewReloader creates a Reloader with the given initial config.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{
		configPath: configPath,
		dotenvPath: dotenvPath,
	}
	r.current.Store(initial)
	return r
}

// Current returns the current config (lock-free atomic read).
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers a callback invoked after successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads the .env file, reloads the config, and notifies listeners.
// On error the current config is kept.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Reload .env (override mode)
	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	// Reload config (re-expands env templates)
	cfg, err := LoadOrDefault(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath)

	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads on every value received from signals until ctx is done.
// Reload failures are logged and the previous config stays active.
func (r *Reloader) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			slog.Info("config: reload requested", "signal", sig.String())
			if err := r.Reload(); err != nil {
				slog.Error("config: reload failed", "error", err)
			}
		}
	}
}
