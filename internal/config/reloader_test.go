package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestReloader_Current(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.Port = 9999

	r := NewReloader("", "", cfg)
	got := r.Current()
	if got.Gateway.Port != 9999 {
		t.Errorf("Current().Gateway.Port = %d, want 9999", got.Gateway.Port)
	}
}

func TestReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UMBRA_PATH", dir)
	dotenvPath := filepath.Join(dir, ".env")
	configPath := filepath.Join(dir, "config.jsonc")

	if err := os.WriteFile(dotenvPath, []byte("UMBRA_NIGHT=initial\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	configContent := `{"modes": {"night": "${{ .Env.UMBRA_NIGHT }}"}}`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UMBRA_NIGHT", "initial")

	initial := &Config{}
	r := NewReloader(configPath, dotenvPath, initial)

	var callCount atomic.Int32
	r.OnReload(func(cfg *Config) {
		callCount.Add(1)
	})

	if err := os.WriteFile(dotenvPath, []byte("UMBRA_NIGHT=reloaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if os.Getenv("UMBRA_NIGHT") != "reloaded" {
		t.Errorf("UMBRA_NIGHT = %q, want 'reloaded'", os.Getenv("UMBRA_NIGHT"))
	}
	if callCount.Load() != 1 {
		t.Errorf("listener called %d times, want 1", callCount.Load())
	}

	got := r.Current()
	if got == initial {
		t.Error("Current() still returns initial config after reload")
	}
	if got.Modes.Night != "reloaded" {
		t.Errorf("Modes.Night = %q, want the reloaded env value", got.Modes.Night)
	}
}

func TestReloader_ReloadKeepsConfigOnError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{"gateway": `), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := Default()
	r := NewReloader(configPath, filepath.Join(dir, ".env"), initial)
	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if r.Current() != initial {
		t.Error("config replaced despite reload error")
	}
}

func TestReloader_ReloadMissingFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UMBRA_PATH", dir)

	r := NewReloader(filepath.Join(dir, "config.jsonc"), filepath.Join(dir, ".env"), &Config{})
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload with missing files: %v", err)
	}
	if r.Current().Gateway.Port != 18430 {
		t.Errorf("expected defaults after reload, got port %d", r.Current().Gateway.Port)
	}
}

func TestReloader_Watch(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UMBRA_PATH", dir)

	r := NewReloader(filepath.Join(dir, "config.jsonc"), filepath.Join(dir, ".env"), &Config{})
	reloaded := make(chan struct{}, 1)
	r.OnReload(func(*Config) { reloaded <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		r.Watch(ctx, signals)
		close(done)
	}()

	signals <- syscall.SIGHUP
	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
