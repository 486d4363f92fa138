// Package heartbeat provides liveness detection for the umbra daemon.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status represents the liveness state of the daemon.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// DefaultInterval is how often the heartbeat file is rewritten.
const DefaultInterval = 30 * time.Second

// Heartbeat is the data written to the heartbeat file.
type Heartbeat struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Gateway   string    `json:"gateway,omitempty"` // host:port of the running gateway
	Period    string    `json:"period,omitempty"`
	Mode      string    `json:"mode,omitempty"`
}

// StatusFunc reports the daemon's current period and mode for the file.
type StatusFunc func() (period, mode string)

// Writer periodically writes a heartbeat file to disk.
type Writer struct {
	path     string
	gateway  string
	interval time.Duration
	status   StatusFunc
	started  time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a heartbeat writer that writes to path every interval
// (DefaultInterval when <= 0). gateway is recorded so clients can find the
// daemon; status may be nil.
func NewWriter(path, gateway string, interval time.Duration, status StatusFunc) *Writer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Writer{
		path:     path,
		gateway:  gateway,
		interval: interval,
		status:   status,
	}
}

// Start begins writing heartbeat files in a background goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return // already running
	}

	w.started = time.Now()
	w.done = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	// Write initial heartbeat immediately
	w.write()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.write()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops writing and removes the heartbeat file.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}

	w.cancel()
	<-w.done
	w.cancel = nil

	os.Remove(w.path)
}

// Touch rewrites the file now, e.g. right after a mode switch.
func (w *Writer) Touch() {
	w.mu.Lock()
	running := w.cancel != nil
	w.mu.Unlock()
	if running {
		w.write()
	}
}

func (w *Writer) write() {
	hb := Heartbeat{
		PID:       os.Getpid(),
		StartedAt: w.started,
		Timestamp: time.Now(),
		Uptime:    time.Since(w.started).Truncate(time.Second).String(),
		Gateway:   w.gateway,
	}
	if w.status != nil {
		hb.Period, hb.Mode = w.status()
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		slog.Warn("heartbeat: create dir", "error", err)
		return
	}

	// Atomic write: tmp + rename
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("heartbeat: write", "error", err)
		return
	}
	os.Rename(tmp, w.path)
}

// Check reads a heartbeat file and returns the liveness status.
// maxAge determines how old a heartbeat can be before it's considered stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}

	age := time.Since(hb.Timestamp)
	if age > maxAge {
		return StatusStale, &hb, nil
	}

	return StatusAlive, &hb, nil
}
