// Package storage persists daemon state and events to disk.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dohr-michael/umbra/internal/events"
)

// EventLogger appends bus events to a single JSONL file.
type EventLogger struct {
	path        string
	mu          sync.Mutex // handlers run concurrently
	unsubscribe func()
}

// NewEventLogger creates an EventLogger that subscribes to all bus events
// except schedule.evaluated (one per tick, too noisy) and writes them to path.
func NewEventLogger(path string, bus *events.Bus) *EventLogger {
	el := &EventLogger{path: path}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	if e.Type == events.EventScheduleEvaluated {
		return
	}
	if err := el.writeEvent(e); err != nil {
		slog.Warn("storage: event log write failed", "error", err)
	}
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(el.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(el.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// ReadEvents returns the last limit events of the given types from a JSONL
// log, oldest first. No types means all; limit <= 0 means no limit. A
// missing file yields no events. Corrupted lines are skipped.
func ReadEvents(path string, limit int, types ...events.EventType) ([]events.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e events.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, e.Type) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return out, nil
}
