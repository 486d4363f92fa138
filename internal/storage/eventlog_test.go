package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/umbra/internal/events"
)

func waitForLines(t *testing.T, path string, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := os.ReadFile(path)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(data) > 0 && len(lines) >= n {
			return lines
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d lines in %s, got %q", n, path, data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventLogger_WriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(path, bus)
	defer el.Close()

	bus.Publish(events.Event{
		ID:        "evt-1",
		Type:      events.EventModeApplied,
		Timestamp: time.Now(),
		Source:    events.SourceSwitcher,
		Payload:   map[string]any{"mode": "dark"},
	})

	lines := waitForLines(t, path, 1)

	var got events.Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "evt-1" {
		t.Errorf("got ID %q, want %q", got.ID, "evt-1")
	}
	if got.Type != events.EventModeApplied {
		t.Errorf("got type %q, want %q", got.Type, events.EventModeApplied)
	}
}

func TestEventLogger_SkipsEvaluations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(path, bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceSwitcher, events.ScheduleEvaluatedPayload{Period: "day"}))
	bus.Publish(events.NewTypedEvent(events.SourceSwitcher, events.ScheduleDegradedPayload{Reasons: []string{"x"}}))

	waitForLines(t, path, 1)
	time.Sleep(50 * time.Millisecond)
	lines := waitForLines(t, path, 1)
	if len(lines) != 1 {
		t.Fatalf("expected only the degraded event, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], string(events.EventScheduleDegraded)) {
		t.Errorf("unexpected line %s", lines[0])
	}
}

func TestReadEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	var sb strings.Builder
	for i, typ := range []events.EventType{
		events.EventModeApplied,
		events.EventConfigReloaded,
		events.EventModeApplied,
		events.EventModeApplied,
	} {
		e := events.NewEvent(typ, events.SourceSwitcher, map[string]any{"i": i})
		data, _ := json.Marshal(e)
		sb.Write(data)
		sb.WriteByte('\n')
	}
	sb.WriteString("not json\n\n")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	all, err := ReadEvents(path, 0)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 events, got %d", len(all))
	}

	applied, err := ReadEvents(path, 2, events.EventModeApplied)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 events, got %d", len(applied))
	}
	if applied[0].Payload["i"] != float64(2) || applied[1].Payload["i"] != float64(3) {
		t.Errorf("expected the last two mode.applied events, got %v and %v", applied[0].Payload, applied[1].Payload)
	}

	missing, err := ReadEvents(filepath.Join(t.TempDir(), "nope.jsonl"), 10)
	if err != nil || missing != nil {
		t.Errorf("missing file: got %v, %v", missing, err)
	}
}
