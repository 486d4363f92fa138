package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStateStoreSaveLoad(t *testing.T) {
	s := NewStateStore(filepath.Join(t.TempDir(), "state"))

	if _, err := s.Load(); !errors.Is(err, ErrNoState) {
		t.Fatalf("Load on empty store = %v, want ErrNoState", err)
	}

	first := State{Period: "day", Mode: "light", Reason: "schedule", Source: "manual", AppliedAt: time.Now().UTC().Truncate(time.Second), AutoSwitch: true}
	second := State{Period: "night", Mode: "dark", Reason: "force", AppliedAt: first.AppliedAt.Add(time.Hour)}

	for _, st := range []State{first, second} {
		if err := s.Save(st); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != second {
		t.Errorf("Load = %+v, want %+v", got, second)
	}

	history, err := s.Transitions()
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(history) != 2 || history[0] != first || history[1] != second {
		t.Errorf("Transitions = %+v", history)
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), "current.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestStateStoreCorruptedTransitions(t *testing.T) {
	dir := t.TempDir()
	s := NewStateStore(dir)
	if err := s.Save(State{Period: "day", Mode: "light"}); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "transitions.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{broken\n")
	f.Close()

	if err := s.Save(State{Period: "night", Mode: "dark"}); err != nil {
		t.Fatal(err)
	}

	history, err := s.Transitions()
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected corrupted line to be skipped, got %d entries", len(history))
	}
}
