package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoState is returned by StateStore.Load before anything was saved.
var ErrNoState = errors.New("storage: no state recorded")

// State is the last mode the daemon applied.
type State struct {
	Period     string    `json:"period"`
	Mode       string    `json:"mode"`
	Reason     string    `json:"reason"`
	Source     string    `json:"source,omitempty"`
	AppliedAt  time.Time `json:"applied_at"`
	AutoSwitch bool      `json:"auto_switch"`
}

// StateStore keeps current.json (atomically replaced) and an append-only
// transitions.jsonl in one directory.
type StateStore struct {
	mu  sync.RWMutex
	dir string
}

// NewStateStore creates a store rooted at dir. The directory is created on
// first write.
func NewStateStore(dir string) *StateStore {
	return &StateStore{dir: dir}
}

// Dir returns the store directory.
func (s *StateStore) Dir() string { return s.dir }

func (s *StateStore) currentPath() string     { return filepath.Join(s.dir, "current.json") }
func (s *StateStore) transitionsPath() string { return filepath.Join(s.dir, "transitions.jsonl") }

// Save replaces the current state and appends it to the transitions log.
func (s *StateStore) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := s.currentPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}

	line, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	f, err := os.OpenFile(s.transitionsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transitions: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write transitions: %w", err)
	}
	return nil
}

// Load returns the current state or ErrNoState.
func (s *StateStore) Load() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.currentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNoState
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}

// Transitions returns every recorded state, oldest first.
func (s *StateStore) Transitions() ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.transitionsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transitions: %w", err)
	}
	defer f.Close()

	var out []State
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var st State
		if err := json.Unmarshal(line, &st); err != nil {
			continue // skip corrupted lines
		}
		out = append(out, st)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transitions: %w", err)
	}
	return out, nil
}
