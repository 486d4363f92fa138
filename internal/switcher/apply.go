package switcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/schedule"
	"github.com/dohr-michael/umbra/internal/storage"
)

// DefaultHookTimeout bounds a single hook run.
const DefaultHookTimeout = 30 * time.Second

// Transition describes one mode application.
type Transition struct {
	Period     schedule.Period
	Mode       string
	Previous   string
	Reason     events.ApplyReason
	Source     schedule.Source
	At         time.Time
	AutoSwitch bool
}

// Applier makes a mode effective somewhere.
type Applier interface {
	Apply(ctx context.Context, t Transition) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, t Transition) error

func (f ApplierFunc) Apply(ctx context.Context, t Transition) error { return f(ctx, t) }

// Appliers runs every applier in order. All of them run even when one
// fails; the errors are joined.
type Appliers []Applier

func (as Appliers) Apply(ctx context.Context, t Transition) error {
	var errs []error
	for _, a := range as {
		if a == nil {
			continue
		}
		if err := a.Apply(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StateApplier records the applied mode in a StateStore.
type StateApplier struct {
	Store *storage.StateStore
}

func (s StateApplier) Apply(_ context.Context, t Transition) error {
	err := s.Store.Save(storage.State{
		Period:     string(t.Period),
		Mode:       t.Mode,
		Reason:     string(t.Reason),
		Source:     string(t.Source),
		AppliedAt:  t.At,
		AutoSwitch: t.AutoSwitch,
	})
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// HookApplier runs a shell script with the built-in POSIX interpreter.
// The script sees UMBRA_MODE, UMBRA_THEME, UMBRA_PERIOD, UMBRA_REASON and
// UMBRA_PREVIOUS on top of the process environment.
type HookApplier struct {
	script  *syntax.File
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
}

// NewHookApplier parses script once. An empty script yields a nil applier
// and no error.
func NewHookApplier(script string, timeout time.Duration) (*HookApplier, error) {
	if strings.TrimSpace(script) == "" {
		return nil, nil
	}
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "apply.hook")
	if err != nil {
		return nil, fmt.Errorf("parse hook: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	return &HookApplier{
		script:  file,
		timeout: timeout,
		stdout:  io.Discard,
		stderr:  io.Discard,
	}, nil
}

// SetOutput redirects the hook's stdout and stderr. nil discards.
func (h *HookApplier) SetOutput(stdout, stderr io.Writer) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	h.stdout, h.stderr = stdout, stderr
}

func (h *HookApplier) Apply(ctx context.Context, t Transition) error {
	env := append(os.Environ(),
		"UMBRA_MODE="+t.Mode,
		"UMBRA_THEME="+t.Mode,
		"UMBRA_PERIOD="+string(t.Period),
		"UMBRA_REASON="+string(t.Reason),
		"UMBRA_PREVIOUS="+t.Previous,
	)

	var stderr bytes.Buffer
	runner, err := interp.New(
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, h.stdout, io.MultiWriter(h.stderr, &stderr)),
	)
	if err != nil {
		return fmt.Errorf("hook runner: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	if err := runner.Run(ctx, h.script); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("hook: %w: %s", err, msg)
		}
		return fmt.Errorf("hook: %w", err)
	}
	slog.Debug("switcher: hook ran", "mode", t.Mode, "duration", time.Since(start))
	return nil
}
