// Package switcher periodically evaluates the schedule and applies the
// day or night mode when it changes.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/schedule"
	"github.com/dohr-michael/umbra/internal/telemetry"
)

// Defaults used when the config leaves them unset.
const (
	DefaultInterval = time.Minute
	DefaultPreview  = 5 * time.Second
)

// Config holds dependencies for the switcher.
type Config struct {
	Evaluator *schedule.Evaluator
	Settings  func() *config.Config // current config, read on every check
	Applier   Applier
	Bus       *events.Bus
	Metrics   *telemetry.Metrics // nil-safe
	Now       func() time.Time   // defaults to time.Now
}

// Status is a snapshot of the switcher.
type Status struct {
	Enabled    bool               `json:"enabled"`
	Period     schedule.Period    `json:"period,omitempty"`
	Mode       string             `json:"mode,omitempty"`
	Reason     events.ApplyReason `json:"reason,omitempty"`
	AppliedAt  time.Time          `json:"applied_at,omitzero"`
	Previewing bool               `json:"previewing"`
	Decision   *schedule.Decision `json:"decision,omitempty"`
}

// applied is the last successfully applied mode.
type applied struct {
	period schedule.Period
	mode   string
	reason events.ApplyReason
	at     time.Time
}

// Switcher owns the check loop and executes commands.
type Switcher struct {
	eval     *schedule.Evaluator
	settings func() *config.Config
	applier  Applier
	bus      *events.Bus
	metrics  *telemetry.Metrics
	now      func() time.Time

	enabled atomic.Bool

	// applyMu serializes applies and is always taken before mu. Appliers
	// run with only applyMu held so Status never waits on a hook.
	applyMu sync.Mutex

	mu       sync.Mutex // guards the fields below
	current  applied
	last     *schedule.Decision
	preview  *time.Timer
	previewN uint64
	saved    applied // state to restore after a preview

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Switcher. Automatic switching starts enabled or not per
// schedule.enabled.
func New(cfg Config) *Switcher {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	applier := cfg.Applier
	if applier == nil {
		applier = Appliers(nil)
	}
	s := &Switcher{
		eval:     cfg.Evaluator,
		settings: cfg.Settings,
		applier:  applier,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		now:      now,
	}
	s.enabled.Store(s.settings().Schedule.IsEnabled())
	return s
}

// Start runs an immediate check and then one per daemon.interval until
// Stop or ctx is done.
func (s *Switcher) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	interval := s.settings().Daemon.Interval.Duration()
	if interval <= 0 {
		interval = DefaultInterval
	}

	if _, err := s.Check(ctx); err != nil {
		slog.Error("switcher: initial check", "error", err)
	}

	go s.loop(ctx, interval)
	slog.Info("switcher started", "interval", interval, "enabled", s.enabled.Load())
}

// Stop halts the loop and cancels a pending preview revert.
func (s *Switcher) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	if s.preview != nil {
		s.preview.Stop()
		s.preview = nil
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("switcher stopped")
}

func (s *Switcher) loop(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Check(ctx); err != nil {
				slog.Error("switcher: check", "error", err)
			}
		}
	}
}

// Enabled reports whether automatic switching is on.
func (s *Switcher) Enabled() bool { return s.enabled.Load() }

// Status returns the current snapshot.
func (s *Switcher) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Switcher) statusLocked() Status {
	st := Status{
		Enabled:    s.enabled.Load(),
		Period:     s.current.period,
		Mode:       s.current.mode,
		Reason:     s.current.reason,
		AppliedAt:  s.current.at,
		Previewing: s.preview != nil,
	}
	if s.last != nil {
		d := *s.last
		st.Decision = &d
	}
	return st
}

// Check evaluates the schedule and, when switching is enabled and no
// preview is running, applies the decided mode if it differs from the
// current one.
func (s *Switcher) Check(ctx context.Context) (schedule.Decision, error) {
	d := s.evaluate(ctx, s.settings().ScheduleSettings())

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	s.last = &d
	skip := !s.enabled.Load() || s.preview != nil ||
		(s.current.period == d.Period && s.current.mode == d.Mode)
	s.mu.Unlock()

	if skip {
		return d, nil
	}
	if d.Mode == "" {
		slog.Debug("switcher: no mode configured", "period", d.Period)
		return d, nil
	}
	return d, s.apply(ctx, d.Period, d.Mode, events.ReasonSchedule, d.Source)
}

func (s *Switcher) evaluate(ctx context.Context, cfg schedule.Config) schedule.Decision {
	start := time.Now()
	d := s.eval.Evaluate(ctx, cfg, s.now())
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.ObserveEvaluation(string(d.Period), string(d.Source), len(d.Fallbacks) > 0, elapsed)
		if d.CronScan > 0 {
			s.metrics.ObserveCronScan(d.CronScan)
		}
	}
	s.publish(ctx, events.ScheduleEvaluatedPayload{
		Period:     string(d.Period),
		Mode:       d.Mode,
		Source:     string(d.Source),
		DayStart:   d.DayStart,
		NightStart: d.NightStart,
		Duration:   elapsed,
	})
	if len(d.Fallbacks) > 0 {
		s.publish(ctx, events.ScheduleDegradedPayload{
			Reasons: d.Fallbacks,
			Source:  string(d.Source),
		})
	}
	return d
}

// apply runs the appliers and records the outcome. Caller must hold
// s.applyMu and not s.mu.
func (s *Switcher) apply(ctx context.Context, period schedule.Period, mode string, reason events.ApplyReason, source schedule.Source) error {
	s.mu.Lock()
	previous := s.current.mode
	s.mu.Unlock()

	t := Transition{
		Period:     period,
		Mode:       mode,
		Previous:   previous,
		Reason:     reason,
		Source:     source,
		At:         s.now(),
		AutoSwitch: s.enabled.Load(),
	}
	err := s.applier.Apply(ctx, t)

	if s.metrics != nil {
		s.metrics.ObserveApply(string(period), string(reason), err)
	}
	payload := events.ModeAppliedPayload{
		Period:   string(period),
		Mode:     mode,
		Previous: t.Previous,
		Reason:   reason,
		Source:   string(source),
	}
	if err != nil {
		payload.Error = err.Error()
		s.publish(ctx, payload)
		slog.Error("switcher: apply failed", "period", period, "mode", mode, "reason", reason, "error", err)
		return fmt.Errorf("apply %s mode %q: %w", period, mode, err)
	}

	s.mu.Lock()
	s.current = applied{period: period, mode: mode, reason: reason, at: t.At}
	s.mu.Unlock()
	s.publish(ctx, payload)
	slog.Info("switcher: mode applied", "period", period, "mode", mode, "reason", reason, "source", source)
	return nil
}

func (s *Switcher) publish(ctx context.Context, p events.EventPayload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.NewTypedEventWithRequest(events.SourceSwitcher, p, events.RequestIDFromContext(ctx)))
}

// Execute runs cmd and returns the resulting status.
func (s *Switcher) Execute(ctx context.Context, cmd Command) (Status, error) {
	st, err := s.execute(ctx, cmd)

	if s.metrics != nil {
		s.metrics.ObserveCommand(cmd.Name(), err)
	}
	payload := events.CommandExecutedPayload{Command: cmd.Name()}
	if err != nil {
		payload.Error = err.Error()
	}
	s.publish(ctx, payload)
	return st, err
}

func (s *Switcher) execute(ctx context.Context, cmd Command) (Status, error) {
	switch c := cmd.(type) {
	case CheckNow:
		_, err := s.Check(ctx)
		return s.Status(), err

	case ForceDay:
		return s.force(ctx, schedule.Day)

	case ForceNight:
		return s.force(ctx, schedule.Night)

	case Preview:
		return s.startPreview(ctx, c)

	case Enable:
		s.setEnabled(ctx, true)
		_, err := s.Check(ctx)
		return s.Status(), err

	case Disable:
		s.setEnabled(ctx, false)
		return s.Status(), nil

	case TestLocation:
		cfg := s.settings().ScheduleSettings()
		cfg.UseCron = false
		cfg.UseLocation = true
		cfg.Location = c.Coordinates()
		d := s.eval.Evaluate(ctx, cfg, s.now())
		st := s.Status()
		st.Decision = &d
		return st, nil

	default:
		return Status{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func (s *Switcher) force(ctx context.Context, p schedule.Period) (Status, error) {
	mode := s.settings().ScheduleSettings().ModeFor(p)
	if mode == "" {
		return s.Status(), fmt.Errorf("please configure a %s mode first", p)
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	s.cancelPreviewLocked()
	s.mu.Unlock()

	err := s.apply(ctx, p, mode, events.ReasonForce, "")
	return s.Status(), err
}

func (s *Switcher) setEnabled(ctx context.Context, on bool) {
	if s.enabled.Swap(on) == on {
		return
	}
	s.publish(ctx, events.ScheduleToggledPayload{Enabled: on})
	slog.Info("switcher: automatic switching toggled", "enabled", on)
}

func (s *Switcher) startPreview(ctx context.Context, p Preview) (Status, error) {
	mode := s.settings().ScheduleSettings().ModeFor(p.Period)
	if mode == "" {
		return s.Status(), fmt.Errorf("please configure a %s mode first", p.Period)
	}
	dur := p.Duration.Duration()
	if dur <= 0 {
		dur = s.settings().Daemon.Preview.Duration()
	}
	if dur <= 0 {
		dur = DefaultPreview
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.preview == nil {
		s.saved = s.current
	}
	s.cancelPreviewLocked()
	s.mu.Unlock()

	if err := s.apply(ctx, p.Period, mode, events.ReasonPreview, ""); err != nil {
		return s.Status(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewN++
	n := s.previewN
	revertCtx := context.WithoutCancel(ctx)
	s.preview = time.AfterFunc(dur, func() { s.revert(revertCtx, n) })
	return s.statusLocked(), nil
}

// cancelPreviewLocked stops a pending revert. Caller must hold s.mu.
func (s *Switcher) cancelPreviewLocked() {
	if s.preview != nil {
		s.preview.Stop()
		s.preview = nil
	}
}

// revert restores the mode that was active before preview n started, or
// the scheduled mode when nothing was applied yet.
func (s *Switcher) revert(ctx context.Context, n uint64) {
	s.applyMu.Lock()
	s.mu.Lock()
	if s.previewN != n || s.preview == nil {
		s.mu.Unlock()
		s.applyMu.Unlock()
		return
	}
	s.preview = nil
	saved := s.saved
	s.saved = applied{}
	s.mu.Unlock()

	if saved.mode != "" {
		err := s.apply(ctx, saved.period, saved.mode, events.ReasonRevert, "")
		s.applyMu.Unlock()
		if err != nil {
			slog.Error("switcher: preview revert", "error", err)
		}
		return
	}
	s.applyMu.Unlock()

	if _, err := s.Check(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("switcher: preview revert", "error", err)
	}
}

// Reloaded reacts to a config change: the sun-time cache is dropped, the
// enabled flag follows schedule.enabled and a check runs.
func (s *Switcher) Reloaded(ctx context.Context, cfg *config.Config) {
	s.eval.Invalidate()
	s.setEnabled(ctx, cfg.Schedule.IsEnabled())
	if _, err := s.Check(ctx); err != nil {
		slog.Error("switcher: check after reload", "error", err)
	}
}
