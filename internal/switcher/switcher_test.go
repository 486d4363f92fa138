package switcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/geo"
	"github.com/dohr-michael/umbra/internal/schedule"
	"github.com/dohr-michael/umbra/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recorder struct {
	mu   sync.Mutex
	seen []Transition
	err  error
}

func (r *recorder) Apply(_ context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, t)
	return r.err
}

func (r *recorder) transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.seen...)
}

type fixedResolver struct {
	times geo.SunTimes
	calls int
}

func (f *fixedResolver) Resolve(context.Context, geo.Coordinates, time.Time) (geo.SunTimes, error) {
	f.calls++
	return f.times, nil
}

type harness struct {
	sw      *Switcher
	cfg     *config.Config
	rec     *recorder
	bus     *events.Bus
	metrics *telemetry.Metrics
	now     time.Time
	mu      sync.Mutex
}

func (h *harness) setNow(t time.Time) {
	h.mu.Lock()
	h.now = t
	h.mu.Unlock()
}

func newHarness(t *testing.T, resolver schedule.GeoResolver) *harness {
	t.Helper()
	h := &harness{
		cfg:     config.Default(),
		rec:     &recorder{},
		bus:     events.NewBus(64),
		metrics: telemetry.New(),
		now:     time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC),
	}
	t.Cleanup(h.bus.Close)
	h.sw = New(Config{
		Evaluator: schedule.NewEvaluator(resolver),
		Settings:  func() *config.Config { return h.cfg },
		Applier:   h.rec,
		Bus:       h.bus,
		Metrics:   h.metrics,
		Now: func() time.Time {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.now
		},
	})
	return h
}

func TestCheck_AppliesOnlyOnChange(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	d, err := h.sw.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Period != schedule.Night || d.Mode != "dark" {
		t.Fatalf("decision = %s/%s, want night/dark", d.Period, d.Mode)
	}
	if _, err := h.sw.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := len(h.rec.transitions()); got != 1 {
		t.Fatalf("expected 1 apply for an unchanged decision, got %d", got)
	}

	h.setNow(time.Date(2024, 3, 11, 7, 0, 0, 0, time.UTC))
	if _, err := h.sw.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
	ts := h.rec.transitions()
	if len(ts) != 2 {
		t.Fatalf("expected 2 applies, got %d", len(ts))
	}
	last := ts[1]
	if last.Period != schedule.Day || last.Mode != "light" || last.Previous != "dark" {
		t.Errorf("unexpected transition %+v", last)
	}
	if last.Reason != events.ReasonSchedule || last.Source != schedule.SourceManual {
		t.Errorf("reason/source = %s/%s", last.Reason, last.Source)
	}
	if got := testutil.ToFloat64(h.metrics.Evaluations.WithLabelValues("night", "manual")); got != 2 {
		t.Errorf("night evaluations = %v, want 2", got)
	}
}

func TestCheck_RecordsCronScan(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.Schedule.UseCron = true
	h.cfg.Schedule.DayCron = "0 7 * * *"
	h.cfg.Schedule.NightCron = "0 20 * * *"

	d, err := h.sw.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Source != schedule.SourceCron || d.CronScan <= 0 {
		t.Fatalf("decision = %+v, want a cron decision with a scan time", d)
	}
	w := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "umbra_cron_scan_duration_seconds_count 1") {
		t.Error("cron scan was not observed")
	}
}

func TestCheck_DisabledDoesNotApply(t *testing.T) {
	h := newHarness(t, nil)
	off := false
	h.cfg.Schedule.Enabled = &off
	h.sw = New(Config{
		Evaluator: schedule.NewEvaluator(nil),
		Settings:  func() *config.Config { return h.cfg },
		Applier:   h.rec,
		Now:       func() time.Time { return h.now },
	})

	d, err := h.sw.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsNight {
		t.Error("expected the decision to still be computed")
	}
	if len(h.rec.transitions()) != 0 {
		t.Error("disabled switcher must not apply")
	}
	if st := h.sw.Status(); st.Enabled || st.Decision == nil {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestCheck_ApplyFailureRetriesNextTick(t *testing.T) {
	h := newHarness(t, nil)
	h.rec.err = errors.New("boom")

	_, err := h.sw.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected apply error, got %v", err)
	}
	if st := h.sw.Status(); st.Mode != "" {
		t.Errorf("failed apply must not update the current mode, got %q", st.Mode)
	}

	h.rec.err = nil
	if _, err := h.sw.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(h.rec.transitions()); got != 2 {
		t.Errorf("expected a retry, got %d applies", got)
	}
	if got := testutil.ToFloat64(h.metrics.Applies.WithLabelValues("night", "schedule", "error")); got != 1 {
		t.Errorf("failed applies = %v, want 1", got)
	}
}

func TestCheck_PublishesDegraded(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.Schedule.DayStart = "25:00"

	ch, unsub := h.bus.SubscribeChan(8, events.EventScheduleDegraded)
	defer unsub()

	if _, err := h.sw.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-ch:
		p, ok := events.GetScheduleDegradedPayload(e)
		if !ok || len(p.Reasons) == 0 {
			t.Errorf("unexpected payload %+v", e.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no schedule.degraded event")
	}
}

func TestForce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	st, err := h.sw.Execute(ctx, ForceDay{})
	if err != nil {
		t.Fatalf("ForceDay: %v", err)
	}
	if st.Mode != "light" || st.Reason != events.ReasonForce {
		t.Errorf("status after force = %+v", st)
	}

	h.cfg.Modes.Night = ""
	_, err = h.sw.Execute(ctx, ForceNight{})
	if err == nil || !strings.Contains(err.Error(), "configure a night mode first") {
		t.Errorf("expected missing mode error, got %v", err)
	}
	if got := testutil.ToFloat64(h.metrics.Commands.WithLabelValues(CmdForceNight, "error")); got != 1 {
		t.Errorf("failed force_night commands = %v, want 1", got)
	}
}

func TestStatusDoesNotWaitForApplier(t *testing.T) {
	h := newHarness(t, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.sw.applier = ApplierFunc(func(ctx context.Context, tr Transition) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.sw.Execute(context.Background(), ForceDay{})
		done <- err
	}()
	<-entered

	got := make(chan Status, 1)
	go func() { got <- h.sw.Status() }()
	select {
	case st := <-got:
		if st.Mode != "" {
			t.Errorf("mode committed before the applier returned: %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("Status blocked while an applier was running")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("ForceDay: %v", err)
	}
	if st := h.sw.Status(); st.Mode != "light" {
		t.Errorf("mode after apply = %q, want light", st.Mode)
	}
}

func TestEnableDisable(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	ch, unsub := h.bus.SubscribeChan(8, events.EventScheduleToggled)
	defer unsub()

	if _, err := h.sw.Execute(ctx, Disable{}); err != nil {
		t.Fatal(err)
	}
	if h.sw.Enabled() {
		t.Fatal("expected disabled")
	}
	if _, err := h.sw.Check(ctx); err != nil {
		t.Fatal(err)
	}
	if len(h.rec.transitions()) != 0 {
		t.Fatal("no apply expected while disabled")
	}

	st, err := h.sw.Execute(ctx, Enable{})
	if err != nil {
		t.Fatal(err)
	}
	if !st.Enabled || st.Mode != "dark" {
		t.Errorf("enable should check immediately, got %+v", st)
	}

	for range 2 {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("missing schedule.toggled event")
		}
	}
}

func TestPreviewReverts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.sw.Check(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := h.sw.Execute(ctx, Preview{Period: schedule.Day, Duration: config.Duration(20 * time.Millisecond)})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !st.Previewing || st.Mode != "light" {
		t.Fatalf("status during preview = %+v", st)
	}

	// Ticks during a preview leave the mode alone.
	if _, err := h.sw.Check(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.sw.Status().Previewing {
		if time.Now().After(deadline) {
			t.Fatal("preview never reverted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ts := h.rec.transitions()
	if len(ts) != 3 {
		t.Fatalf("expected schedule, preview and revert applies, got %d", len(ts))
	}
	if ts[1].Reason != events.ReasonPreview || ts[2].Reason != events.ReasonRevert {
		t.Errorf("reasons = %s, %s", ts[1].Reason, ts[2].Reason)
	}
	if ts[2].Mode != "dark" {
		t.Errorf("revert mode = %q, want dark", ts[2].Mode)
	}
}

func TestForceCancelsPreview(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.sw.Execute(ctx, Preview{Period: schedule.Day, Duration: config.Duration(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	st, err := h.sw.Execute(ctx, ForceNight{})
	if err != nil {
		t.Fatal(err)
	}
	if st.Previewing {
		t.Error("force should cancel a running preview")
	}
}

func TestTestLocation(t *testing.T) {
	res := &fixedResolver{times: geo.SunTimes{Sunrise: "05:00", Sunset: "23:00"}}
	h := newHarness(t, res)

	st, err := h.sw.Execute(context.Background(), TestLocation{Latitude: 48.85, Longitude: 2.35})
	if err != nil {
		t.Fatal(err)
	}
	if st.Decision == nil {
		t.Fatal("expected a decision")
	}
	if st.Decision.Source != schedule.SourceLocation || st.Decision.IsNight {
		t.Errorf("decision = %+v, want location/day at 22:00 with sunset 23:00", st.Decision)
	}
	if len(h.rec.transitions()) != 0 {
		t.Error("test_location must not apply")
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.Daemon.Interval = config.Duration(10 * time.Millisecond)

	h.sw.Start(context.Background())
	if got := len(h.rec.transitions()); got != 1 {
		t.Fatalf("expected the initial check to apply, got %d", got)
	}
	h.setNow(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC))

	deadline := time.Now().Add(2 * time.Second)
	for len(h.rec.transitions()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("tick never applied the day mode")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.sw.Stop()
	h.sw.Stop()
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		want    Command
		wantErr string
	}{
		{name: CmdCheck, want: CheckNow{}},
		{name: CmdForceDay, want: ForceDay{}},
		{name: CmdForceNight, params: "null", want: ForceNight{}},
		{name: CmdEnable, want: Enable{}},
		{name: CmdDisable, want: Disable{}},
		{name: CmdPreview, params: `{"period":"night","duration":"3s"}`, want: Preview{Period: schedule.Night, Duration: config.Duration(3 * time.Second)}},
		{name: CmdPreview, params: `{"period":"dusk"}`, wantErr: "period must be"},
		{name: CmdPreview, params: `{`, wantErr: "decode params"},
		{name: CmdTestLocation, params: `{"latitude":48.85,"longitude":2.35}`, want: TestLocation{Latitude: 48.85, Longitude: 2.35}},
		{name: CmdTestLocation, params: `{"latitude":91,"longitude":2}`, wantErr: "latitude must be between"},
		{name: "reboot", wantErr: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name+tt.params, func(t *testing.T) {
			got, err := DecodeCommand(tt.name, json.RawMessage(tt.params))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
			if got.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.name)
			}
		})
	}

	if _, err := DecodeCommand("nope", nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}
