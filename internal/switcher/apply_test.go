package switcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/schedule"
	"github.com/dohr-michael/umbra/internal/storage"
)

func nightTransition() Transition {
	return Transition{
		Period:   schedule.Night,
		Mode:     "dark",
		Previous: "light",
		Reason:   events.ReasonSchedule,
		Source:   schedule.SourceManual,
		At:       time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC),
	}
}

func TestHookApplier_Env(t *testing.T) {
	out := filepath.Join(t.TempDir(), "hook.out")
	t.Setenv("HOOK_OUT", out)

	h, err := NewHookApplier(`echo "$UMBRA_MODE $UMBRA_THEME $UMBRA_PERIOD $UMBRA_REASON $UMBRA_PREVIOUS" > "$HOOK_OUT"`, time.Second)
	if err != nil {
		t.Fatalf("NewHookApplier: %v", err)
	}
	if err := h.Apply(context.Background(), nightTransition()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "dark dark night schedule light" {
		t.Errorf("hook saw %q", got)
	}
}

func TestHookApplier_Errors(t *testing.T) {
	if h, err := NewHookApplier("   ", 0); h != nil || err != nil {
		t.Errorf("blank script: got %v, %v", h, err)
	}
	if _, err := NewHookApplier("if then fi (", 0); err == nil {
		t.Error("expected a parse error")
	}

	h, err := NewHookApplier(`echo "no theme tool" >&2; exit 3`, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	h.SetOutput(nil, &stderr)
	err = h.Apply(context.Background(), nightTransition())
	if err == nil || !strings.Contains(err.Error(), "no theme tool") {
		t.Errorf("expected stderr in error, got %v", err)
	}
	if !strings.Contains(stderr.String(), "no theme tool") {
		t.Errorf("stderr not forwarded: %q", stderr.String())
	}
}

func TestHookApplier_Timeout(t *testing.T) {
	h, err := NewHookApplier(`while true; do :; done`, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := h.Apply(context.Background(), nightTransition()); err == nil {
		t.Fatal("expected the hook to be cut off")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not honoured")
	}
}

func TestStateApplier(t *testing.T) {
	store := storage.NewStateStore(t.TempDir())
	a := StateApplier{Store: store}

	if err := a.Apply(context.Background(), nightTransition()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode != "dark" || st.Period != "night" || st.Reason != "schedule" || st.Source != "manual" {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestAppliers_RunAllAndJoin(t *testing.T) {
	var calls []string
	errA := errors.New("a failed")
	errC := errors.New("c failed")

	as := Appliers{
		ApplierFunc(func(context.Context, Transition) error { calls = append(calls, "a"); return errA }),
		nil,
		ApplierFunc(func(context.Context, Transition) error { calls = append(calls, "b"); return nil }),
		ApplierFunc(func(context.Context, Transition) error { calls = append(calls, "c"); return errC }),
	}
	err := as.Apply(context.Background(), nightTransition())
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("expected both errors joined, got %v", err)
	}
	if strings.Join(calls, "") != "abc" {
		t.Errorf("calls = %v", calls)
	}

	if err := (Appliers{}).Apply(context.Background(), nightTransition()); err != nil {
		t.Errorf("empty appliers: %v", err)
	}
}
