package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/schedule"
	"github.com/dohr-michael/umbra/internal/storage"
	"github.com/dohr-michael/umbra/internal/switcher"
)

// NewCheckCommand returns the check subcommand.
func NewCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Evaluate the schedule once and print how the decision was reached",
		Flags: []cli.Flag{
			atFlag("Evaluate at this time instead of now"),
			&cli.BoolFlag{
				Name:  "apply",
				Usage: "Apply the decided mode (state file and hook) without a daemon",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the decision as JSON",
			},
		},
		Action: runCheck,
	}
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	now, err := parseAt(cmd)
	if err != nil {
		return err
	}

	evaluator, closeGeo := newEvaluator(ctx, cfg)
	defer closeGeo()

	d := evaluator.Evaluate(ctx, cfg.ScheduleSettings(), now)

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return err
		}
	} else {
		printDecision(newPrinter(), d)
	}

	if !cmd.Bool("apply") {
		return nil
	}
	if d.Mode == "" {
		return fmt.Errorf("please configure a %s mode first", d.Period)
	}

	store := storage.NewStateStore(cfg.Apply.StateDir)
	appliers := switcher.Appliers{switcher.StateApplier{Store: store}}
	hook, err := switcher.NewHookApplier(cfg.Apply.Hook, cfg.Apply.HookTimeout.Duration())
	if err != nil {
		return fmt.Errorf("apply.hook: %w", err)
	}
	if hook != nil {
		hook.SetOutput(os.Stdout, os.Stderr)
		appliers = append(appliers, hook)
	}

	var previous string
	if st, err := store.Load(); err == nil {
		previous = st.Mode
	}
	err = appliers.Apply(ctx, switcher.Transition{
		Period:     d.Period,
		Mode:       d.Mode,
		Previous:   previous,
		Reason:     events.ReasonSchedule,
		Source:     d.Source,
		At:         time.Now(),
		AutoSwitch: cfg.Schedule.IsEnabled(),
	})
	if err != nil {
		return err
	}
	p := newPrinter()
	p.line("%s %s", p.ok("applied"), d.Mode)
	return nil
}

func printDecision(p *printer, d schedule.Decision) {
	p.line("%s %s", p.badge(string(d.Period)), d.Mode)
	p.field("at", d.At.Format("2006-01-02 15:04 MST"))
	p.field("source", d.Source)
	if d.DayStart != "" {
		p.field("day starts", d.DayStart)
		p.field("night starts", d.NightStart)
	}
	if d.Source == schedule.SourceCron {
		p.field("last day", formatOccurrence(d.LastDay))
		p.field("last night", formatOccurrence(d.LastNight))
	}
	if len(d.Fallbacks) > 0 {
		p.field("fallbacks", p.warn(strings.Join(d.Fallbacks, "; ")))
	}
}

func formatOccurrence(t time.Time) string {
	if t.IsZero() {
		return "none in lookback window"
	}
	return t.Format("2006-01-02 15:04 MST")
}

// atLayouts are accepted by --at. Layouts without a zone use local time.
var atLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"}

func atFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "at",
		Usage: usage + " (RFC3339 or YYYY-MM-DDTHH:MM)",
	}
}

// parseAt returns --at, or now when unset.
func parseAt(cmd *cli.Command) (time.Time, error) {
	v := cmd.String("at")
	if v == "" {
		return time.Now(), nil
	}
	for _, layout := range atLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--at: cannot parse %q", v)
}
