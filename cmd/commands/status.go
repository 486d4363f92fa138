package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/heartbeat"
	"github.com/dohr-michael/umbra/internal/storage"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show daemon liveness and the last applied mode",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p := newPrinter()

			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*heartbeat.DefaultInterval)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				p.field("daemon", fmt.Sprintf("%s (PID %d, uptime %s)", p.ok("ALIVE"), hb.PID, hb.Uptime))
				if hb.Gateway != "" {
					p.field("gateway", hb.Gateway)
				}
			case heartbeat.StatusStale:
				p.field("daemon", fmt.Sprintf("%s (PID %d, last heartbeat %s ago)",
					p.warn("STALE"), hb.PID, time.Since(hb.Timestamp).Truncate(time.Second)))
			case heartbeat.StatusDead:
				p.field("daemon", p.fail("NOT RUNNING"))
			}

			st, err := storage.NewStateStore(cfg.Apply.StateDir).Load()
			switch {
			case errors.Is(err, storage.ErrNoState):
				p.field("mode", p.hint("nothing applied yet"))
				return nil
			case err != nil:
				return err
			}

			p.field("mode", fmt.Sprintf("%s %s", p.badge(st.Period), st.Mode))
			p.field("applied", fmt.Sprintf("%s (%s)", st.AppliedAt.Local().Format("2006-01-02 15:04"), st.Reason))
			if st.Source != "" {
				p.field("source", st.Source)
			}
			auto := "on"
			if !st.AutoSwitch {
				auto = "off"
			}
			p.field("auto switch", auto)
			return nil
		},
	}
}
