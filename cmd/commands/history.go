package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/storage"
)

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent mode switches from the event log",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of switches to show",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include every logged event, not only mode switches",
			},
		},
		Action: runHistory,
	}
}

func runHistory(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var types []events.EventType
	if !cmd.Bool("all") {
		types = []events.EventType{events.EventModeApplied}
	}
	list, err := storage.ReadEvents(cfg.Daemon.EventLog, int(cmd.Int("limit")), types...)
	if err != nil {
		return err
	}

	p := newPrinter()
	if len(list) == 0 {
		p.line("%s", p.hint("no events logged yet"))
		return nil
	}

	for _, e := range list {
		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		payload, ok := events.GetModeAppliedPayload(e)
		if !ok {
			p.line("%s  %-18s %v", p.hint(ts), e.Type, e.Payload)
			continue
		}
		line := fmt.Sprintf("%s  %s %-14s %s", p.hint(ts), p.badge(payload.Period), payload.Mode, payload.Reason)
		if payload.Source != "" {
			line += " (" + payload.Source + ")"
		}
		if payload.Error != "" {
			line += "  " + p.fail(payload.Error)
		}
		p.line("%s", line)
	}
	return nil
}
