package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/umbra/clients/ws"
	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/heartbeat"
	"github.com/dohr-michael/umbra/internal/schedule"
	"github.com/dohr-michael/umbra/internal/switcher"
)

const commandTimeout = 30 * time.Second

// NewForceCommand returns the force subcommand.
func NewForceCommand() *cli.Command {
	return &cli.Command{
		Name:      "force",
		Usage:     "Apply the day or night mode now, ignoring the schedule",
		ArgsUsage: "day|night",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			period, err := periodArg(cmd)
			if err != nil {
				return err
			}
			name := switcher.CmdForceDay
			if period == schedule.Night {
				name = switcher.CmdForceNight
			}
			return sendCommand(ctx, cmd, name, nil)
		},
	}
}

// NewPreviewCommand returns the preview subcommand.
func NewPreviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Apply a mode briefly, then switch back",
		ArgsUsage: "day|night",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "for",
				Usage: "How long to keep the preview (default: daemon.preview)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			period, err := periodArg(cmd)
			if err != nil {
				return err
			}
			params := switcher.Preview{Period: period}
			if cmd.IsSet("for") {
				params.Duration = config.Duration(cmd.Duration("for"))
			}
			return sendCommand(ctx, cmd, switcher.CmdPreview, params)
		},
	}
}

// NewEnableCommand returns the enable subcommand.
func NewEnableCommand() *cli.Command {
	return &cli.Command{
		Name:  "enable",
		Usage: "Turn automatic switching on",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return sendCommand(ctx, cmd, switcher.CmdEnable, nil)
		},
	}
}

// NewDisableCommand returns the disable subcommand.
func NewDisableCommand() *cli.Command {
	return &cli.Command{
		Name:  "disable",
		Usage: "Turn automatic switching off",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return sendCommand(ctx, cmd, switcher.CmdDisable, nil)
		},
	}
}

func periodArg(cmd *cli.Command) (schedule.Period, error) {
	p := schedule.Period(cmd.Args().First())
	if !p.Valid() {
		return "", fmt.Errorf("usage: umbra %s day|night", cmd.Name)
	}
	return p, nil
}

// gatewayAddr prefers the address a live daemon advertised in its
// heartbeat over the configured one.
func gatewayAddr(cmd *cli.Command) (string, error) {
	status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*heartbeat.DefaultInterval)
	if err == nil && status == heartbeat.StatusAlive && hb.Gateway != "" {
		return hb.Gateway, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Gateway.Addr(), nil
}

func sendCommand(ctx context.Context, cmd *cli.Command, name string, params any) error {
	addr, err := gatewayAddr(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	client, err := wsclient.Dial(ctx, wsclient.URL(addr))
	if err != nil {
		return fmt.Errorf("is the daemon running? (umbra daemon): %w", err)
	}
	defer client.Close()

	var st switcher.Status
	if err := client.Execute(ctx, name, params, &st); err != nil {
		return err
	}

	printStatus(newPrinter(), st)
	return nil
}

func printStatus(p *printer, st switcher.Status) {
	if st.Mode != "" {
		p.line("%s %s", p.badge(string(st.Period)), st.Mode)
	}
	auto := p.ok("on")
	if !st.Enabled {
		auto = p.warn("off")
	}
	p.field("auto switch", auto)
	if st.Previewing {
		p.field("preview", p.hint("running, will switch back"))
	}
}
