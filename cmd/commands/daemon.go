package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/gateway"
	"github.com/dohr-michael/umbra/internal/heartbeat"
	"github.com/dohr-michael/umbra/internal/storage"
	"github.com/dohr-michael/umbra/internal/switcher"
	"github.com/dohr-michael/umbra/internal/telemetry"
)

// NewDaemonCommand returns the daemon subcommand.
func NewDaemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run the switcher and the gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "How often to check the schedule",
			},
		},
		Action: runDaemon,
	}
}

// hookSlot holds the hook applier for the current config so a reload can
// swap it.
type hookSlot struct {
	current atomic.Pointer[switcher.HookApplier]
}

func (h *hookSlot) set(cfg *config.Config) error {
	hook, err := switcher.NewHookApplier(cfg.Apply.Hook, cfg.Apply.HookTimeout.Duration())
	if err != nil {
		return err
	}
	if hook != nil {
		hook.SetOutput(os.Stdout, os.Stderr)
	}
	h.current.Store(hook)
	return nil
}

func (h *hookSlot) Apply(ctx context.Context, t switcher.Transition) error {
	hook := h.current.Load()
	if hook == nil {
		return nil
	}
	return hook.Apply(ctx, t)
}

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// CLI flags override config; both are read once at startup
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("interval") {
		cfg.Daemon.Interval = config.Duration(cmd.Duration("interval"))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event bus + JSONL event log
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	eventLog := storage.NewEventLogger(cfg.Daemon.EventLog, bus)
	defer eventLog.Close()

	metrics := telemetry.New()

	evaluator, closeGeo := newEvaluator(ctx, cfg)
	defer closeGeo()

	// Appliers: state file first, then the user hook
	hooks := &hookSlot{}
	if err := hooks.set(cfg); err != nil {
		return fmt.Errorf("apply.hook: %w", err)
	}
	appliers := switcher.Appliers{
		switcher.StateApplier{Store: storage.NewStateStore(cfg.Apply.StateDir)},
		hooks,
	}

	reloader := config.NewReloader(configPath, config.DotenvPath(), cfg)

	sw := switcher.New(switcher.Config{
		Evaluator: evaluator,
		Settings:  reloader.Current,
		Applier:   appliers,
		Bus:       bus,
		Metrics:   metrics,
	})

	hb := heartbeat.NewWriter(config.HeartbeatPath(), cfg.Gateway.Addr(), heartbeat.DefaultInterval, func() (string, string) {
		st := sw.Status()
		return string(st.Period), st.Mode
	})
	unsubHB := bus.Subscribe(func(events.Event) { hb.Touch() }, events.EventModeApplied)
	defer unsubHB()

	reloader.OnReload(func(c *config.Config) {
		if err := hooks.set(c); err != nil {
			slog.Error("apply.hook invalid, keeping previous hook", "error", err)
		}
		sw.Reloaded(ctx, c)
		bus.Publish(events.NewTypedEvent(events.SourceConfig, events.ConfigReloadedPayload{Path: configPath}))
	})

	// SIGHUP reloads .env and the config file
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloader.Watch(ctx, hup)

	server := gateway.NewServer(gateway.Config{
		Bus:      bus,
		Switcher: sw,
		Metrics:  metrics,
		Addr:     cfg.Gateway.Addr(),
	})

	hb.Start()
	defer hb.Stop()

	sw.Start(ctx)
	defer sw.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for signal or error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
