package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/geo"
	"github.com/dohr-michael/umbra/internal/schedule"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "umbra",
		Usage: "Switch between day and night modes on a schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			NewDaemonCommand(),
			NewCheckCommand(),
			NewStatusCommand(),
			NewCronCommand(),
			NewForceCommand(),
			NewPreviewCommand(),
			NewEnableCommand(),
			NewDisableCommand(),
			NewLocateCommand(),
			NewHistoryCommand(),
		},
	}
}

// loadConfig reads --config, falling back to defaults when the file does
// not exist.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// newGeoResolver wires the sun times client to the SQLite cache. The
// returned close func is never nil. A cache that cannot be opened is
// skipped with a warning. Entries older than sunRetention are pruned on
// open.
func newGeoResolver(ctx context.Context, cfg *config.Config) (*geo.Resolver, func()) {
	client := geo.NewSunClient(cfg.Location.APIURL, cfg.Location.Timeout.Duration())

	store, err := geo.OpenSunStore(cfg.Location.CacheDB)
	if err != nil {
		slog.Warn("sun times cache unavailable", "path", cfg.Location.CacheDB, "error", err)
		return geo.NewResolver(client, nil), func() {}
	}
	if n, err := store.Prune(ctx, time.Now().Add(-sunRetention)); err != nil {
		slog.Warn("sun times cache prune failed", "error", err)
	} else if n > 0 {
		slog.Debug("sun times cache pruned", "rows", n)
	}
	return geo.NewResolver(client, store), func() { store.Close() }
}

const sunRetention = 30 * 24 * time.Hour

// newEvaluator returns an evaluator backed by newGeoResolver.
func newEvaluator(ctx context.Context, cfg *config.Config) (*schedule.Evaluator, func()) {
	resolver, closeFn := newGeoResolver(ctx, cfg)
	return schedule.NewEvaluator(resolver), closeFn
}
