package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/geo"
)

// NewLocateCommand returns the locate subcommand.
func NewLocateCommand() *cli.Command {
	return &cli.Command{
		Name:  "locate",
		Usage: "Detect approximate coordinates from your IP and show today's sun times",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Write the detected coordinates into the config file",
			},
			&cli.FloatFlag{
				Name:  "lat",
				Usage: "Use this latitude instead of detecting it",
			},
			&cli.FloatFlag{
				Name:  "lon",
				Usage: "Use this longitude instead of detecting it",
			},
		},
		Action: runLocate,
	}
}

func runLocate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p := newPrinter()
	timeout := cfg.Location.Timeout.Duration()

	var coords geo.Coordinates
	if cmd.IsSet("lat") || cmd.IsSet("lon") {
		coords = geo.Coordinates{Latitude: cmd.Float("lat"), Longitude: cmd.Float("lon")}
		if err := coords.Validate(); err != nil {
			return err
		}
	} else {
		place, err := geo.NewLocator(cfg.Location.LocateURL, timeout).Locate(ctx)
		if err != nil {
			return fmt.Errorf("locate: %w", err)
		}
		coords = place.Coordinates
		p.field("place", fmt.Sprintf("%s, %s, %s", place.City, place.Region, place.Country))
		if place.Timezone != "" {
			p.field("timezone", place.Timezone)
		}
	}
	p.field("coordinates", coords.String())

	resolver, closeGeo := newGeoResolver(ctx, cfg)
	defer closeGeo()

	st, err := resolver.Resolve(ctx, coords, time.Now())
	if err != nil {
		p.field("sun", p.warn(err.Error()))
	} else {
		p.field("sunrise", st.Sunrise)
		p.field("sunset", st.Sunset)
	}

	if !cmd.Bool("save") {
		return nil
	}
	path := cmd.String("config")
	if err := config.SaveLocation(path, coords); err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	p.line("%s %s", p.ok("saved to"), path)
	if !cfg.Schedule.UseLocation {
		p.line("%s", p.hint("set schedule.use_location to true to switch on sunrise and sunset"))
	}
	return nil
}
