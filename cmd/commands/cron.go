package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/umbra/internal/cron"
)

// NewCronCommand returns the cron subcommand.
func NewCronCommand() *cli.Command {
	return &cli.Command{
		Name:  "cron",
		Usage: "Inspect cron expressions",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Check that an expression parses",
				ArgsUsage: "EXPR",
				Action:    runCronValidate,
			},
			{
				Name:      "last",
				Usage:     "Show the most recent time an expression fired",
				ArgsUsage: "EXPR",
				Flags:     []cli.Flag{atFlag("Reference time")},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runCronOccurrence(cmd, false)
				},
			},
			{
				Name:      "next",
				Usage:     "Show the next time an expression fires",
				ArgsUsage: "EXPR",
				Flags:     []cli.Flag{atFlag("Reference time")},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runCronOccurrence(cmd, true)
				},
			},
		},
	}
}

// cronArg joins the positional args so expressions work quoted or not.
func cronArg(cmd *cli.Command) (string, error) {
	expr := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if expr == "" {
		return "", errors.New("usage: umbra cron " + cmd.Name + " EXPR")
	}
	return expr, nil
}

func runCronValidate(_ context.Context, cmd *cli.Command) error {
	expr, err := cronArg(cmd)
	if err != nil {
		return err
	}
	p := newPrinter()

	e, err := cron.Parse(expr)
	if err != nil {
		p.line("%s %s", p.fail("invalid"), err)
		return cli.Exit("", 1)
	}
	p.line("%s %s", p.ok("valid"), e)
	for _, f := range []struct {
		name  string
		field cron.Field
	}{
		{"minute", e.Minute},
		{"hour", e.Hour},
		{"day of month", e.DayOfMonth},
		{"month", e.Month},
		{"day of week", e.DayOfWeek},
	} {
		if f.field.Any() {
			p.field(f.name, p.hint("any"))
			continue
		}
		p.field(f.name, fmt.Sprint(f.field.Values()))
	}
	return nil
}

func runCronOccurrence(cmd *cli.Command, next bool) error {
	expr, err := cronArg(cmd)
	if err != nil {
		return err
	}
	ref, err := parseAt(cmd)
	if err != nil {
		return err
	}
	e, err := cron.Parse(expr)
	if err != nil {
		return err
	}

	var (
		t  = ref
		ok bool
	)
	if next {
		t, ok = e.Next(ref, cron.DefaultLookback)
	} else {
		t, ok = e.Last(ref, cron.DefaultLookback)
	}

	p := newPrinter()
	if !ok {
		p.line("%s", p.hint("no occurrence within a year of "+ref.Format("2006-01-02 15:04")))
		return nil
	}
	p.line("%s", t.Format("2006-01-02 15:04 MST (Mon)"))
	return nil
}
