package cmd

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/formatter"
	"github.com/fedsearch/fedsearch/internal/search"
)

func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show engine statistics",
		Description: `Summarize the engine's subsystems: configured connections, indexed schemas,
cache counters, document store health and the language-model backend.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Value: "table",
				Usage: "output format: table, long, json",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := formatter.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, _, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			return runStats(ctx, engine, format, os.Stdout)
		},
	}
}

func runStats(ctx context.Context, engine *search.Engine, format formatter.OutputFormat, w io.Writer) error {
	stats, err := engine.Stats(ctx)
	if err != nil {
		return err
	}

	return formatter.NewFormatter().FormatStats(w, stats, format)
}
