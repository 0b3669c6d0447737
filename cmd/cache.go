package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/formatter"
	"github.com/fedsearch/fedsearch/internal/search"
)

func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and invalidate the query result cache",
		Commands: []*cli.Command{
			cacheStatsCommand(),
			cacheInvalidateCommand(),
		},
	}
}

func cacheStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show cache effectiveness counters",
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

			return runCacheStats(ctx, engine, format, os.Stdout)
		},
	}
}

func cacheInvalidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "invalidate",
		Usage: "Drop cached results",
		Description: `Drop cached query results. The target may be a connection id, a full cache
key, or empty to drop everything.`,
		ArgsUsage: " [target]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, _, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			return runCacheInvalidate(ctx, engine, cmd.Args().First(), os.Stdout)
		},
	}
}

func runCacheStats(ctx context.Context, engine *search.Engine, format formatter.OutputFormat, w io.Writer) error {
	stats, err := engine.CacheStats(ctx)
	if err != nil {
		return err
	}

	return formatter.NewFormatter().FormatCacheStats(w, stats, format)
}

func runCacheInvalidate(ctx context.Context, engine *search.Engine, target string, w io.Writer) error {
	invalidated, err := engine.InvalidateCache(ctx, target)
	if err != nil {
		return err
	}

	label := target
	if label == "" {
		label = "all"
	}

	fmt.Fprintf(w, "Invalidated %d cache entries (target: %s)\n", invalidated, label)

	return nil
}
