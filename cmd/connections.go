package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/connection"
	"github.com/fedsearch/fedsearch/internal/formatter"
	"github.com/fedsearch/fedsearch/internal/search"
)

func ConnectionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "connections",
		Usage: "List and check configured database connections",
		Commands: []*cli.Command{
			connectionsListCommand(),
			connectionsPingCommand(),
		},
	}
}

func connectionsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List configured connections",
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

			registry, err := connection.LoadRegistry(cfg.Connections.File)
			if err != nil {
				return err
			}

			return runConnectionsList(registry, format, os.Stdout)
		},
	}
}

func connectionsPingCommand() *cli.Command {
	return &cli.Command{
		Name:        "ping",
		Usage:       "Check connection reachability",
		Description: `Open each connection and ping it. With no argument every configured connection is checked.`,
		ArgsUsage:   " [connection]",
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

			var ids []string
			if args := cmd.Args(); args.Len() > 0 {
				ids = []string{args.First()}
			} else {
				for _, desc := range engine.Registry().List() {
					ids = append(ids, desc.ID)
				}
			}

			return runConnectionsPing(ctx, engine, ids, os.Stdout)
		},
	}
}

func runConnectionsList(registry *connection.Registry, format formatter.OutputFormat, w io.Writer) error {
	descriptors := registry.List()

	rows := make([]formatter.ConnectionRow, 0, len(descriptors))
	for _, desc := range descriptors {
		rows = append(rows, formatter.ConnectionRow{
			ID:      desc.ID,
			Dialect: desc.Dialect,
			Target:  desc.Target(),
		})
	}

	return formatter.NewFormatter().FormatConnections(w, rows, format)
}

func runConnectionsPing(ctx context.Context, engine *search.Engine, ids []string, w io.Writer) error {
	if len(ids) == 0 {
		fmt.Fprintln(w, "(no connections configured)")
		return nil
	}

	failures := 0

	for _, id := range ids {
		start := time.Now()

		if err := engine.Ping(ctx, id); err != nil {
			failures++
			fmt.Fprintf(w, "%s: failed: %v\n", id, err)

			continue
		}

		fmt.Fprintf(w, "%s: ok (%s)\n", id, time.Since(start).Round(time.Millisecond))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d connections failed", failures, len(ids))
	}

	return nil
}
