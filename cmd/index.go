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

func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Build or refresh the schema index",
		Description: `Introspect connections and rebuild their schema snapshots, including the
table embeddings used to pick candidate tables during SQL generation. With no
argument every configured connection is indexed.`,
		ArgsUsage: " [connection]",
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

			var ids []string
			if args := cmd.Args(); args.Len() > 0 {
				ids = []string{args.First()}
			} else {
				for _, desc := range engine.Registry().List() {
					ids = append(ids, desc.ID)
				}
			}

			return runIndex(ctx, engine, ids, format, isTerminal(os.Stdout), os.Stdout)
		},
	}
}

func runIndex(
	ctx context.Context,
	engine *search.Engine,
	ids []string,
	format formatter.OutputFormat,
	interactive bool,
	w io.Writer,
) error {
	if len(ids) == 0 {
		fmt.Fprintln(w, "(no connections configured)")
		return nil
	}

	f := formatter.NewFormatter()

	for _, id := range ids {
		spin := newSpinner(fmt.Sprintf("indexing %s", id))
		if interactive {
			spin.Start()
		}

		snap, err := engine.IndexSchema(ctx, id)

		spin.Stop()

		if err != nil {
			return fmt.Errorf("failed to index %s: %w", id, err)
		}

		if err := f.FormatSnapshot(w, snap, format); err != nil {
			return err
		}
	}

	return nil
}
