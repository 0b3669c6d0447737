package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/formatter"
	"github.com/fedsearch/fedsearch/internal/search"
)

func SQLCommand() *cli.Command {
	return &cli.Command{
		Name:  "sql",
		Usage: "Generate SQL from a natural-language query",
		Description: `Translate a natural-language query into a SQL statement for one connection.
The statement is printed together with its validation verdict. With --run, an
accepted statement is executed and the first page of results is printed; a
rejected statement is never executed.`,
		ArgsUsage: " <query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "connection",
				Usage: "connection to generate against (required)",
			},
			&cli.BoolFlag{
				Name:  "run",
				Usage: "execute the statement when accepted",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "table",
				Usage: "output format: table, long, json",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() == 0 {
				return fmt.Errorf("expected a query argument")
			}

			connectionID := cmd.String("connection")
			if connectionID == "" {
				return fmt.Errorf("--connection is required")
			}

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

			query := strings.Join(args.Slice(), " ")

			return runSQL(ctx, engine, query, connectionID, cmd.Bool("run"), format, os.Stdout)
		},
	}
}

func runSQL(
	ctx context.Context,
	engine *search.Engine,
	query, connectionID string,
	run bool,
	format formatter.OutputFormat,
	w io.Writer,
) error {
	gq, err := engine.GenerateSQL(ctx, query, connectionID)
	if err != nil {
		return err
	}

	f := formatter.NewFormatter()
	if err := f.FormatGenerated(w, gq, format); err != nil {
		return err
	}

	if !run {
		return nil
	}

	if !gq.Accepted() {
		fmt.Fprintln(w, "Statement rejected; skipping execution.")
		return nil
	}

	entry, err := engine.ExecuteSQL(ctx, connectionID, gq.SQLText)
	if err != nil {
		return err
	}

	page, err := engine.Page(ctx, entry.Key, 1, 0)
	if err != nil {
		return err
	}

	if err := f.FormatEntry(w, entry); err != nil {
		return err
	}

	return f.FormatPage(w, page)
}
