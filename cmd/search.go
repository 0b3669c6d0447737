package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/export"
	"github.com/fedsearch/fedsearch/internal/formatter"
	"github.com/fedsearch/fedsearch/internal/search"
)

func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search databases and documents with a natural-language query",
		Description: `Run a federated search. The SQL path generates and executes a validated
statement against configured connections; the document path retrieves
semantically similar documents. Both result lists are fused into one
ranked list.`,
		ArgsUsage: " <query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "connection",
				Usage: "restrict the SQL path to one connection",
			},
			&cli.BoolFlag{
				Name:  "sql",
				Usage: "search only the SQL path",
			},
			&cli.BoolFlag{
				Name:  "docs",
				Usage: "search only the document path",
			},
			&cli.IntFlag{
				Name:  "top-k",
				Usage: "maximum fused results to return",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall search deadline",
			},
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "rows per cached page for SQL results",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "table",
				Usage: "output format: table, long, json, csv, parquet",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "write the result to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "upload",
				Usage: "upload the result to the configured object store",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() == 0 {
				return fmt.Errorf("expected a query argument")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, exporter, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			opts := search.Options{
				ConnectionID: cmd.String("connection"),
				SearchSQL:    cmd.Bool("sql"),
				SearchDocs:   cmd.Bool("docs"),
				TopK:         int(cmd.Int("top-k")),
				Timeout:      cmd.Duration("timeout"),
				PageSize:     int(cmd.Int("page-size")),
			}

			out := searchOutput{
				format:    cmd.String("format"),
				path:      cmd.String("output"),
				upload:    cmd.Bool("upload"),
				exportDir: cfg.Export.Dir,
				spin:      isTerminal(os.Stdout),
			}

			return runSearch(ctx, engine, exporter, strings.Join(args.Slice(), " "), opts, out, os.Stdout)
		},
	}
}

// searchOutput carries the output disposition for one search invocation.
type searchOutput struct {
	format    string
	path      string
	upload    bool
	exportDir string
	spin      bool
}

func runSearch(
	ctx context.Context,
	engine *search.Engine,
	exporter *export.Exporter,
	query string,
	opts search.Options,
	out searchOutput,
	w io.Writer,
) error {
	spin := newSpinner("searching")
	if out.spin {
		spin.Start()
	}

	resp, err := engine.Search(ctx, query, opts)

	spin.Stop()

	if err != nil {
		return err
	}

	return writeSearchResult(ctx, engine, exporter, resp, out, w)
}

// writeSearchResult routes the response to the terminal formatter, an export
// encoder, or the object store depending on format and flags.
func writeSearchResult(
	ctx context.Context,
	engine *search.Engine,
	exporter *export.Exporter,
	resp *search.SearchResponse,
	out searchOutput,
	w io.Writer,
) error {
	format := strings.ToLower(strings.TrimSpace(out.format))

	if out.upload {
		if !isExportFormat(format) {
			return fmt.Errorf("upload requires an export format (csv, json, parquet), got %q", out.format)
		}

		location, err := exporter.Upload(ctx, resp, format)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "Uploaded %d results to %s\n", len(resp.Results), location)

		return nil
	}

	if format == "csv" || format == "parquet" {
		return writeExportFile(engine, resp, format, out, w)
	}

	parsed, err := formatter.ParseFormat(format)
	if err != nil {
		return err
	}

	if out.path != "" {
		f, err := os.Create(out.path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()

		if err := formatter.NewFormatter().FormatResponse(f, resp, parsed); err != nil {
			return err
		}

		fmt.Fprintf(w, "Wrote %d results to %s\n", len(resp.Results), out.path)

		return nil
	}

	return formatter.NewFormatter().FormatResponse(w, resp, parsed)
}

// writeExportFile writes an export artifact. CSV with no destination streams
// to the terminal like any text format; parquet is binary and always goes to
// a file, defaulting to the export directory.
func writeExportFile(engine *search.Engine, resp *search.SearchResponse, format string, out searchOutput, w io.Writer) error {
	if out.path == "" && format == "csv" {
		return engine.Export(w, resp, format)
	}

	path := out.path
	if path == "" {
		if err := os.MkdirAll(out.exportDir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}

		path = filepath.Join(out.exportDir, resp.RequestID+"."+format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := engine.Export(f, resp, format); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote %d results to %s\n", len(resp.Results), path)

	return nil
}

func isExportFormat(format string) bool {
	switch format {
	case "csv", "json", "parquet":
		return true
	}

	return false
}
