package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/config"
	"github.com/fedsearch/fedsearch/internal/connection"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or initialize configuration",
		Commands: []*cli.Command{
			configShowCommand(),
			configInitCommand(),
		},
	}
}

func configShowCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Display the active configuration",
		Description: `Show the resolved configuration after merging defaults, the config file, environment variables and flags. Secrets are never printed.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the configuration as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runConfigShow(cfg, cmd.Bool("json"), os.Stdout)
		},
	}
}

func configInitCommand() *cli.Command {
	return &cli.Command{
		Name:        "init",
		Usage:       "Write the resolved configuration to disk",
		Description: `Write the resolved configuration to the config file, create the data directories, and create an empty connections file if none exists.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runConfigInit(cfg, os.Stdout)
		},
	}
}

func runConfigShow(cfg *config.Config, asJSON bool, w io.Writer) error {
	if asJSON {
		// Secret fields carry json:"-" so the dump is safe to share.
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}

		fmt.Fprintln(w, string(data))

		return nil
	}

	fmt.Fprintln(w, "Active Configuration:")

	fmt.Fprintln(w, "\nConnections:")
	fmt.Fprintf(w, "  File: %s\n", cfg.Connections.File)
	fmt.Fprintf(w, "  Default Row Limit: %d\n", cfg.Connections.DefaultRowLimit)
	fmt.Fprintf(w, "  Connect Timeout: %s\n", cfg.Connections.ConnectTimeout)
	fmt.Fprintf(w, "  Max Open Conns: %d\n", cfg.Connections.MaxOpenConns)
	fmt.Fprintf(w, "  Max Idle Conns: %d\n", cfg.Connections.MaxIdleConns)

	fmt.Fprintln(w, "\nSchema Index:")
	fmt.Fprintf(w, "  TTL: %s\n", cfg.Schema.TTL)
	fmt.Fprintf(w, "  Top K Tables: %d\n", cfg.Schema.TopK)
	fmt.Fprintf(w, "  Sample Values: %d\n", cfg.Schema.SampleValues)

	fmt.Fprintln(w, "\nCache:")
	fmt.Fprintf(w, "  Store: %s\n", cfg.Cache.Store)
	fmt.Fprintf(w, "  Max Size: %d MB\n", cfg.Cache.MaxSizeMB)
	fmt.Fprintf(w, "  Default TTL: %s\n", cfg.Cache.DefaultTTL)
	fmt.Fprintf(w, "  Page Size: %d\n", cfg.Cache.PageSize)
	fmt.Fprintf(w, "  Cleanup Frequency: %s\n", cfg.Cache.CleanupFreq)
	fmt.Fprintf(w, "  Key Prefix: %s\n", cfg.Cache.KeyPrefix)

	if cfg.Cache.Store == "redis" {
		fmt.Fprintf(w, "  Redis Address: %s\n", cfg.Cache.RedisAddr)
		fmt.Fprintf(w, "  Redis DB: %d\n", cfg.Cache.RedisDB)
	}

	fmt.Fprintln(w, "\nSearch:")
	fmt.Fprintf(w, "  Timeout: %s\n", cfg.Search.Timeout)
	fmt.Fprintf(w, "  SQL Timeout: %s\n", cfg.Search.SQLTimeout)
	fmt.Fprintf(w, "  Doc Timeout: %s\n", cfg.Search.DocTimeout)
	fmt.Fprintf(w, "  Top K: %d\n", cfg.Search.TopK)
	fmt.Fprintf(w, "  Source Priority: %s\n", cfg.Search.SourcePriority)

	fmt.Fprintln(w, "\nLLM:")
	fmt.Fprintf(w, "  Base URL: %s\n", orUnset(cfg.LLM.BaseURL))
	fmt.Fprintf(w, "  Model: %s\n", cfg.LLM.Model)
	fmt.Fprintf(w, "  Timeout: %s\n", cfg.LLM.Timeout)
	fmt.Fprintf(w, "  Max Retries: %d\n", cfg.LLM.MaxRetries)

	fmt.Fprintln(w, "\nEmbedding:")
	fmt.Fprintf(w, "  Provider: %s\n", cfg.Embedding.Provider)
	fmt.Fprintf(w, "  Model: %s\n", cfg.Embedding.Model)
	fmt.Fprintf(w, "  Dimensions: %d\n", cfg.Embedding.Dimensions)
	fmt.Fprintf(w, "  Batch Size: %d\n", cfg.Embedding.BatchSize)

	fmt.Fprintln(w, "\nVector Store:")
	fmt.Fprintf(w, "  URL: %s\n", orUnset(cfg.Vector.URL))
	fmt.Fprintf(w, "  Collection: %s\n", cfg.Vector.Collection)
	fmt.Fprintf(w, "  Timeout: %s\n", cfg.Vector.Timeout)

	fmt.Fprintln(w, "\nExport:")
	fmt.Fprintf(w, "  Directory: %s\n", cfg.Export.Dir)
	fmt.Fprintf(w, "  S3 Endpoint: %s\n", orUnset(cfg.Export.Endpoint))
	fmt.Fprintf(w, "  S3 Bucket: %s\n", cfg.Export.Bucket)

	fmt.Fprintln(w, "\nAPI:")
	fmt.Fprintf(w, "  Address: %s\n", cfg.API.Addr)
	fmt.Fprintf(w, "  Shutdown Timeout: %s\n", cfg.API.ShutdownTimeout)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "  Add Source: %t\n", cfg.Logging.AddSource)

	return nil
}

func runConfigInit(cfg *config.Config, w io.Writer) error {
	if err := config.SaveConfig(cfg); err != nil {
		return err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote %s\n", config.ConfigPath())

	// Touch the connections file so listing works before any connection is
	// added.
	if _, err := os.Stat(cfg.Connections.File); os.IsNotExist(err) {
		registry, err := connection.LoadRegistry(cfg.Connections.File)
		if err != nil {
			return err
		}

		if err := registry.Save(); err != nil {
			return err
		}

		fmt.Fprintf(w, "Wrote %s\n", cfg.Connections.File)
	}

	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}

	return s
}
