// Package cmd implements the fedsearch command line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// Execute runs the root command with signal-aware cancellation. An interrupt
// cancels the context so in-flight searches and servers shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RootCommand().Run(ctx, os.Args)
}

// RootCommand assembles the CLI. Root flags override file and environment
// configuration for every subcommand.
func RootCommand() *cli.Command {
	return &cli.Command{
		Name:  "fedsearch",
		Usage: "Natural-language search across SQL databases and document collections",
		Description: `fedsearch answers natural-language queries from two tiers at once: configured
SQL connections, through generated and validated SQL, and a document vector
collection. Results from both paths are fused into one ranked list.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "connections-file",
				Usage: "path to the connections registry",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format: console, json",
			},
			&cli.StringFlag{
				Name:  "cache-store",
				Usage: "result cache backend: memory, redis",
			},
		},
		Commands: []*cli.Command{
			SearchCommand(),
			SQLCommand(),
			IndexCommand(),
			CacheCommand(),
			ConnectionsCommand(),
			StatsCommand(),
			ShellCommand(),
			ServeCommand(),
			ConfigCommand(),
		},
	}
}
