package cmd

import (
	"context"
	"errors"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/api"
	"github.com/fedsearch/fedsearch/internal/config"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/search"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Description: `Serve the JSON HTTP API until interrupted. Endpoints cover search, SQL
generation, schema indexing, cache inspection and Prometheus metrics.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (host:port)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if addr := cmd.String("addr"); addr != "" {
				cfg.API.Addr = addr
			}

			engine, _, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			return runServe(ctx, cfg, engine)
		},
	}
}

// runServe blocks until the context is cancelled or the listener fails, then
// drains in-flight requests within the configured shutdown timeout.
func runServe(ctx context.Context, cfg *config.Config, engine *search.Engine) error {
	srv := api.NewServer(cfg.API, engine)

	errCh := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down api server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeoutDuration())
	defer cancel()

	return srv.Stop(shutdownCtx)
}
