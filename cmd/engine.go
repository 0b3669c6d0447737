package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/config"
	"github.com/fedsearch/fedsearch/internal/export"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/search"
)

// loadConfig resolves configuration from file, environment and root flags,
// then installs the logger. Every command goes through here so overrides
// behave the same everywhere.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	overrides := make(map[string]interface{})

	for _, name := range []string{"connections-file", "log-level", "log-format", "cache-store"} {
		if v := cmd.String(name); v != "" {
			overrides[name] = v
		}
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
		Output:    os.Stderr,
	})

	return cfg, nil
}

// buildEngine assembles the search engine and the exporter behind it. The
// exporter is returned separately because uploads are a CLI concern the
// engine does not expose. Callers own engine.Close.
func buildEngine(cfg *config.Config) (*search.Engine, *export.Exporter, error) {
	exporter, err := export.New(cfg.Export)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize exporter: %w", err)
	}

	engine, err := search.NewEngine(cfg, exporter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	return engine, exporter, nil
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}

	return (fi.Mode() & os.ModeCharDevice) != 0
}

// newSpinner builds a stderr spinner for long operations. Callers guard with
// isTerminal so piped output stays clean.
func newSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message

	return s
}
