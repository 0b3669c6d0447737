package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/fedsearch/fedsearch/internal/config"
	"github.com/fedsearch/fedsearch/internal/formatter"
	"github.com/fedsearch/fedsearch/internal/search"
)

func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive search shell",
		Description: `Start an interactive shell. Plain lines run a federated search; dot-commands
pick a connection, generate SQL, execute raw statements and rebuild the
schema index. Type .help inside the shell for the full list.`,
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

			return runShell(ctx, engine, os.Stdout, os.Stderr)
		},
	}
}

func runShell(ctx context.Context, engine *search.Engine, out, errOut io.Writer) error {
	session := &shellSession{
		engine: engine,
		fmtr:   formatter.NewFormatter(),
		format: formatter.FormatTable,
		out:    out,
		errOut: errOut,
	}

	historyFile := filepath.Join(config.GetConfigDir(), "shell_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          session.prompt(),
		HistoryFile:     historyFile,
		AutoComplete:    session.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, "fedsearch shell")
	fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	fmt.Fprintln(out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if quit := session.handleLine(ctx, line); quit {
			break
		}

		rl.SetPrompt(session.prompt())
	}

	return nil
}

// shellSession carries the state of one interactive shell: the active
// connection and the display format. Line handling is separate from the
// readline loop so it can be driven directly.
type shellSession struct {
	engine     *search.Engine
	fmtr       *formatter.Formatter
	format     formatter.OutputFormat
	connection string
	out        io.Writer
	errOut     io.Writer
}

func (s *shellSession) prompt() string {
	if s.connection == "" {
		return "fedsearch> "
	}

	return fmt.Sprintf("fedsearch(%s)> ", s.connection)
}

// handleLine dispatches one shell line and reports whether to exit.
func (s *shellSession) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, ".") {
		return s.handleDotCommand(ctx, line)
	}

	s.searchLine(ctx, line)

	return false
}

func (s *shellSession) handleDotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		s.printHelp()

	case ".connections":
		if err := runConnectionsList(s.engine.Registry(), s.format, s.out); err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}

	case ".connect":
		if len(parts) < 2 {
			fmt.Fprintln(s.errOut, "Usage: .connect <connection>")
			return false
		}

		if _, err := s.engine.Registry().Get(parts[1]); err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
			return false
		}

		s.connection = parts[1]
		fmt.Fprintf(s.out, "Active connection: %s\n", s.connection)

	case ".sql":
		if len(parts) < 2 {
			fmt.Fprintln(s.errOut, "Usage: .sql <query>")
			return false
		}

		s.generateLine(ctx, strings.TrimSpace(strings.TrimPrefix(line, parts[0])))

	case ".exec":
		if len(parts) < 2 {
			fmt.Fprintln(s.errOut, "Usage: .exec <statement>")
			return false
		}

		s.execLine(ctx, strings.TrimSpace(strings.TrimPrefix(line, parts[0])))

	case ".index":
		id := s.connection
		if len(parts) > 1 {
			id = parts[1]
		}

		if id == "" {
			fmt.Fprintln(s.errOut, "Usage: .index <connection>")
			return false
		}

		s.indexLine(ctx, id)

	case ".format":
		if len(parts) < 2 {
			fmt.Fprintln(s.errOut, "Usage: .format <table|long|json>")
			return false
		}

		parsed, err := formatter.ParseFormat(parts[1])
		if err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
			return false
		}

		s.format = parsed
		fmt.Fprintf(s.out, "Display format: %s\n", parsed)

	case ".clear":
		fmt.Fprint(s.out, "\033[H\033[2J")

	default:
		fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}

	return false
}

func (s *shellSession) searchLine(ctx context.Context, query string) {
	resp, err := s.engine.Search(ctx, query, search.Options{ConnectionID: s.connection})
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}

	if err := s.fmtr.FormatResponse(s.out, resp, s.format); err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
}

func (s *shellSession) generateLine(ctx context.Context, query string) {
	if s.connection == "" {
		fmt.Fprintln(s.errOut, "No active connection; use .connect <connection> first")
		return
	}

	gq, err := s.engine.GenerateSQL(ctx, query, s.connection)
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}

	if err := s.fmtr.FormatGenerated(s.out, gq, s.format); err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
}

func (s *shellSession) execLine(ctx context.Context, statement string) {
	if s.connection == "" {
		fmt.Fprintln(s.errOut, "No active connection; use .connect <connection> first")
		return
	}

	statement = strings.TrimSuffix(statement, ";")

	entry, err := s.engine.ExecuteSQL(ctx, s.connection, statement)
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}

	page, err := s.engine.Page(ctx, entry.Key, 1, 0)
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}

	if err := s.fmtr.FormatEntry(s.out, entry); err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}

	if err := s.fmtr.FormatPage(s.out, page); err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
}

func (s *shellSession) indexLine(ctx context.Context, id string) {
	snap, err := s.engine.IndexSchema(ctx, id)
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}

	if err := s.fmtr.FormatSnapshot(s.out, snap, s.format); err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
}

func (s *shellSession) printHelp() {
	help := `
Commands:
  .help                  Show this help message
  .connections           List configured connections
  .connect <connection>  Set the active connection
  .sql <query>           Generate SQL for a natural-language query
  .exec <statement>      Execute a raw SQL statement on the active connection
  .index [connection]    Rebuild the schema index
  .format <name>         Set the display format (table, long, json)
  .clear                 Clear the screen
  .quit / .exit          Exit the shell

Any other line runs a federated search across SQL and documents.
`
	fmt.Fprintln(s.out, help)
}

func (s *shellSession) completer() *readline.PrefixCompleter {
	var ids []readline.PrefixCompleterInterface
	for _, desc := range s.engine.Registry().List() {
		ids = append(ids, readline.PcItem(desc.ID))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".connections"),
		readline.PcItem(".connect", ids...),
		readline.PcItem(".sql"),
		readline.PcItem(".exec"),
		readline.PcItem(".index", ids...),
		readline.PcItem(".format",
			readline.PcItem("table"),
			readline.PcItem("long"),
			readline.PcItem("json"),
		),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
