package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fedsearch/fedsearch/internal/formatter"
	"github.com/fedsearch/fedsearch/internal/search"
)

func newShellSession(t *testing.T, engine *search.Engine) (*shellSession, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	session := &shellSession{
		engine: engine,
		fmtr:   formatter.NewFormatter(),
		format: formatter.FormatTable,
		out:    out,
		errOut: errOut,
	}

	return session, out, errOut
}

func TestShellSessionQuit(t *testing.T) {
	session, _, _ := newShellSession(t, newTestEngine(t))
	ctx := context.Background()

	for _, line := range []string{".quit", ".exit", "  .quit  "} {
		if quit := session.handleLine(ctx, line); !quit {
			t.Errorf("handleLine(%q) = false, want true", line)
		}
	}

	if quit := session.handleLine(ctx, ".help"); quit {
		t.Error("handleLine(.help) = true, want false")
	}
}

func TestShellSessionHelp(t *testing.T) {
	session, out, _ := newShellSession(t, newTestEngine(t))

	session.handleLine(context.Background(), ".help")

	output := out.String()
	for _, want := range []string{".connect", ".sql", ".exec", ".index", ".format", ".quit"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected help to mention %q, but got:\n%s", want, output)
		}
	}
}

func TestShellSessionEmptyLine(t *testing.T) {
	session, out, errOut := newShellSession(t, newTestEngine(t))

	if quit := session.handleLine(context.Background(), "   "); quit {
		t.Error("handleLine(blank) = true, want false")
	}

	if out.Len() != 0 || errOut.Len() != 0 {
		t.Errorf("Expected no output for a blank line, got out=%q err=%q", out.String(), errOut.String())
	}
}

func TestShellSessionUnknownCommand(t *testing.T) {
	session, _, errOut := newShellSession(t, newTestEngine(t))

	session.handleLine(context.Background(), ".bogus")

	if !strings.Contains(errOut.String(), "Unknown command: .bogus") {
		t.Errorf("Expected unknown-command message, got:\n%s", errOut.String())
	}
}

func TestShellSessionConnect(t *testing.T) {
	session, out, errOut := newShellSession(t, newSalesEngine(t))
	ctx := context.Background()

	session.handleLine(ctx, ".connect nope")

	if !strings.Contains(errOut.String(), "unknown connection") {
		t.Errorf("Expected unknown-connection error, got:\n%s", errOut.String())
	}

	if session.connection != "" {
		t.Errorf("connection = %q, want empty after failed connect", session.connection)
	}

	session.handleLine(ctx, ".connect sales")

	if session.connection != "sales" {
		t.Errorf("connection = %q, want sales", session.connection)
	}

	if !strings.Contains(out.String(), "Active connection: sales") {
		t.Errorf("Expected confirmation, got:\n%s", out.String())
	}

	if got := session.prompt(); got != "fedsearch(sales)> " {
		t.Errorf("prompt() = %q, want fedsearch(sales)> ", got)
	}
}

func TestShellSessionFormat(t *testing.T) {
	session, out, errOut := newShellSession(t, newTestEngine(t))
	ctx := context.Background()

	session.handleLine(ctx, ".format json")

	if session.format != formatter.FormatJSON {
		t.Errorf("format = %q, want json", session.format)
	}

	if !strings.Contains(out.String(), "Display format: json") {
		t.Errorf("Expected confirmation, got:\n%s", out.String())
	}

	session.handleLine(ctx, ".format xml")

	if !strings.Contains(errOut.String(), "unknown output format") {
		t.Errorf("Expected format error, got:\n%s", errOut.String())
	}

	if session.format != formatter.FormatJSON {
		t.Errorf("format = %q, want json to survive a bad .format", session.format)
	}
}

func TestShellSessionGenerateRequiresConnection(t *testing.T) {
	session, _, errOut := newShellSession(t, newSalesEngine(t))

	session.handleLine(context.Background(), ".sql show orders")

	if !strings.Contains(errOut.String(), "No active connection") {
		t.Errorf("Expected connection guard, got:\n%s", errOut.String())
	}
}

func TestShellSessionGenerate(t *testing.T) {
	session, out, errOut := newShellSession(t, newSalesEngine(t))
	ctx := context.Background()

	session.handleLine(ctx, ".connect sales")
	session.handleLine(ctx, ".sql show orders")

	if errOut.Len() != 0 {
		t.Fatalf("Unexpected shell error: %s", errOut.String())
	}

	output := out.String()
	for _, want := range []string{"FROM orders", "Verdict: ACCEPTED"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestShellSessionExec(t *testing.T) {
	session, out, errOut := newShellSession(t, newSalesEngine(t))
	ctx := context.Background()

	session.handleLine(ctx, ".connect sales")
	session.handleLine(ctx, ".exec SELECT customer FROM orders ORDER BY customer;")

	if errOut.Len() != 0 {
		t.Fatalf("Unexpected shell error: %s", errOut.String())
	}

	output := out.String()
	for _, want := range []string{"Key: fedsearch:qcache:sales:", "acme", "globex"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestShellSessionSearch(t *testing.T) {
	session, out, errOut := newShellSession(t, newSalesEngine(t))
	ctx := context.Background()

	session.handleLine(ctx, ".connect sales")
	session.handleLine(ctx, "show orders")

	if errOut.Len() != 0 {
		t.Fatalf("Unexpected shell error: %s", errOut.String())
	}

	if !strings.Contains(out.String(), "sales.orders") {
		t.Errorf("Expected a fused result for the orders table, got:\n%s", out.String())
	}
}

func TestShellSessionIndex(t *testing.T) {
	session, out, errOut := newShellSession(t, newSalesEngine(t))
	ctx := context.Background()

	session.handleLine(ctx, ".index")

	if !strings.Contains(errOut.String(), "Usage: .index") {
		t.Errorf("Expected usage without a connection, got:\n%s", errOut.String())
	}

	errOut.Reset()
	session.handleLine(ctx, ".index sales")

	if errOut.Len() != 0 {
		t.Fatalf("Unexpected shell error: %s", errOut.String())
	}

	if !strings.Contains(out.String(), "Connection: sales") {
		t.Errorf("Expected snapshot summary, got:\n%s", out.String())
	}
}
