package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fedsearch/fedsearch/internal/connection"
	"github.com/fedsearch/fedsearch/internal/formatter"
)

func TestRunConnectionsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")

	registry, err := connection.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}

	var buf bytes.Buffer
	if err := runConnectionsList(registry, formatter.FormatTable, &buf); err != nil {
		t.Fatalf("runConnectionsList() error = %v", err)
	}

	if !strings.Contains(buf.String(), "(no connections configured)") {
		t.Errorf("Expected empty marker, got:\n%s", buf.String())
	}

	if err := registry.Add(connection.Descriptor{
		ID:      "sales",
		Dialect: "sqlite",
		Path:    "/data/sales.db",
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	buf.Reset()

	if err := runConnectionsList(registry, formatter.FormatTable, &buf); err != nil {
		t.Fatalf("runConnectionsList() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"sales", "sqlite", "/data/sales.db"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestRunConnectionsPingEmpty(t *testing.T) {
	engine := newTestEngine(t)

	var buf bytes.Buffer
	if err := runConnectionsPing(context.Background(), engine, nil, &buf); err != nil {
		t.Fatalf("runConnectionsPing() error = %v", err)
	}

	if !strings.Contains(buf.String(), "(no connections configured)") {
		t.Errorf("Expected empty marker, got:\n%s", buf.String())
	}
}

func TestRunConnectionsPingUnknown(t *testing.T) {
	engine := newTestEngine(t)

	var buf bytes.Buffer

	err := runConnectionsPing(context.Background(), engine, []string{"nope"}, &buf)
	if err == nil {
		t.Fatal("Expected error for unknown connection")
	}

	if !strings.Contains(buf.String(), "nope: failed:") {
		t.Errorf("Expected failure line, got:\n%s", buf.String())
	}
}

func TestRunConnectionsPingSQLite(t *testing.T) {
	engine := newSalesEngine(t)

	var buf bytes.Buffer
	if err := runConnectionsPing(context.Background(), engine, []string{"sales"}, &buf); err != nil {
		t.Fatalf("runConnectionsPing() error = %v", err)
	}

	if !strings.Contains(buf.String(), "sales: ok") {
		t.Errorf("Expected success line, got:\n%s", buf.String())
	}
}
