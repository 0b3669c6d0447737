package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fedsearch/fedsearch/internal/formatter"
)

func TestRunStats(t *testing.T) {
	engine := newSalesEngine(t)

	var buf bytes.Buffer
	if err := runStats(context.Background(), engine, formatter.FormatLong, &buf); err != nil {
		t.Fatalf("runStats() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"Connections: 1 configured",
		"sales",
		"Cache (memory):",
		"LLM: disabled",
	}

	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}
