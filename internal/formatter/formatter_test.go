package formatter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fedsearch/fedsearch/internal/cache"
	"github.com/fedsearch/fedsearch/internal/search"
	"github.com/fedsearch/fedsearch/internal/sqlgen"
	"github.com/fedsearch/fedsearch/internal/types"
)

func sampleResponse() *search.SearchResponse {
	return &search.SearchResponse{
		RequestID: "req-42",
		Query:     "recent orders",
		TookMS:    12,
		Results: []search.Result{
			{
				Source:          search.SourceSQL,
				OriginID:        "fedsearch:qcache:sales:ab12",
				Title:           "sales.orders",
				Snippet:         "Columns: id, name\nRows: 2",
				RawScore:        0.9,
				NormalizedScore: 1.0,
			},
			{
				Source:          search.SourceDoc,
				OriginID:        "doc-1",
				Title:           "docs/orders.md",
				Snippet:         "Order flow overview.",
				RawScore:        0.4,
				NormalizedScore: 1.0,
			},
		},
		Sources: map[string]search.SourceStatus{
			search.SourceSQL: {Status: search.StatusOK, Count: 1, LatencyMS: 8},
			search.SourceDoc: {Status: search.StatusOK, Count: 1, LatencyMS: 5},
		},
		SQL: &search.SQLResult{
			Generated: &sqlgen.GeneratedQuery{
				SQLText:    "SELECT id, name FROM orders LIMIT 100",
				Method:     sqlgen.MethodRuleBased,
				Verdict:    sqlgen.VerdictAccepted,
				Confidence: 0.7,
			},
			Entry: &cache.Entry{Columns: []string{"id", "name"}, RowCount: 2},
			Page: &cache.Page{
				Columns:    []string{"id", "name"},
				Rows:       [][]any{{float64(1), "alpha"}, {float64(2), "beta"}},
				PageNumber: 1,
				TotalPages: 1,
				TotalRows:  2,
			},
		},
	}
}

func TestFormatter_FormatResponseTable(t *testing.T) {
	var buf bytes.Buffer

	if err := NewFormatter().FormatResponse(&buf, sampleResponse(), FormatTable); err != nil {
		t.Fatalf("FormatResponse() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"Query: recent orders  (request req-42, 12ms)",
		"SOURCE",
		"sales.orders",
		"docs/orders.md",
		"sql=ok (1 in 8ms)",
		"doc=ok (1 in 5ms)",
		"SQL rows (page 1/1):",
		"alpha",
		"(2 rows, page 1/1 of 2 total)",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestFormatter_FormatResponseTableNoResults(t *testing.T) {
	resp := sampleResponse()
	resp.Results = nil
	resp.SQL = nil
	var buf bytes.Buffer

	if err := NewFormatter().FormatResponse(&buf, resp, FormatTable); err != nil {
		t.Fatalf("FormatResponse() error = %v", err)
	}

	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("Expected empty-results marker, got:\n%s", buf.String())
	}
}

func TestFormatter_FormatResponseLong(t *testing.T) {
	var buf bytes.Buffer

	if err := NewFormatter().FormatResponse(&buf, sampleResponse(), FormatLong); err != nil {
		t.Fatalf("FormatResponse() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"Query: recent orders",
		"Request: req-42",
		"1. sales.orders  (sql, score 1.00)",
		"   Origin: fedsearch:qcache:sales:ab12",
		"   Columns: id, name",
		"2. docs/orders.md  (doc, score 1.00)",
		"Generated SQL: SELECT id, name FROM orders LIMIT 100",
		"Generation: rule_based (confidence 0.70, cached false)",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestFormatter_FormatResponseJSON(t *testing.T) {
	var buf bytes.Buffer

	if err := NewFormatter().FormatResponse(&buf, sampleResponse(), FormatJSON); err != nil {
		t.Fatalf("FormatResponse() error = %v", err)
	}

	var decoded search.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if decoded.RequestID != "req-42" {
		t.Errorf("Expected request id req-42, got %q", decoded.RequestID)
	}
	if len(decoded.Results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(decoded.Results))
	}
}

func TestFormatter_sourcesLine(t *testing.T) {
	f := NewFormatter()

	tests := []struct {
		name     string
		sources  map[string]search.SourceStatus
		expected string
	}{
		{
			name:     "empty",
			sources:  nil,
			expected: "-",
		},
		{
			name: "sql before doc",
			sources: map[string]search.SourceStatus{
				search.SourceDoc: {Status: search.StatusOK, Count: 3, LatencyMS: 4},
				search.SourceSQL: {Status: search.StatusOK, Count: 1, LatencyMS: 9},
			},
			expected: "sql=ok (1 in 9ms), doc=ok (3 in 4ms)",
		},
		{
			name: "degraded carries reason",
			sources: map[string]search.SourceStatus{
				search.SourceSQL: {Status: search.StatusDegraded, Reason: "no connection selected"},
			},
			expected: "sql=degraded (no connection selected)",
		},
		{
			name: "skipped is bare",
			sources: map[string]search.SourceStatus{
				search.SourceDoc: {Status: search.StatusSkipped, Reason: "not requested"},
			},
			expected: "doc=skipped",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.sourcesLine(tt.sources); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFormatter_FormatPageEmpty(t *testing.T) {
	var buf bytes.Buffer

	if err := NewFormatter().FormatPage(&buf, &cache.Page{}); err != nil {
		t.Fatalf("FormatPage() error = %v", err)
	}

	if !strings.Contains(buf.String(), "(0 rows)") {
		t.Errorf("Expected zero-row marker, got %q", buf.String())
	}
}

func TestFormatter_FormatEntry(t *testing.T) {
	entry := &cache.Entry{
		Key:          "fedsearch:qcache:sales:ab12",
		ConnectionID: "sales",
		SQL:          "select * from orders limit 100",
		RowCount:     250,
		PageSize:     100,
		PageCount:    3,
		SizeBytes:    2048,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
	}
	var buf bytes.Buffer

	if err := NewFormatter().FormatEntry(&buf, entry); err != nil {
		t.Fatalf("FormatEntry() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"Key: fedsearch:qcache:sales:ab12",
		"Connection: sales",
		"Rows: 250 in 3 pages (page size 100)",
		"Size: 2.0 KB",
		"Expires: 2026-09-01T00:00:00Z",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestFormatter_FormatGenerated(t *testing.T) {
	gq := &sqlgen.GeneratedQuery{
		SQLText:    "SELECT count(*) FROM orders LIMIT 100",
		Method:     sqlgen.MethodLLM,
		Verdict:    sqlgen.VerdictRejected,
		Confidence: 0.8,
		Tables:     []string{"orders"},
		Reason:     "unknown column orders.total_amt",
	}
	var buf bytes.Buffer

	if err := NewFormatter().FormatGenerated(&buf, gq, FormatLong); err != nil {
		t.Fatalf("FormatGenerated() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"SQL: SELECT count(*) FROM orders LIMIT 100",
		"Method: llm",
		"Verdict: REJECTED",
		"Confidence: 0.80",
		"Tables: orders",
		"Reason: unknown column orders.total_amt",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestFormatter_FormatSnapshot(t *testing.T) {
	snap := types.SchemaSnapshot{
		ConnectionID: "sales",
		Tables: []types.TableDescriptor{
			{
				Name:        "orders",
				RowEstimate: 1500,
				Columns: []types.ColumnDescriptor{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "total", Type: "DECIMAL"},
				},
			},
		},
		Errors:      []types.TableError{{Table: "audit", Reason: "permission denied"}},
		Fingerprint: "fp-1",
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := NewFormatter().FormatSnapshot(&buf, snap, FormatTable); err != nil {
			t.Fatalf("FormatSnapshot() error = %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Connection: sales", "orders", "1500", "warning: table audit: permission denied"} {
			if !strings.Contains(output, want) {
				t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
			}
		}
	})

	t.Run("long", func(t *testing.T) {
		var buf bytes.Buffer
		if err := NewFormatter().FormatSnapshot(&buf, snap, FormatLong); err != nil {
			t.Fatalf("FormatSnapshot() error = %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Fingerprint: fp-1", "  id INTEGER (primary key)", "  total DECIMAL"} {
			if !strings.Contains(output, want) {
				t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
			}
		}
	})
}

func TestFormatter_FormatStats(t *testing.T) {
	stats := search.SystemStats{
		Connections: search.ConnectionStats{Configured: 2, IDs: []string{"hr", "sales"}},
		Schemas: []search.SchemaStat{
			{ConnectionID: "sales", Tables: 4, IndexedAt: time.Now().UTC()},
		},
		Cache: cache.Stats{
			Store:        "memory",
			TotalEntries: 5,
			TotalSize:    1 << 20,
			Hits:         10,
			Misses:       5,
			HitRate:      10.0 / 15.0,
			Productions:  5,
			Evictions:    1,
		},
		Documents: search.DocumentStats{Collection: "documents", Healthy: true},
		LLM:       search.ModelStats{Backend: "disabled"},
	}
	var buf bytes.Buffer

	if err := NewFormatter().FormatStats(&buf, stats, FormatLong); err != nil {
		t.Fatalf("FormatStats() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"Connections: 2 configured",
		"  hr, sales",
		"  sales: 4 tables, indexed today",
		"Cache (memory): 5 entries, 1.0 MB",
		"hits 10, misses 5 (67% hit rate), productions 5, evictions 1",
		"Documents: collection documents (healthy)",
		"LLM: disabled (model -)",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}
}

func TestFormatter_FormatCacheStats(t *testing.T) {
	stats := cache.Stats{
		Store:        "memory",
		TotalEntries: 3,
		TotalSize:    2048,
		Hits:         8,
		Misses:       2,
		HitRate:      0.8,
		MissRate:     0.2,
		Productions:  2,
		Evictions:    1,
	}
	var buf bytes.Buffer

	if err := NewFormatter().FormatCacheStats(&buf, stats, FormatTable); err != nil {
		t.Fatalf("FormatCacheStats() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"Store: memory",
		"Entries: 3 (2.0 KB)",
		"Hits: 8",
		"Misses: 2",
		"Hit rate: 80%",
		"Productions: 2",
		"Evictions: 1",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}

	buf.Reset()
	if err := NewFormatter().FormatCacheStats(&buf, stats, FormatJSON); err != nil {
		t.Fatalf("FormatCacheStats() error = %v", err)
	}
	var decoded cache.Stats
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to unmarshal JSON output: %v", err)
	}
	if decoded.Hits != 8 || decoded.Store != "memory" {
		t.Errorf("JSON output = %+v, want hits 8 store memory", decoded)
	}
}

func TestFormatter_FormatConnections(t *testing.T) {
	rows := []ConnectionRow{
		{ID: "sales", Dialect: "duckdb", Target: "/data/sales.duckdb"},
		{ID: "hr", Dialect: "postgres", Target: "db.internal:5432/hr"},
	}
	var buf bytes.Buffer

	if err := NewFormatter().FormatConnections(&buf, rows, FormatTable); err != nil {
		t.Fatalf("FormatConnections() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"ID", "DIALECT", "sales", "postgres"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, but got:\n%s", want, output)
		}
	}

	buf.Reset()
	if err := NewFormatter().FormatConnections(&buf, nil, FormatTable); err != nil {
		t.Fatalf("FormatConnections() error = %v", err)
	}
	if !strings.Contains(buf.String(), "(no connections configured)") {
		t.Errorf("Expected empty marker, got %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw      string
		expected OutputFormat
		wantErr  bool
	}{
		{raw: "", expected: FormatTable},
		{raw: "table", expected: FormatTable},
		{raw: "LONG", expected: FormatLong},
		{raw: "json", expected: FormatJSON},
		{raw: "yaml", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q) error = %v", tt.raw, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseFormat(%q) = %q, expected %q", tt.raw, got, tt.expected)
		}
	}
}

func TestFormatter_humanizeAge(t *testing.T) {
	f := NewFormatter()

	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{name: "zero time", input: time.Time{}, expected: "?"},
		{name: "today", input: time.Now().Add(-2 * time.Hour), expected: "today"},
		{name: "one day", input: time.Now().Add(-36 * time.Hour), expected: "1 day ago"},
		{name: "days", input: time.Now().Add(-10 * 24 * time.Hour), expected: "10 days ago"},
		{name: "one month", input: time.Now().Add(-45 * 24 * time.Hour), expected: "1 month ago"},
		{name: "months", input: time.Now().Add(-100 * 24 * time.Hour), expected: "3 months ago"},
		{name: "one year", input: time.Now().Add(-400 * 24 * time.Hour), expected: "1 year ago"},
		{name: "years", input: time.Now().Add(-800 * 24 * time.Hour), expected: "2 years ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.humanizeAge(tt.input); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		limit    int
		expected string
	}{
		{input: "short", limit: 10, expected: "short"},
		{input: "exactly-10", limit: 10, expected: "exactly-10"},
		{input: "this one is definitely too long", limit: 10, expected: "this on..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.limit); got != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q", tt.input, tt.limit, got, tt.expected)
		}
	}
}

func TestCellValue(t *testing.T) {
	tests := []struct {
		input    any
		expected string
	}{
		{input: nil, expected: "NULL"},
		{input: float64(7), expected: "7"},
		{input: 2.5, expected: "2.5"},
		{input: "text", expected: "text"},
	}
	for _, tt := range tests {
		if got := cellValue(tt.input); got != tt.expected {
			t.Errorf("cellValue(%v) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{input: 512, expected: "512 B"},
		{input: 2048, expected: "2.0 KB"},
		{input: 5 << 20, expected: "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.input); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
