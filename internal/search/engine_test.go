package search

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedsearch/fedsearch/internal/cache"
	"github.com/fedsearch/fedsearch/internal/config"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/types"
)

func testEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Connections: config.ConnectionsConfig{
			File:            filepath.Join(t.TempDir(), "connections.json"),
			DefaultRowLimit: 100,
		},
		Schema: config.SchemaConfig{TTL: "1h", TopK: 3},
		Cache: config.CacheConfig{
			Store:      "memory",
			MaxSizeMB:  8,
			DefaultTTL: "1h",
			PageSize:   10,
			KeyPrefix:  "fedsearch:qcache:",
		},
		Search:    testSearchConfig(),
		LLM:       config.LLMConfig{Model: "llama3.2"},
		Embedding: config.EmbeddingConfig{Provider: "disabled"},
		Vector:    config.VectorConfig{Collection: "documents"},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(testEngineConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func seedEntry(t *testing.T, m *cache.Manager, connectionID, sqlText string, rows int) *cache.Entry {
	t.Helper()
	entry, err := m.GetOrProduce(context.Background(), cache.Request{
		ConnectionID: connectionID,
		SQL:          sqlText,
	}, func(ctx context.Context) (*types.RowSet, error) {
		return sampleRowSet(rows), nil
	})
	require.NoError(t, err)
	return entry
}

func TestNewEngineStartsWithEmptyRegistry(t *testing.T) {
	engine := newTestEngine(t)

	stats, err := engine.Stats(context.Background())

	require.NoError(t, err)
	assert.Zero(t, stats.Connections.Configured)
	assert.Empty(t, stats.Schemas)
	assert.Equal(t, "memory", stats.Cache.Store)
	assert.Equal(t, "documents", stats.Documents.Collection)
	assert.False(t, stats.Documents.Healthy)
	assert.Equal(t, "disabled", stats.LLM.Backend)
	assert.Equal(t, "llama3.2", stats.LLM.Model)
}

func TestEngineSearchDefaultsToBothPaths(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.Search(context.Background(), "recent orders", Options{})

	require.NoError(t, err)
	// Neither path was requested explicitly, so both must have run.
	assert.Equal(t, StatusDegraded, resp.Sources[SourceSQL].Status)
	assert.Equal(t, "no connection selected", resp.Sources[SourceSQL].Reason)
	assert.Equal(t, StatusDegraded, resp.Sources[SourceDoc].Status)
	assert.Equal(t, "embedding provider disabled", resp.Sources[SourceDoc].Reason)
}

func TestEngineExecuteSQLRejectsUnknownConnection(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.ExecuteSQL(context.Background(), "missing", "SELECT 1")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
}

func TestEngineInvalidateCacheTargets(t *testing.T) {
	cfg := testEngineConfig(t)
	store, err := cache.New(cfg.Cache)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := &Engine{cfg: cfg, cache: store}
	ctx := context.Background()

	salesOrders := seedEntry(t, store, "sales", "SELECT * FROM orders", 2)
	seedEntry(t, store, "sales", "SELECT * FROM refunds", 2)
	seedEntry(t, store, "hr", "SELECT * FROM people", 2)

	removed, err := engine.InvalidateCache(ctx, salesOrders.Key)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "a full cache key drops exactly that entry")

	removed, err = engine.InvalidateCache(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "remaining sales entry drops by connection")

	removed, err = engine.InvalidateCache(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "hr entry drops with the full flush")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
}

type captureExporter struct {
	format string
	resp   *SearchResponse
}

func (c *captureExporter) WriteResponse(w io.Writer, resp *SearchResponse, format string) error {
	c.format = format
	c.resp = resp
	_, err := w.Write([]byte("exported"))
	return err
}

func TestEngineExport(t *testing.T) {
	resp := &SearchResponse{RequestID: "r-1", Query: "q"}

	t.Run("no exporter configured", func(t *testing.T) {
		engine := &Engine{}

		err := engine.Export(&bytes.Buffer{}, resp, "csv")

		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnavailable))
	})

	t.Run("delegates to exporter", func(t *testing.T) {
		exporter := &captureExporter{}
		engine := &Engine{exporter: exporter}
		var buf bytes.Buffer

		err := engine.Export(&buf, resp, "csv")

		require.NoError(t, err)
		assert.Equal(t, "csv", exporter.format)
		assert.Same(t, resp, exporter.resp)
		assert.Equal(t, "exported", buf.String())
	})
}
