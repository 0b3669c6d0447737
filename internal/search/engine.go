package search

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/fedsearch/fedsearch/internal/cache"
	"github.com/fedsearch/fedsearch/internal/config"
	"github.com/fedsearch/fedsearch/internal/connection"
	"github.com/fedsearch/fedsearch/internal/embedding"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/llm"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/metrics"
	"github.com/fedsearch/fedsearch/internal/schema"
	"github.com/fedsearch/fedsearch/internal/sqlgen"
	"github.com/fedsearch/fedsearch/internal/types"
	"github.com/fedsearch/fedsearch/internal/vector"
)

// ResponseExporter writes a search response in a named format. Declared here
// so the engine can hold one without importing its implementation.
type ResponseExporter interface {
	WriteResponse(w io.Writer, resp *SearchResponse, format string) error
}

// SystemStats summarizes the engine's subsystems for status displays.
type SystemStats struct {
	Connections ConnectionStats `json:"connections"`
	Schemas     []SchemaStat    `json:"schemas"`
	Cache       cache.Stats     `json:"cache"`
	Documents   DocumentStats   `json:"documents"`
	LLM         ModelStats      `json:"llm"`
}

type ConnectionStats struct {
	Configured int      `json:"configured"`
	IDs        []string `json:"ids,omitempty"`
}

type SchemaStat struct {
	ConnectionID string    `json:"connection_id"`
	Tables       int       `json:"tables"`
	IndexedAt    time.Time `json:"indexed_at"`
}

type DocumentStats struct {
	Collection string `json:"collection"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
}

type ModelStats struct {
	Backend string `json:"backend"`
	Model   string `json:"model,omitempty"`
}

// Engine wires the full query stack behind one facade: the connection
// registry and pools, the schema index, SQL generation and validation, the
// result cache, the vector tier and the search coordinator. Hosting layers
// (CLI, HTTP) depend on the Engine only.
type Engine struct {
	cfg       *config.Config
	registry  *connection.Registry
	provider  *connection.SQLProvider
	indexer   *schema.Indexer
	generator *sqlgen.Generator
	validator *sqlgen.Validator
	cache     *cache.Manager
	coord     *Coordinator
	model     llm.Service
	embedder  embedding.Provider
	docs      vector.Store
	exporter  ResponseExporter
}

// NewEngine builds every subsystem from configuration. exporter may be nil;
// Export then reports the engine as unable to serve exports.
func NewEngine(cfg *config.Config, exporter ResponseExporter) (*Engine, error) {
	registry, err := connection.LoadRegistry(cfg.Connections.File)
	if err != nil {
		return nil, err
	}
	provider := connection.NewSQLProvider(registry)

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Timeout:    cfg.Embedding.TimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}

	model := llm.NewService(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.TimeoutDuration(),
		MaxRetries: cfg.LLM.MaxRetries,
	})

	var docs vector.Store
	if cfg.Vector.URL != "" {
		docs = vector.NewQdrantStore(vector.QdrantConfig{
			URL:        cfg.Vector.URL,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Timeout:    cfg.Vector.TimeoutDuration(),
		})
	}

	indexer := schema.NewIndexer(provider, embedder, cfg.Schema.TTLDuration())
	validator := sqlgen.NewValidator(cfg.Connections.DefaultRowLimit)
	generator := sqlgen.NewGenerator(indexer, model, validator, cfg.Schema.TopK)

	store, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		registry:  registry,
		provider:  provider,
		indexer:   indexer,
		generator: generator,
		validator: validator,
		cache:     store,
		coord:     NewCoordinator(generator, provider, store, embedder, docs, cfg.Search),
		model:     model,
		embedder:  embedder,
		docs:      docs,
		exporter:  exporter,
	}, nil
}

// Search runs a federated query. With neither path requested, both run.
func (e *Engine) Search(ctx context.Context, nlQuery string, opts Options) (*SearchResponse, error) {
	if !opts.SearchSQL && !opts.SearchDocs {
		opts.SearchSQL, opts.SearchDocs = true, true
	}
	if opts.ConnectionID != "" && opts.CacheTTL <= 0 {
		if desc, err := e.registry.Get(opts.ConnectionID); err == nil {
			opts.CacheTTL = desc.TTL(0)
		}
	}
	return e.coord.Search(ctx, nlQuery, opts)
}

// GenerateSQL translates a natural-language query without executing it.
func (e *Engine) GenerateSQL(ctx context.Context, nlQuery, connectionID string) (*sqlgen.GeneratedQuery, error) {
	gq, err := e.generator.Generate(ctx, nlQuery, connectionID)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSQLGeneration(string(gq.Method), string(gq.Verdict))
	return gq, nil
}

// ExecuteSQL validates a caller-written statement and runs it through the
// cache. The statement passes the same screen as generated SQL, including
// the implicit row bound.
func (e *Engine) ExecuteSQL(ctx context.Context, connectionID, sqlText string) (*cache.Entry, error) {
	desc, err := e.registry.Get(connectionID)
	if err != nil {
		return nil, err
	}

	if err := e.indexer.EnsureFresh(ctx, connectionID); err != nil {
		logging.Warn("schema refresh failed, validating against cached snapshot",
			"connection", connectionID, "error", err)
	}
	var snap *types.SchemaSnapshot
	if current, ok := e.indexer.Snapshot(connectionID); ok {
		snap = &current
	}

	res := e.validator.Validate(sqlText, snap)
	if res.Verdict != sqlgen.VerdictAccepted {
		return nil, apperrors.New(apperrors.ErrTypeValidation, res.Reason)
	}

	return e.cache.GetOrProduce(ctx, cache.Request{
		ConnectionID: connectionID,
		SQL:          res.SQL,
		TTL:          desc.TTL(0),
	}, func(ctx context.Context) (*types.RowSet, error) {
		return e.provider.Execute(ctx, connectionID, res.SQL, nil, 0)
	})
}

// IndexSchema rebuilds the schema embedding index for one connection.
func (e *Engine) IndexSchema(ctx context.Context, connectionID string) (types.SchemaSnapshot, error) {
	start := time.Now()
	snap, err := e.indexer.Index(ctx, connectionID)
	if err != nil {
		return snap, err
	}
	metrics.ObserveSchemaIndex(time.Since(start))
	return snap, nil
}

// InvalidateCache drops cached results and reports how many result sets were
// removed. target selects the tier: empty or "all" clears everything, a full
// cache key drops one entry, anything else is treated as a connection ID.
func (e *Engine) InvalidateCache(ctx context.Context, target string) (int, error) {
	switch {
	case target == "" || target == "all":
		return e.cache.InvalidateAll(ctx)
	case strings.HasPrefix(target, e.cfg.Cache.KeyPrefix):
		return e.cache.Invalidate(ctx, target)
	default:
		return e.cache.InvalidateConnection(ctx, target)
	}
}

// Page fetches one page of a cached result set.
func (e *Engine) Page(ctx context.Context, key string, pageNumber, pageSize int) (*cache.Page, error) {
	return e.cache.Page(ctx, key, pageNumber, pageSize)
}

// CacheStats reports cache effectiveness counters.
func (e *Engine) CacheStats(ctx context.Context) (cache.Stats, error) {
	return e.cache.Stats(ctx)
}

// Export writes resp to w in the named format.
func (e *Engine) Export(w io.Writer, resp *SearchResponse, format string) error {
	if e.exporter == nil {
		return apperrors.New(apperrors.ErrTypeUnavailable, "no exporter configured")
	}
	return e.exporter.WriteResponse(w, resp, format)
}

// Ping verifies one connection end to end.
func (e *Engine) Ping(ctx context.Context, connectionID string) error {
	return e.provider.Ping(ctx, connectionID)
}

// Registry exposes the connection registry for management commands.
func (e *Engine) Registry() *connection.Registry {
	return e.registry
}

// Stats gathers a snapshot of every subsystem.
func (e *Engine) Stats(ctx context.Context) (SystemStats, error) {
	descriptors := e.registry.List()
	ids := make([]string, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.ID
	}

	snaps := e.indexer.Snapshots()
	schemaStats := make([]SchemaStat, len(snaps))
	for i, snap := range snaps {
		schemaStats[i] = SchemaStat{
			ConnectionID: snap.ConnectionID,
			Tables:       len(snap.Tables),
			IndexedAt:    snap.CreatedAt,
		}
	}

	cacheStats, err := e.cache.Stats(ctx)
	if err != nil {
		return SystemStats{}, err
	}

	docStats := DocumentStats{Collection: e.cfg.Vector.Collection}
	if e.docs != nil {
		if err := e.docs.Healthy(ctx); err != nil {
			docStats.Error = err.Error()
		} else {
			docStats.Healthy = true
		}
	}

	return SystemStats{
		Connections: ConnectionStats{Configured: len(ids), IDs: ids},
		Schemas:     schemaStats,
		Cache:       cacheStats,
		Documents:   docStats,
		LLM:         ModelStats{Backend: e.model.Name(), Model: e.cfg.LLM.Model},
	}, nil
}

// Close releases the cache store and every pooled connection.
func (e *Engine) Close() error {
	cacheErr := e.cache.Close()
	poolErr := e.provider.Close()
	if cacheErr != nil {
		return cacheErr
	}
	return poolErr
}
