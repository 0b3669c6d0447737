// Package search coordinates federated queries across the relational and
// document tiers. A Coordinator fans one natural-language query out to the
// SQL path (generate, validate, cached execute) and the vector path (embed,
// nearest-neighbor query) concurrently, then fuses both result lists into a
// single deterministic order. The Engine facade bundles the coordinator with
// the rest of the system for hosting layers.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fedsearch/fedsearch/internal/cache"
	"github.com/fedsearch/fedsearch/internal/config"
	"github.com/fedsearch/fedsearch/internal/embedding"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/metrics"
	"github.com/fedsearch/fedsearch/internal/sqlgen"
	"github.com/fedsearch/fedsearch/internal/types"
	"github.com/fedsearch/fedsearch/internal/vector"
)

// Source names for results and per-source statuses.
const (
	SourceSQL = "sql"
	SourceDoc = "doc"
)

// Terminal states a search path can report.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
	StatusTimeout  = "timeout"
	StatusSkipped  = "skipped"
)

// Options control one Search invocation. Zero values fall back to the
// coordinator's configured defaults.
type Options struct {
	ConnectionID string
	SearchSQL    bool
	SearchDocs   bool
	TopK         int
	Timeout      time.Duration
	SQLTimeout   time.Duration
	DocTimeout   time.Duration
	PageSize     int
	// CacheTTL overrides the cache's default TTL for results produced by
	// this search, typically from the connection descriptor.
	CacheTTL time.Duration
}

// Result is one fused search hit. RawScore keeps the path's native scale;
// NormalizedScore is the per-path min-max mapping used for ordering.
type Result struct {
	Source          string         `json:"source"`
	OriginID        string         `json:"origin_id"`
	Title           string         `json:"title,omitempty"`
	Snippet         string         `json:"snippet,omitempty"`
	RawScore        float64        `json:"raw_score"`
	NormalizedScore float64        `json:"normalized_score"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// SourceStatus reports how one path ended. Reason is set for every non-ok
// state.
type SourceStatus struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Count     int    `json:"count"`
}

// SQLResult carries the relational path's artifacts: the generated query,
// the cache entry it resolved to and the first page of rows.
type SQLResult struct {
	Generated *sqlgen.GeneratedQuery `json:"generated,omitempty"`
	Entry     *cache.Entry           `json:"entry,omitempty"`
	Page      *cache.Page            `json:"page,omitempty"`
	FromCache bool                   `json:"from_cache"`
}

// SearchResponse is the fused output of one invocation. Every requested
// source reports a status; a failed path never silently disappears.
type SearchResponse struct {
	RequestID string                  `json:"request_id"`
	Query     string                  `json:"query"`
	Results   []Result                `json:"results"`
	Sources   map[string]SourceStatus `json:"sources"`
	SQL       *SQLResult              `json:"sql,omitempty"`
	TookMS    int64                   `json:"took_ms"`
}

type pathOutcome struct {
	source  string
	results []Result
	status  SourceStatus
	sql     *SQLResult
}

// Collaborator surfaces the coordinator needs, kept narrow so tests can
// substitute fakes.
type sqlGenerator interface {
	Generate(ctx context.Context, nlQuery, connectionID string) (*sqlgen.GeneratedQuery, error)
}

type statementExecutor interface {
	Execute(ctx context.Context, connectionID, sqlText string, params []any, rowLimit int) (*types.RowSet, error)
}

type resultCache interface {
	GetOrProduce(ctx context.Context, req cache.Request, producer cache.Producer) (*cache.Entry, error)
	Page(ctx context.Context, key string, pageNumber, pageSize int) (*cache.Page, error)
}

// Coordinator runs the two search paths and fuses their results.
type Coordinator struct {
	generator sqlGenerator
	executor  statementExecutor
	cache     resultCache
	embedder  embedding.Provider
	docs      vector.Store
	cfg       config.SearchConfig
	priority  []string
}

func NewCoordinator(
	generator sqlGenerator,
	executor statementExecutor,
	store resultCache,
	embedder embedding.Provider,
	docs vector.Store,
	cfg config.SearchConfig,
) *Coordinator {
	priority := cfg.SourcePriorityList()
	if len(priority) == 0 {
		priority = []string{SourceSQL, SourceDoc}
	}
	return &Coordinator{
		generator: generator,
		executor:  executor,
		cache:     store,
		embedder:  embedder,
		docs:      docs,
		cfg:       cfg,
		priority:  priority,
	}
}

// Search fans the query out to the requested paths and waits until both
// reach a terminal state or the global budget elapses. Path failures and
// timeouts surface as per-source statuses, never as a Search error.
func (c *Coordinator) Search(ctx context.Context, nlQuery string, opts Options) (*SearchResponse, error) {
	if nlQuery == "" {
		return nil, apperrors.New(apperrors.ErrTypeValidation, "query text is empty")
	}
	opts = c.withDefaults(opts)

	requestID := uuid.NewString()
	log := logging.With("request_id", requestID, "connection", opts.ConnectionID)
	log.Debug("search started", "query", nlQuery,
		"sql", opts.SearchSQL, "docs", opts.SearchDocs, "timeout", opts.Timeout.String())

	resp := &SearchResponse{
		RequestID: requestID,
		Query:     nlQuery,
		Sources:   make(map[string]SourceStatus, 2),
	}

	start := time.Now()

	// Each path owns a buffered slot so it can finish and exit even after
	// the coordinator has stopped listening.
	sqlCh := make(chan pathOutcome, 1)
	docCh := make(chan pathOutcome, 1)

	pending := 0
	if opts.SearchSQL {
		pending++
		go c.runSQLPath(ctx, nlQuery, opts, sqlCh)
	} else {
		resp.Sources[SourceSQL] = SourceStatus{Status: StatusSkipped, Reason: "not requested"}
	}
	if opts.SearchDocs {
		pending++
		go c.runDocPath(ctx, nlQuery, opts, docCh)
	} else {
		resp.Sources[SourceDoc] = SourceStatus{Status: StatusSkipped, Reason: "not requested"}
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	var sqlOut, docOut *pathOutcome
	for pending > 0 {
		select {
		case out := <-sqlCh:
			sqlOut = &out
			pending--
		case out := <-docCh:
			docOut = &out
			pending--
		case <-timer.C:
			reason := fmt.Sprintf("global budget %s elapsed", opts.Timeout)
			c.markUndelivered(resp, opts, sqlOut, docOut, reason)
			pending = 0
		case <-ctx.Done():
			reason := fmt.Sprintf("search canceled: %v", ctx.Err())
			c.markUndelivered(resp, opts, sqlOut, docOut, reason)
			pending = 0
		}
	}

	if sqlOut != nil {
		resp.Sources[SourceSQL] = sqlOut.status
		resp.SQL = sqlOut.sql
	}
	if docOut != nil {
		resp.Sources[SourceDoc] = docOut.status
	}

	var sqlResults, docResults []Result
	if sqlOut != nil {
		sqlResults = sqlOut.results
	}
	if docOut != nil {
		docResults = docOut.results
	}
	normalizeScores(sqlResults)
	normalizeScores(docResults)
	resp.Results = fuse(c.priority, sqlResults, docResults)
	resp.TookMS = time.Since(start).Milliseconds()

	status := responseStatus(resp)
	metrics.ObserveSearch(status)
	log.Info("search completed", "status", status,
		"results", len(resp.Results), "took_ms", resp.TookMS)
	return resp, nil
}

// markUndelivered records a timeout status for every requested path that has
// not reached the coordinator yet. Productions already underway continue in
// the background for other waiters.
func (c *Coordinator) markUndelivered(resp *SearchResponse, opts Options, sqlOut, docOut *pathOutcome, reason string) {
	if opts.SearchSQL && sqlOut == nil {
		resp.Sources[SourceSQL] = SourceStatus{
			Status:    StatusTimeout,
			Reason:    reason,
			LatencyMS: opts.Timeout.Milliseconds(),
		}
	}
	if opts.SearchDocs && docOut == nil {
		resp.Sources[SourceDoc] = SourceStatus{
			Status:    StatusTimeout,
			Reason:    reason,
			LatencyMS: opts.Timeout.Milliseconds(),
		}
	}
}

func (c *Coordinator) withDefaults(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = c.cfg.TopK
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = c.cfg.TimeoutDuration()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SQLTimeout <= 0 {
		opts.SQLTimeout = c.cfg.SQLTimeoutDuration()
	}
	if opts.SQLTimeout <= 0 {
		opts.SQLTimeout = opts.Timeout
	}
	if opts.DocTimeout <= 0 {
		opts.DocTimeout = c.cfg.DocTimeoutDuration()
	}
	if opts.DocTimeout <= 0 {
		opts.DocTimeout = opts.Timeout
	}
	return opts
}

func (c *Coordinator) runSQLPath(ctx context.Context, nlQuery string, opts Options, out chan<- pathOutcome) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, opts.SQLTimeout)
	defer cancel()

	outcome := c.searchSQL(ctx, nlQuery, opts)
	outcome.status.LatencyMS = time.Since(start).Milliseconds()
	if outcome.status.Status == StatusTimeout {
		outcome.status.Reason = fmt.Sprintf("sql budget %s elapsed (%s)", opts.SQLTimeout, outcome.status.Reason)
	}
	metrics.ObserveSearchSource(SourceSQL, outcome.status.Status, time.Since(start))
	out <- outcome
}

func (c *Coordinator) searchSQL(ctx context.Context, nlQuery string, opts Options) pathOutcome {
	outcome := pathOutcome{source: SourceSQL}

	if opts.ConnectionID == "" {
		outcome.status = SourceStatus{Status: StatusDegraded, Reason: "no connection selected"}
		return outcome
	}

	gq, err := c.generator.Generate(ctx, nlQuery, opts.ConnectionID)
	if err != nil {
		outcome.status = failureStatus(err)
		return outcome
	}
	metrics.ObserveSQLGeneration(string(gq.Method), string(gq.Verdict))
	outcome.sql = &SQLResult{Generated: gq}

	if !gq.Accepted() {
		outcome.status = SourceStatus{Status: StatusDegraded, Reason: "sql rejected: " + gq.Reason}
		return outcome
	}

	produced := false
	entry, err := c.cache.GetOrProduce(ctx, cache.Request{
		ConnectionID: opts.ConnectionID,
		SQL:          gq.SQLText,
		TTL:          opts.CacheTTL,
		PageSize:     opts.PageSize,
	}, func(ctx context.Context) (*types.RowSet, error) {
		produced = true
		// The validated statement carries its own row bound.
		return c.executor.Execute(ctx, opts.ConnectionID, gq.SQLText, nil, 0)
	})
	if err != nil {
		outcome.status = failureStatus(err)
		return outcome
	}
	outcome.sql.Entry = entry
	outcome.sql.FromCache = !produced

	page, err := c.cache.Page(ctx, entry.Key, 1, 0)
	if err != nil {
		outcome.status = failureStatus(err)
		return outcome
	}
	outcome.sql.Page = page

	if entry.RowCount == 0 {
		outcome.status = SourceStatus{Status: StatusOK}
		return outcome
	}

	outcome.results = []Result{{
		Source:   SourceSQL,
		OriginID: entry.Key,
		Title:    sqlResultTitle(opts.ConnectionID, gq.Tables),
		Snippet:  rowSetPreview(entry, page),
		RawScore: gq.Confidence,
		Payload: map[string]any{
			"sql":          gq.SQLText,
			"tables":       gq.Tables,
			"method":       string(gq.Method),
			"row_count":    entry.RowCount,
			"column_count": len(entry.Columns),
			"from_cache":   outcome.sql.FromCache,
		},
	}}
	outcome.status = SourceStatus{Status: StatusOK, Count: 1}
	return outcome
}

func (c *Coordinator) runDocPath(ctx context.Context, nlQuery string, opts Options, out chan<- pathOutcome) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, opts.DocTimeout)
	defer cancel()

	outcome := c.searchDocs(ctx, nlQuery, opts)
	outcome.status.LatencyMS = time.Since(start).Milliseconds()
	if outcome.status.Status == StatusTimeout {
		outcome.status.Reason = fmt.Sprintf("doc budget %s elapsed (%s)", opts.DocTimeout, outcome.status.Reason)
	}
	metrics.ObserveSearchSource(SourceDoc, outcome.status.Status, time.Since(start))
	out <- outcome
}

func (c *Coordinator) searchDocs(ctx context.Context, nlQuery string, opts Options) pathOutcome {
	outcome := pathOutcome{source: SourceDoc}

	if c.embedder == nil || !c.embedder.Enabled() {
		outcome.status = SourceStatus{Status: StatusDegraded, Reason: "embedding provider disabled"}
		return outcome
	}
	if c.docs == nil {
		outcome.status = SourceStatus{Status: StatusDegraded, Reason: "vector store not configured"}
		return outcome
	}

	vec, err := c.embedder.Embed(ctx, nlQuery)
	if err != nil {
		outcome.status = failureStatus(err)
		return outcome
	}

	hits, err := c.docs.Query(ctx, vec, opts.TopK, nil)
	if err != nil {
		outcome.status = failureStatus(err)
		return outcome
	}

	outcome.results = make([]Result, 0, len(hits))
	for _, hit := range hits {
		outcome.results = append(outcome.results, docResult(hit))
	}
	outcome.status = SourceStatus{Status: StatusOK, Count: len(outcome.results)}
	return outcome
}

func failureStatus(err error) SourceStatus {
	if errors.Is(err, context.DeadlineExceeded) || apperrors.IsType(err, apperrors.ErrTypeTimeout) {
		return SourceStatus{Status: StatusTimeout, Reason: err.Error()}
	}
	return SourceStatus{Status: StatusFailed, Reason: err.Error()}
}

// responseStatus condenses per-source states for metrics: ok when every
// requested path succeeded, failed when none did, partial otherwise.
func responseStatus(resp *SearchResponse) string {
	requested, succeeded := 0, 0
	for _, status := range resp.Sources {
		if status.Status == StatusSkipped {
			continue
		}
		requested++
		if status.Status == StatusOK {
			succeeded++
		}
	}
	switch {
	case requested == 0:
		return "empty"
	case succeeded == requested:
		return "ok"
	case succeeded == 0:
		return "failed"
	default:
		return "partial"
	}
}

func sqlResultTitle(connectionID string, tables []string) string {
	if len(tables) == 0 {
		return connectionID
	}
	return connectionID + "." + tables[0]
}
