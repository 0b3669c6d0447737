package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/fedsearch/fedsearch/internal/config"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/metrics"
	"github.com/fedsearch/fedsearch/internal/types"
)

const keyHashLen = 16

// pageKeyPattern distinguishes page keys from entry keys. Entry keys end in
// a hex digest so the suffix cannot collide.
var pageKeyPattern = regexp.MustCompile(`:p\d+$`)

// Producer materializes a result set on a cache miss. It runs at most once
// per key across all concurrent callers.
type Producer func(ctx context.Context) (*types.RowSet, error)

// Request names the statement a caller wants served from cache. TTL and
// PageSize fall back to manager defaults when zero.
type Request struct {
	ConnectionID string
	SQL          string
	Params       []any
	TTL          time.Duration
	PageSize     int
}

// Entry is the stored metadata for one cached result set. Row data lives in
// separate per-page records keyed off Entry.Key.
type Entry struct {
	Key          string    `json:"key"`
	ConnectionID string    `json:"connection_id"`
	SQL          string    `json:"sql"`
	Columns      []string  `json:"columns"`
	RowCount     int       `json:"row_count"`
	PageSize     int       `json:"page_size"`
	PageCount    int       `json:"page_count"`
	Truncated    bool      `json:"truncated"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Page is one window of a cached result set.
type Page struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	PageNumber int      `json:"page_number"`
	PageSize   int      `json:"page_size"`
	TotalRows  int      `json:"total_rows"`
	TotalPages int      `json:"total_pages"`
	HasNext    bool     `json:"has_next"`
	HasPrev    bool     `json:"has_prev"`
	Truncated  bool     `json:"truncated"`
}

// Stats is a point-in-time summary of cache effectiveness.
type Stats struct {
	TotalEntries int     `json:"total_entries"`
	TotalSize    int64   `json:"total_size"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hit_rate"`
	MissRate     float64 `json:"miss_rate"`
	Productions  int64   `json:"productions"`
	Evictions    int64   `json:"evictions"`
	Store        string  `json:"store"`
}

// Manager is the read-through cache for query results. Concurrent misses on
// one key share a single production via singleflight; the store only ever
// sees fully produced entries.
type Manager struct {
	store      Store
	storeName  string
	group      singleflight.Group
	prefix     string
	defaultTTL time.Duration
	pageSize   int

	hits        atomic.Int64
	misses      atomic.Int64
	productions atomic.Int64

	closeOnce sync.Once
}

// New builds a manager with the store named by cfg.Store.
func New(cfg config.CacheConfig) (*Manager, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewManager(store, cfg), nil
}

// NewManager wraps an existing store, for callers that construct their own.
func NewManager(store Store, cfg config.CacheConfig) *Manager {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	m := &Manager{
		store:      store,
		storeName:  cfg.Store,
		prefix:     cfg.KeyPrefix,
		defaultTTL: cfg.TTLDuration(),
		pageSize:   pageSize,
	}
	switch store.(type) {
	case *MemoryStore:
		m.storeName = "memory"
	case *RedisStore:
		m.storeName = "redis"
	}
	return m
}

func newStore(cfg config.CacheConfig) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(int64(cfg.MaxSizeMB)<<20, cfg.CleanupFreqDuration()), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		return NewRedisStore(client, cfg.KeyPrefix), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrTypeConfig, "unknown cache store %q", cfg.Store)
	}
}

// Key derives the deterministic cache key for a statement on a connection.
// SQL text is normalized first so formatting differences share one entry.
func (m *Manager) Key(connectionID, sqlText string, params []any) string {
	payload, _ := json.Marshal(struct {
		Query    string `json:"query"`
		Database string `json:"database"`
		Params   []any  `json:"params"`
	}{normalizeSQL(sqlText), connectionID, params})
	sum := sha256.Sum256(payload)
	return m.prefix + connectionID + ":" + hex.EncodeToString(sum[:])[:keyHashLen]
}

// Get returns the entry metadata for key, or an ErrTypeCacheMiss error.
func (m *Manager) Get(ctx context.Context, key string) (*Entry, error) {
	entry, err := m.lookup(ctx, key)
	if err != nil {
		if apperrors.IsCacheMiss(err) {
			m.misses.Add(1)
			metrics.IncrementCacheMiss()
		}
		return nil, err
	}
	m.hits.Add(1)
	metrics.IncrementCacheHit()
	return entry, nil
}

// GetOrProduce returns the cached entry for the request, running producer to
// materialize it on a miss. Concurrent callers for one key share a single
// producer execution and all receive its result or its error. A caller whose
// context expires while waiting gets the context error; production continues
// detached and the entry still lands in the store for future readers.
func (m *Manager) GetOrProduce(ctx context.Context, req Request, producer Producer) (*Entry, error) {
	key := m.Key(req.ConnectionID, req.SQL, req.Params)

	entry, err := m.lookup(ctx, key)
	if err == nil {
		m.hits.Add(1)
		metrics.IncrementCacheHit()
		return entry, nil
	}
	if !apperrors.IsCacheMiss(err) {
		logging.Warn("cache read failed, treating as miss", "key", key, "error", err)
	}
	m.misses.Add(1)
	metrics.IncrementCacheMiss()

	ch := m.group.DoChan(key, func() (any, error) {
		// Detached from the triggering caller so one caller's timeout
		// cannot abort a result other waiters will share.
		return m.produce(context.WithoutCancel(ctx), key, req, producer)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrTypeTimeout, "awaiting shared cache production")
	}
}

// Page returns one window of the cached result for key. A pageSize of zero
// serves the layout chosen at write time; any other size is served by
// deserializing only the stored pages that overlap the requested window.
func (m *Manager) Page(ctx context.Context, key string, pageNumber, pageSize int) (*Page, error) {
	entry, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if pageNumber < 1 {
		return nil, apperrors.Newf(apperrors.ErrTypeValidation, "page number %d out of range", pageNumber)
	}
	if pageSize <= 0 || pageSize == entry.PageSize {
		return m.storedPage(ctx, entry, pageNumber)
	}
	return m.reslicedPage(ctx, entry, pageNumber, pageSize)
}

// Invalidate removes one cached result and its pages, reporting whether an
// entry was actually present.
func (m *Manager) Invalidate(ctx context.Context, key string) (int, error) {
	return m.invalidatePrefix(ctx, key)
}

// InvalidateConnection removes every cached result for one connection and
// reports how many result sets were dropped.
func (m *Manager) InvalidateConnection(ctx context.Context, connectionID string) (int, error) {
	return m.invalidatePrefix(ctx, m.prefix+connectionID+":")
}

// InvalidateAll clears the whole cache namespace.
func (m *Manager) InvalidateAll(ctx context.Context) (int, error) {
	return m.invalidatePrefix(ctx, m.prefix)
}

// Stats reports counters and store usage. Usage numbers also refresh the
// Prometheus gauges.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	keys, err := m.store.Keys(ctx, m.prefix)
	if err != nil {
		return Stats{}, err
	}
	size, err := m.store.TotalSize(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalSize:   size,
		Hits:        m.hits.Load(),
		Misses:      m.misses.Load(),
		Productions: m.productions.Load(),
		Store:       m.storeName,
	}
	for _, key := range keys {
		if !pageKeyPattern.MatchString(key) {
			stats.TotalEntries++
		}
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
		stats.MissRate = float64(stats.Misses) / float64(total)
	}
	if counter, ok := m.store.(evictionCounter); ok {
		stats.Evictions = counter.Evictions()
	}
	metrics.SetCacheUsage(stats.TotalEntries, stats.TotalSize)
	return stats, nil
}

// Close releases the store. Safe to call more than once.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.store.Close()
	})
	return err
}

func (m *Manager) lookup(ctx context.Context, key string) (*Entry, error) {
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeInternal, "decode cache entry")
	}
	return &entry, nil
}

func (m *Manager) produce(ctx context.Context, key string, req Request, producer Producer) (*Entry, error) {
	// A production finishing between our miss and this call may already
	// have stored the entry.
	if entry, err := m.lookup(ctx, key); err == nil {
		return entry, nil
	}

	start := time.Now()
	rows, err := producer(ctx)
	if err != nil {
		return nil, err
	}
	m.productions.Add(1)
	metrics.ObserveCacheProduction(time.Since(start))

	entry, pages, err := m.paginate(key, req, rows)
	if err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	entry.CreatedAt = time.Now().UTC()
	if ttl > 0 {
		entry.ExpiresAt = entry.CreatedAt.Add(ttl)
	}

	metaJSON, err := json.Marshal(entry)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeInternal, "encode cache entry")
	}

	// Pages first, metadata last, so a reader that sees the entry can
	// always resolve its pages.
	for i, data := range pages {
		if err := m.store.Set(ctx, pageKey(key, i+1), data, ttl); err != nil {
			return nil, err
		}
	}
	if err := m.store.Set(ctx, key, metaJSON, ttl); err != nil {
		return nil, err
	}
	return entry, nil
}

func (m *Manager) paginate(key string, req Request, rows *types.RowSet) (*Entry, [][]byte, error) {
	if rows == nil {
		rows = &types.RowSet{}
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = m.pageSize
	}

	total := len(rows.Rows)
	pageCount := (total + pageSize - 1) / pageSize
	if pageCount == 0 {
		// Empty results keep one empty page so page 1 always resolves.
		pageCount = 1
	}

	pages := make([][]byte, 0, pageCount)
	var size int64
	for i := 0; i < pageCount; i++ {
		start := i * pageSize
		end := start + pageSize
		if start > total {
			start = total
		}
		if end > total {
			end = total
		}
		data, err := json.Marshal(rows.Rows[start:end])
		if err != nil {
			return nil, nil, apperrors.Wrap(err, apperrors.ErrTypeInternal, "encode cache page")
		}
		pages = append(pages, data)
		size += int64(len(data))
	}

	entry := &Entry{
		Key:          key,
		ConnectionID: req.ConnectionID,
		SQL:          req.SQL,
		Columns:      rows.Columns,
		RowCount:     total,
		PageSize:     pageSize,
		PageCount:    pageCount,
		Truncated:    rows.Truncated,
		SizeBytes:    size,
	}
	return entry, pages, nil
}

func (m *Manager) storedPage(ctx context.Context, entry *Entry, pageNumber int) (*Page, error) {
	if pageNumber > entry.PageCount {
		return nil, apperrors.Newf(apperrors.ErrTypeValidation,
			"page %d out of range, result has %d pages", pageNumber, entry.PageCount)
	}
	rows, err := m.loadPageRows(ctx, entry.Key, pageNumber)
	if err != nil {
		return nil, err
	}
	return buildPage(entry, pageNumber, entry.PageSize, rows), nil
}

// reslicedPage serves a window that differs from the write-time layout by
// loading only the stored pages it overlaps.
func (m *Manager) reslicedPage(ctx context.Context, entry *Entry, pageNumber, pageSize int) (*Page, error) {
	totalPages := pageCountFor(entry.RowCount, pageSize)
	if pageNumber > totalPages {
		return nil, apperrors.Newf(apperrors.ErrTypeValidation,
			"page %d out of range, result has %d pages", pageNumber, totalPages)
	}

	start := (pageNumber - 1) * pageSize
	end := start + pageSize
	if end > entry.RowCount {
		end = entry.RowCount
	}
	if start >= end {
		return buildPage(entry, pageNumber, pageSize, nil), nil
	}

	firstStored := start/entry.PageSize + 1
	lastStored := (end-1)/entry.PageSize + 1

	var rows [][]any
	for n := firstStored; n <= lastStored; n++ {
		pageRows, err := m.loadPageRows(ctx, entry.Key, n)
		if err != nil {
			return nil, err
		}
		rows = append(rows, pageRows...)
	}

	offset := start - (firstStored-1)*entry.PageSize
	return buildPage(entry, pageNumber, pageSize, rows[offset:offset+(end-start)]), nil
}

func (m *Manager) loadPageRows(ctx context.Context, key string, pageNumber int) ([][]any, error) {
	data, err := m.store.Get(ctx, pageKey(key, pageNumber))
	if err != nil {
		return nil, err
	}
	var rows [][]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeInternal, "decode cache page")
	}
	return rows, nil
}

func (m *Manager) invalidatePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := m.store.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	entries := 0
	for _, key := range keys {
		if !pageKeyPattern.MatchString(key) {
			entries++
		}
	}
	if _, err := m.store.DeleteByPrefix(ctx, prefix); err != nil {
		return 0, err
	}
	return entries, nil
}

func buildPage(entry *Entry, pageNumber, pageSize int, rows [][]any) *Page {
	return &Page{
		Columns:    entry.Columns,
		Rows:       rows,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalRows:  entry.RowCount,
		TotalPages: pageCountFor(entry.RowCount, pageSize),
		HasNext:    pageNumber < pageCountFor(entry.RowCount, pageSize),
		HasPrev:    pageNumber > 1,
		Truncated:  entry.Truncated,
	}
}

func pageCountFor(rowCount, pageSize int) int {
	pages := (rowCount + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	return pages
}

func pageKey(key string, pageNumber int) string {
	return key + ":p" + strconv.Itoa(pageNumber)
}

func normalizeSQL(sqlText string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(sqlText), ";")
	return strings.Join(strings.Fields(strings.ToLower(trimmed)), " ")
}
