package schema

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/fedsearch/fedsearch/internal/connection"
	"github.com/fedsearch/fedsearch/internal/embedding"
	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/types"
)

const defaultTopK = 5

// introspector is the slice of connection.Provider the indexer needs.
type introspector interface {
	Introspect(ctx context.Context, connectionID string) ([]types.TableDescriptor, error)
}

// Indexer introspects connections, embeds one description per table, and
// answers relevance lookups. Re-indexing builds the complete replacement
// first and swaps it in under the write lock, so readers never observe a
// half-built snapshot.
type Indexer struct {
	source   introspector
	embedder embedding.Provider
	ttl      time.Duration

	// now is time.Now unless a test substitutes it.
	now func() time.Time

	mu        sync.RWMutex
	snapshots map[string]*snapshotEntry

	refresh singleflight.Group
}

type snapshotEntry struct {
	snapshot types.SchemaSnapshot
	// vectors maps lowercased table names to their description embeddings.
	vectors map[string][]float32
}

// NewIndexer builds an indexer over the introspection source. ttl bounds
// snapshot age for EnsureFresh.
func NewIndexer(source introspector, embedder embedding.Provider, ttl time.Duration) *Indexer {
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Indexer{
		source:    source,
		embedder:  embedder,
		ttl:       ttl,
		now:       time.Now,
		snapshots: make(map[string]*snapshotEntry),
	}
}

// Index rebuilds the snapshot for one connection. Tables that fail
// introspection or embedding are recorded on the snapshot and skipped;
// only a wholesale introspection failure is returned as an error. When the
// rebuilt structure fingerprints identically to the current snapshot, only
// the timestamp advances and existing embeddings are kept.
func (ix *Indexer) Index(ctx context.Context, connectionID string) (types.SchemaSnapshot, error) {
	tables, err := ix.source.Introspect(ctx, connectionID)

	var tableErrors []types.TableError

	var partial *connection.PartialIntrospectError
	if errors.As(err, &partial) {
		tableErrors = partial.Errors
	} else if err != nil {
		return types.SchemaSnapshot{}, err
	}

	fingerprint := types.FingerprintTables(tables)

	if snap, ok := ix.touchIfUnchanged(connectionID, fingerprint); ok {
		logging.Debug("schema unchanged, refreshed timestamp",
			"connection", connectionID, "fingerprint", fingerprint[:12])
		return snap, nil
	}

	snapshot := types.SchemaSnapshot{
		ConnectionID: connectionID,
		Tables:       make([]types.TableDescriptor, 0, len(tables)),
		Errors:       tableErrors,
		Fingerprint:  fingerprint,
		CreatedAt:    ix.now(),
	}

	vectors := make(map[string][]float32, len(tables))

	for _, td := range tables {
		td.Description = DescribeTable(td)

		if ix.embedder.Enabled() {
			vec, err := ix.embedder.Embed(ctx, td.Description)
			if err != nil {
				snapshot.Errors = append(snapshot.Errors, types.TableError{
					Table:  td.Name,
					Reason: "embedding failed: " + err.Error(),
				})
			} else {
				td.Embedding = vec
				vectors[strings.ToLower(td.Name)] = vec
			}
		}

		snapshot.Tables = append(snapshot.Tables, td)
	}

	ix.mu.Lock()
	ix.snapshots[connectionID] = &snapshotEntry{snapshot: snapshot, vectors: vectors}
	ix.mu.Unlock()

	logging.Info("schema indexed",
		"connection", connectionID,
		"tables", len(snapshot.Tables),
		"errors", len(snapshot.Errors))

	return snapshot, nil
}

// touchIfUnchanged bumps the snapshot timestamp when the fingerprint
// matches, reporting whether it did.
func (ix *Indexer) touchIfUnchanged(connectionID, fingerprint string) (types.SchemaSnapshot, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entry, ok := ix.snapshots[connectionID]
	if !ok || entry.snapshot.Fingerprint != fingerprint {
		return types.SchemaSnapshot{}, false
	}

	entry.snapshot.CreatedAt = ix.now()

	return entry.snapshot, true
}

// Snapshot returns the current snapshot for a connection, if one exists.
func (ix *Indexer) Snapshot(connectionID string) (types.SchemaSnapshot, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entry, ok := ix.snapshots[connectionID]
	if !ok {
		return types.SchemaSnapshot{}, false
	}

	return entry.snapshot, true
}

// Snapshots returns every indexed snapshot, sorted by connection ID.
func (ix *Indexer) Snapshots() []types.SchemaSnapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]types.SchemaSnapshot, 0, len(ix.snapshots))
	for _, entry := range ix.snapshots {
		out = append(out, entry.snapshot)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })

	return out
}

// EnsureFresh re-indexes the connection when its snapshot is missing or
// older than the TTL. Concurrent callers share one refresh per connection;
// readers keep the stale snapshot until the new one swaps in.
func (ix *Indexer) EnsureFresh(ctx context.Context, connectionID string) error {
	if ix.fresh(connectionID) {
		return nil
	}

	_, err, _ := ix.refresh.Do(connectionID, func() (any, error) {
		// A queued caller may arrive after the winner already refreshed.
		if ix.fresh(connectionID) {
			return nil, nil
		}

		_, err := ix.Index(ctx, connectionID)

		return nil, err
	})

	return err
}

func (ix *Indexer) fresh(connectionID string) bool {
	snap, ok := ix.Snapshot(connectionID)

	return ok && ix.now().Sub(snap.CreatedAt) < ix.ttl
}

// FindRelevantTables ranks the connection's tables against the query and
// returns the topK best. With embeddings enabled the ranking is cosine
// similarity between the query embedding and each table description
// embedding; otherwise it degrades to keyword overlap so the engine still
// works without any embedding backend. Ties break by table name.
func (ix *Indexer) FindRelevantTables(
	ctx context.Context,
	nlQuery, connectionID string,
	topK int,
) ([]types.TableDescriptor, error) {
	entry, ok := ix.entry(connectionID)
	if !ok {
		if _, err := ix.Index(ctx, connectionID); err != nil {
			return nil, err
		}

		entry, ok = ix.entry(connectionID)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrTypeSchema,
				"no schema snapshot for connection %q", connectionID)
		}
	}

	if topK <= 0 {
		topK = defaultTopK
	}

	type scoredTable struct {
		td    types.TableDescriptor
		score float64
	}

	var ranked []scoredTable

	if ix.embedder.Enabled() && len(entry.vectors) > 0 {
		queryVec, err := ix.embedder.Embed(ctx, nlQuery)
		if err != nil {
			logging.Warn("query embedding failed, falling back to keyword scoring", "error", err)
		} else {
			for _, td := range entry.snapshot.Tables {
				vec, ok := entry.vectors[strings.ToLower(td.Name)]
				if !ok {
					continue
				}

				ranked = append(ranked, scoredTable{td: td, score: cosineSimilarity(queryVec, vec)})
			}
		}
	}

	if ranked == nil {
		for _, td := range entry.snapshot.Tables {
			ranked = append(ranked, scoredTable{td: td, score: keywordOverlap(nlQuery, td)})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}

		return ranked[i].td.Name < ranked[j].td.Name
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]types.TableDescriptor, len(ranked))
	for i, s := range ranked {
		out[i] = s.td
	}

	return out, nil
}

func (ix *Indexer) entry(connectionID string) (*snapshotEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entry, ok := ix.snapshots[connectionID]

	return entry, ok
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// keywordOverlap scores a table by how many query tokens appear among its
// identifiers. Table-name hits count double since they are the strongest
// signal of intent.
func keywordOverlap(nlQuery string, td types.TableDescriptor) float64 {
	queryTokens := tokenSet(nlQuery)
	if len(queryTokens) == 0 {
		return 0
	}

	var score float64

	for token := range tokenSet(td.Name) {
		if _, ok := queryTokens[token]; ok {
			score += 2
		}
	}

	for _, col := range td.Columns {
		for token := range tokenSet(col.Name) {
			if _, ok := queryTokens[token]; ok {
				score++
			}
		}
	}

	return score
}

func tokenSet(text string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		// Trim plural s so "orders" matches "order_id".
		set[strings.TrimSuffix(token, "s")] = struct{}{}
	}

	return set
}
