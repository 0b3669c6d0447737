package testutil

import (
	"fmt"
	"time"

	"github.com/fedsearch/fedsearch/internal/connection"
	"github.com/fedsearch/fedsearch/internal/types"
	"github.com/fedsearch/fedsearch/internal/vector"
)

// DescriptorOption is a functional option for configuring test descriptors
type DescriptorOption func(*connection.Descriptor)

// WithID sets the connection id
func WithID(id string) DescriptorOption {
	return func(d *connection.Descriptor) {
		d.ID = id
	}
}

// WithDialect sets the SQL dialect
func WithDialect(dialect string) DescriptorOption {
	return func(d *connection.Descriptor) {
		d.Dialect = dialect
	}
}

// WithPath sets the database file path for file-backed dialects
func WithPath(path string) DescriptorOption {
	return func(d *connection.Descriptor) {
		d.Path = path
	}
}

// WithHost sets the server host and port
func WithHost(host string, port int) DescriptorOption {
	return func(d *connection.Descriptor) {
		d.Host = host
		d.Port = port
	}
}

// WithDatabase sets the database name
func WithDatabase(name string) DescriptorOption {
	return func(d *connection.Descriptor) {
		d.Database = name
	}
}

// WithRowLimit sets the per-connection row bound
func WithRowLimit(limit int) DescriptorOption {
	return func(d *connection.Descriptor) {
		d.RowLimit = limit
	}
}

// WithCacheTTL sets the per-connection cache TTL
func WithCacheTTL(ttl string) DescriptorOption {
	return func(d *connection.Descriptor) {
		d.CacheTTL = ttl
	}
}

// NewTestDescriptor creates an in-memory SQLite descriptor and applies any
// provided options.
func NewTestDescriptor(opts ...DescriptorOption) connection.Descriptor {
	desc := connection.Descriptor{
		ID:      TestConnectionID,
		Dialect: "sqlite",
	}

	for _, opt := range opts {
		opt(&desc)
	}

	return desc
}

// NewTestRowSet creates a result set with id and name columns and n rows
func NewTestRowSet(n int) *types.RowSet {
	rows := make([][]any, 0, n)
	for i := range n {
		rows = append(rows, []any{i + 1, fmt.Sprintf("row-%d", i+1)})
	}

	return &types.RowSet{
		Columns: []string{"id", "name"},
		Rows:    rows,
	}
}

// TableOption is a functional option for configuring test tables
type TableOption func(*types.TableDescriptor)

// WithColumns replaces the default column set
func WithColumns(cols ...types.ColumnDescriptor) TableOption {
	return func(t *types.TableDescriptor) {
		t.Columns = cols
	}
}

// WithRowEstimate sets the estimated row count
func WithRowEstimate(n int64) TableOption {
	return func(t *types.TableDescriptor) {
		t.RowEstimate = n
	}
}

// WithTableDescription sets the text the indexer embeds
func WithTableDescription(desc string) TableOption {
	return func(t *types.TableDescriptor) {
		t.Description = desc
	}
}

// NewTestTable creates a table descriptor with an integer primary key and a
// text column, then applies any provided options.
func NewTestTable(name string, opts ...TableOption) types.TableDescriptor {
	table := types.TableDescriptor{
		Name: name,
		Columns: []types.ColumnDescriptor{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "name", Type: "TEXT", Nullable: true},
		},
		RowEstimate: int64(TestRowCount),
	}

	for _, opt := range opts {
		opt(&table)
	}

	return table
}

// NewTestSnapshot creates a schema snapshot for the given tables with a real
// fingerprint, so drift comparisons behave as they would in production.
func NewTestSnapshot(connectionID string, tables ...types.TableDescriptor) types.SchemaSnapshot {
	return types.SchemaSnapshot{
		ConnectionID: connectionID,
		Tables:       tables,
		Fingerprint:  types.FingerprintTables(tables),
		CreatedAt:    time.Now(),
	}
}

// NewTestHit creates a vector hit with a document-style payload
func NewTestHit(id string, score float64, content string) vector.Hit {
	return vector.Hit{
		ID:    id,
		Score: score,
		Payload: map[string]any{
			"file_path": id,
			"content":   content,
		},
	}
}
