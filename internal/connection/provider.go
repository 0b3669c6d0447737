package connection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/types"
)

// Provider runs statements and introspects schemas for registered
// connections. Implementations must be safe for concurrent use.
type Provider interface {
	// Execute runs a read statement and returns at most rowLimit rows.
	// rowLimit <= 0 means unlimited.
	Execute(ctx context.Context, connectionID, sqlText string, params []any, rowLimit int) (*types.RowSet, error)

	// Introspect describes every base table on the connection. Tables that
	// fail individually are reported through a *PartialIntrospectError
	// alongside the descriptors that succeeded.
	Introspect(ctx context.Context, connectionID string) ([]types.TableDescriptor, error)

	// Ping verifies the connection is reachable.
	Ping(ctx context.Context, connectionID string) error

	// Close releases every pooled database handle.
	Close() error
}

// PartialIntrospectError reports tables that could not be described while
// the rest of the introspection succeeded. Callers unwrap it with errors.As
// to record the failures without discarding the good descriptors.
type PartialIntrospectError struct {
	Errors []types.TableError
}

func (e *PartialIntrospectError) Error() string {
	names := make([]string, len(e.Errors))
	for i, te := range e.Errors {
		names[i] = te.Table
	}

	return fmt.Sprintf("introspection failed for %d table(s): %s",
		len(e.Errors), strings.Join(names, ", "))
}

const (
	defaultSampleRows = 3
	maxSampleLength   = 64
)

// SQLProvider implements Provider over database/sql. One *sql.DB is opened
// lazily per connection id and pooled for the provider's lifetime; dialects
// supply the driver name, DSN, and introspection queries.
type SQLProvider struct {
	registry   *Registry
	sampleRows int

	// openDB is sql.Open unless a test substitutes it.
	openDB func(driverName, dsn string) (*sql.DB, error)

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewSQLProvider builds a provider over the given registry.
func NewSQLProvider(registry *Registry) *SQLProvider {
	return &SQLProvider{
		registry:   registry,
		sampleRows: defaultSampleRows,
		openDB:     sql.Open,
		pools:      make(map[string]*sql.DB),
	}
}

// pool resolves the descriptor and dialect for a connection id and returns
// its pooled handle, opening it on first use.
func (p *SQLProvider) pool(connectionID string) (*sql.DB, dialect, Descriptor, error) {
	desc, err := p.registry.Get(connectionID)
	if err != nil {
		return nil, nil, Descriptor{}, err
	}

	dia, err := dialectFor(desc.Dialect)
	if err != nil {
		return nil, nil, Descriptor{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.pools[connectionID]; ok {
		return db, dia, desc, nil
	}

	dsn, err := dia.DSN(desc)
	if err != nil {
		return nil, nil, Descriptor{}, apperrors.Wrapf(err, apperrors.ErrTypeConnection,
			"building DSN for connection %q", connectionID)
	}

	db, err := p.openDB(dia.Driver(), dsn)
	if err != nil {
		return nil, nil, Descriptor{}, apperrors.Wrapf(err, apperrors.ErrTypeConnection,
			"opening connection %q", connectionID)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	p.pools[connectionID] = db

	return db, dia, desc, nil
}

// Execute runs a statement and scans the result into a RowSet. The row
// limit is enforced during scanning so no dialect-specific rewriting is
// needed to cap result size.
func (p *SQLProvider) Execute(
	ctx context.Context,
	connectionID, sqlText string,
	params []any,
	rowLimit int,
) (*types.RowSet, error) {
	db, dia, _, err := p.pool(connectionID)
	if err != nil {
		return nil, err
	}

	if adapter, ok := dia.(statementAdapter); ok {
		sqlText = adapter.AdaptStatement(sqlText)
	}

	rows, err := db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrapf(ctx.Err(), apperrors.ErrTypeTimeout,
				"query cancelled on connection %q", connectionID)
		}

		return nil, apperrors.Wrapf(err, apperrors.ErrTypeExecution,
			"executing query on connection %q", connectionID)
	}

	return scanRowSet(rows, rowLimit)
}

// Introspect lists the connection's tables and describes each one. A table
// that fails to describe is skipped and recorded; only a failure to list
// tables at all is fatal.
func (p *SQLProvider) Introspect(ctx context.Context, connectionID string) ([]types.TableDescriptor, error) {
	db, dia, desc, err := p.pool(connectionID)
	if err != nil {
		return nil, err
	}

	tables, err := dia.Tables(ctx, db, desc)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrTypeSchema,
			"listing tables on connection %q", connectionID)
	}

	var (
		descriptors []types.TableDescriptor
		failures    []types.TableError
	)

	for _, table := range tables {
		td, err := p.describeTable(ctx, db, dia, desc, table)
		if err != nil {
			if ctx.Err() != nil {
				return descriptors, apperrors.Wrapf(ctx.Err(), apperrors.ErrTypeTimeout,
					"introspection cancelled on connection %q", connectionID)
			}

			logging.Warn("table introspection failed",
				"connection", connectionID, "table", table, "error", err)
			failures = append(failures, types.TableError{Table: table, Reason: err.Error()})

			continue
		}

		descriptors = append(descriptors, td)
	}

	if len(failures) > 0 {
		return descriptors, &PartialIntrospectError{Errors: failures}
	}

	return descriptors, nil
}

func (p *SQLProvider) describeTable(
	ctx context.Context,
	db *sql.DB,
	dia dialect,
	desc Descriptor,
	table string,
) (types.TableDescriptor, error) {
	columns, err := dia.Columns(ctx, db, desc, table)
	if err != nil {
		return types.TableDescriptor{}, err
	}

	if len(columns) == 0 {
		return types.TableDescriptor{}, fmt.Errorf("no columns reported for table %q", table)
	}

	td := types.TableDescriptor{Name: table, Columns: columns}

	if estimate, err := dia.RowEstimate(ctx, db, desc, table); err == nil {
		td.RowEstimate = estimate
	}

	p.attachSamples(ctx, db, dia, &td)

	return td, nil
}

// attachSamples runs the dialect's sample query and records up to
// sampleRows distinct values per column. Sampling is best-effort: a failure
// leaves the descriptor without samples rather than failing the table.
func (p *SQLProvider) attachSamples(ctx context.Context, db *sql.DB, dia dialect, td *types.TableDescriptor) {
	rows, err := db.QueryContext(ctx, dia.SampleSQL(td.Name, p.sampleRows))
	if err != nil {
		return
	}

	set, err := scanRowSet(rows, p.sampleRows)
	if err != nil {
		return
	}

	for i := range td.Columns {
		col := &td.Columns[i]

		idx := -1
		for j, name := range set.Columns {
			if strings.EqualFold(name, col.Name) {
				idx = j
				break
			}
		}

		if idx < 0 {
			continue
		}

		seen := make(map[string]struct{}, p.sampleRows)

		for _, row := range set.Rows {
			if idx >= len(row) || row[idx] == nil {
				continue
			}

			sample := fmt.Sprintf("%v", row[idx])
			if len(sample) > maxSampleLength {
				sample = sample[:maxSampleLength]
			}

			if _, dup := seen[sample]; dup {
				continue
			}

			seen[sample] = struct{}{}
			col.Samples = append(col.Samples, sample)
		}
	}
}

func (p *SQLProvider) Ping(ctx context.Context, connectionID string) error {
	db, _, _, err := p.pool(connectionID)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrTypeConnection,
			"pinging connection %q", connectionID)
	}

	return nil
}

// Close closes every pooled handle. The provider is unusable afterwards.
func (p *SQLProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error

	for id, db := range p.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing connection %q: %w", id, err)
		}

		delete(p.pools, id)
	}

	return firstErr
}

// scanRowSet drains up to rowLimit rows into a RowSet. The limit is applied
// here so every dialect gets identical truncation behavior.
func scanRowSet(rows *sql.Rows, rowLimit int) (*types.RowSet, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeExecution, "reading result columns")
	}

	out := &types.RowSet{Columns: columns}

	for rows.Next() {
		if rowLimit > 0 && len(out.Rows) >= rowLimit {
			out.Truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))

		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrTypeExecution, "scanning result row")
		}

		for i, v := range values {
			values[i] = normalizeValue(v)
		}

		out.Rows = append(out.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeExecution, "iterating result rows")
	}

	return out, nil
}

// normalizeValue maps driver-specific types onto JSON-friendly ones so
// cached pages serialize identically regardless of backend.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
