package connection

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	"github.com/fedsearch/fedsearch/internal/types"
)

func init() {
	register(duckdbDialect{})
}

type duckdbDialect struct{}

func (duckdbDialect) Name() string   { return dialectDuckDB }
func (duckdbDialect) Driver() string { return "duckdb" }

func (duckdbDialect) DSN(d Descriptor) (string, error) {
	// Empty path opens an in-memory database
	return d.Path, nil
}

func (duckdbDialect) Quote(ident string) string { return quoteANSI(ident) }

func (dd duckdbDialect) SampleSQL(table string, n int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", dd.Quote(table), n)
}

func (duckdbDialect) Tables(ctx context.Context, db *sql.DB, d Descriptor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, schemaOrDefault(d, "main"))
	if err != nil {
		return nil, err
	}

	return scanSingleColumn(rows)
}

func (dd duckdbDialect) Columns(
	ctx context.Context,
	db *sql.DB,
	_ Descriptor,
	table string,
) ([]types.ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", dd.Quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []types.ColumnDescriptor

	for rows.Next() {
		var (
			cid          int64
			col          types.ColumnDescriptor
			notNull, pk  bool
			defaultValue sql.NullString
		)

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		col.Nullable = !notNull
		col.PrimaryKey = pk
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func (duckdbDialect) RowEstimate(
	ctx context.Context,
	db *sql.DB,
	_ Descriptor,
	table string,
) (int64, error) {
	var estimate sql.NullInt64

	err := db.QueryRowContext(ctx,
		"SELECT estimated_size FROM duckdb_tables() WHERE table_name = ?", table,
	).Scan(&estimate)
	if err != nil {
		return 0, err
	}

	if !estimate.Valid {
		return 0, nil
	}

	return estimate.Int64, nil
}
