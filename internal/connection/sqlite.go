package connection

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver (CGo-free)
	"github.com/fedsearch/fedsearch/internal/types"
)

func init() {
	register(sqliteDialect{})
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string   { return dialectSQLite }
func (sqliteDialect) Driver() string { return "sqlite" }

func (sqliteDialect) DSN(d Descriptor) (string, error) {
	if d.Path == "" {
		return ":memory:", nil
	}

	return d.Path, nil
}

func (sqliteDialect) Quote(ident string) string { return quoteANSI(ident) }

func (sd sqliteDialect) SampleSQL(table string, n int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", sd.Quote(table), n)
}

func (sqliteDialect) Tables(ctx context.Context, db *sql.DB, _ Descriptor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	return scanSingleColumn(rows)
}

func (sd sqliteDialect) Columns(
	ctx context.Context,
	db *sql.DB,
	_ Descriptor,
	table string,
) ([]types.ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sd.Quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []types.ColumnDescriptor

	for rows.Next() {
		var (
			cid          int64
			col          types.ColumnDescriptor
			notNull, pk  int64
			defaultValue sql.NullString
		)

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		col.Nullable = notNull == 0
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func (sd sqliteDialect) RowEstimate(
	ctx context.Context,
	db *sql.DB,
	_ Descriptor,
	table string,
) (int64, error) {
	var count int64

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", sd.Quote(table))
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}
