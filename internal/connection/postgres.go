package connection

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/fedsearch/fedsearch/internal/types"
)

func init() {
	register(postgresDialect{})
}

type postgresDialect struct{}

func (postgresDialect) Name() string   { return dialectPostgres }
func (postgresDialect) Driver() string { return "pgx" }

func (postgresDialect) DSN(d Descriptor) (string, error) {
	port := d.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, port),
		Path:   "/" + d.Database,
	}

	if d.Username != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	}

	q := u.Query()
	for key, value := range d.Options {
		q.Set(key, value)
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (postgresDialect) Quote(ident string) string { return quoteANSI(ident) }

func (pd postgresDialect) SampleSQL(table string, n int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", pd.Quote(table), n)
}

func (postgresDialect) Tables(ctx context.Context, db *sql.DB, d Descriptor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, schemaOrDefault(d, "public"))
	if err != nil {
		return nil, err
	}

	return scanSingleColumn(rows)
}

func (postgresDialect) Columns(
	ctx context.Context,
	db *sql.DB,
	d Descriptor,
	table string,
) ([]types.ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			pk.column_name IS NOT NULL
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT ku.table_schema, ku.table_name, ku.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage ku
				ON tc.constraint_name = ku.constraint_name
				AND tc.table_schema = ku.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
		) pk ON c.table_schema = pk.table_schema
			AND c.table_name = pk.table_name
			AND c.column_name = pk.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, schemaOrDefault(d, "public"), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []types.ColumnDescriptor

	for rows.Next() {
		var col types.ColumnDescriptor
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.PrimaryKey); err != nil {
			return nil, err
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// RowEstimate reads the planner statistics instead of counting, so large
// tables do not stall introspection
func (postgresDialect) RowEstimate(
	ctx context.Context,
	db *sql.DB,
	d Descriptor,
	table string,
) (int64, error) {
	var estimate sql.NullInt64

	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(c.reltuples::bigint, 0)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`, schemaOrDefault(d, "public"), table).Scan(&estimate)
	if err != nil {
		return 0, err
	}

	if !estimate.Valid || estimate.Int64 < 0 {
		return 0, nil
	}

	return estimate.Int64, nil
}

func schemaOrDefault(d Descriptor, fallback string) string {
	if d.Schema != "" {
		return d.Schema
	}

	return fallback
}
