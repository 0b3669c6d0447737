package connection

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // sqlserver driver
	"github.com/fedsearch/fedsearch/internal/types"
)

func init() {
	register(mssqlDialect{})
}

type mssqlDialect struct{}

func (mssqlDialect) Name() string   { return dialectMSSQL }
func (mssqlDialect) Driver() string { return "sqlserver" }

// DSN builds a sqlserver:// URL. With IntegratedAuth set, user info is
// omitted and the driver authenticates as the OS user. A named instance
// rides in the URL path and suppresses the port, which the driver resolves
// through the browser service.
func (mssqlDialect) DSN(d Descriptor) (string, error) {
	port := d.Port
	if port == 0 {
		port = 1433
	}

	u := url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", d.Host, port),
	}

	if instance, ok := d.Options["instance"]; ok && instance != "" {
		u.Host = d.Host
		u.Path = instance
	}

	if !d.IntegratedAuth && d.Username != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	}

	q := u.Query()
	q.Set("database", d.Database)

	for key, value := range d.Options {
		if key == "instance" {
			continue
		}

		q.Set(key, value)
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (mssqlDialect) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (md mssqlDialect) SampleSQL(table string, n int) string {
	return fmt.Sprintf("SELECT TOP %d * FROM %s", n, md.Quote(table))
}

var (
	mssqlTrailingLimit = regexp.MustCompile(`(?i)\s+LIMIT\s+(\d+)\s*;?\s*$`)
	mssqlSelectHead    = regexp.MustCompile(`(?i)^(\s*SELECT(?:\s+DISTINCT)?)\s+`)
)

// AdaptStatement rewrites a trailing LIMIT clause into SELECT TOP, which
// T-SQL understands. Statements without a trailing LIMIT pass through
// untouched.
func (mssqlDialect) AdaptStatement(sqlText string) string {
	m := mssqlTrailingLimit.FindStringSubmatch(sqlText)
	if m == nil {
		return sqlText
	}

	stripped := mssqlTrailingLimit.ReplaceAllString(sqlText, "")
	if !mssqlSelectHead.MatchString(stripped) {
		return sqlText
	}

	return mssqlSelectHead.ReplaceAllString(stripped, "${1} TOP "+m[1]+" ")
}

func (mssqlDialect) Tables(ctx context.Context, db *sql.DB, d Descriptor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`, schemaOrDefault(d, "dbo"))
	if err != nil {
		return nil, err
	}

	return scanSingleColumn(rows)
}

func (mssqlDialect) Columns(
	ctx context.Context,
	db *sql.DB,
	d Descriptor,
	table string,
) ([]types.ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
				ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk ON c.TABLE_SCHEMA = pk.TABLE_SCHEMA
			AND c.TABLE_NAME = pk.TABLE_NAME
			AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`, schemaOrDefault(d, "dbo"), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []types.ColumnDescriptor

	for rows.Next() {
		var (
			col      types.ColumnDescriptor
			nullable int
			isPK     int
		)

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &isPK); err != nil {
			return nil, err
		}

		col.Nullable = nullable == 1
		col.PrimaryKey = isPK == 1
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func (mssqlDialect) RowEstimate(
	ctx context.Context,
	db *sql.DB,
	d Descriptor,
	table string,
) (int64, error) {
	var count sql.NullInt64

	err := db.QueryRowContext(ctx, `
		SELECT SUM(p.rows)
		FROM sys.partitions p
		JOIN sys.tables t ON p.object_id = t.object_id
		JOIN sys.schemas s ON t.schema_id = s.schema_id
		WHERE s.name = @p1 AND t.name = @p2 AND p.index_id IN (0, 1)
	`, schemaOrDefault(d, "dbo"), table).Scan(&count)
	if err != nil {
		return 0, err
	}

	if !count.Valid {
		return 0, nil
	}

	return count.Int64, nil
}
