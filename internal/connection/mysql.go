package connection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	"github.com/fedsearch/fedsearch/internal/types"
)

func init() {
	register(mysqlDialect{})
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string   { return dialectMySQL }
func (mysqlDialect) Driver() string { return "mysql" }

func (mysqlDialect) DSN(d Descriptor) (string, error) {
	port := d.Port
	if port == 0 {
		port = 3306
	}

	params := []string{"parseTime=true"}
	for key, value := range d.Options {
		params = append(params, key+"="+value)
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		d.Username, d.Password, d.Host, port, d.Database, strings.Join(params, "&")), nil
}

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (md mysqlDialect) SampleSQL(table string, n int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", md.Quote(table), n)
}

func (mysqlDialect) Tables(ctx context.Context, db *sql.DB, d Descriptor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`, schemaOrDefault(d, d.Database))
	if err != nil {
		return nil, err
	}

	return scanSingleColumn(rows)
}

func (mysqlDialect) Columns(
	ctx context.Context,
	db *sql.DB,
	d Descriptor,
	table string,
) ([]types.ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			IS_NULLABLE = 'YES',
			COLUMN_KEY = 'PRI'
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, schemaOrDefault(d, d.Database), table)
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

func (mysqlDialect) RowEstimate(
	ctx context.Context,
	db *sql.DB,
	d Descriptor,
	table string,
) (int64, error) {
	var count sql.NullInt64

	err := db.QueryRowContext(ctx, `
		SELECT TABLE_ROWS
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`, schemaOrDefault(d, d.Database), table).Scan(&count)
	if err != nil {
		return 0, err
	}

	if !count.Valid {
		return 0, nil
	}

	return count.Int64, nil
}
