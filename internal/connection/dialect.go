package connection

import (
	"context"
	"database/sql"
	"strings"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
	"github.com/fedsearch/fedsearch/internal/types"
)

// Canonical dialect names. Aliases are folded by normalizeDialect.
const (
	dialectDuckDB   = "duckdb"
	dialectPostgres = "postgres"
	dialectMySQL    = "mysql"
	dialectSQLite   = "sqlite"
	dialectMSSQL    = "mssql"
)

// dialect encapsulates everything that varies between database engines: the
// driver, DSN construction, identifier quoting, and introspection queries.
// The rest of the engine never branches on dialect.
type dialect interface {
	Name() string
	Driver() string
	DSN(d Descriptor) (string, error)
	Quote(ident string) string
	SampleSQL(table string, n int) string
	Tables(ctx context.Context, db *sql.DB, d Descriptor) ([]string, error)
	Columns(ctx context.Context, db *sql.DB, d Descriptor, table string) ([]types.ColumnDescriptor, error)
	RowEstimate(ctx context.Context, db *sql.DB, d Descriptor, table string) (int64, error)
}

// statementAdapter lets a dialect rewrite a validated statement into its own
// syntax. SQL Server uses it to turn a trailing LIMIT into TOP.
type statementAdapter interface {
	AdaptStatement(sqlText string) string
}

var dialects = make(map[string]dialect)

// register installs a dialect under its canonical name. Called from each
// dialect file's init.
func register(d dialect) {
	dialects[d.Name()] = d
}

func normalizeDialect(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return dialectPostgres
	case "mssql", "sqlserver":
		return dialectMSSQL
	case "sqlite", "sqlite3":
		return dialectSQLite
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// dialectFor resolves a configured dialect name to its implementation
func dialectFor(name string) (dialect, error) {
	d, ok := dialects[normalizeDialect(name)]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrTypeConfig,
			"unsupported dialect %q (supported: duckdb, postgres, mysql, sqlite, mssql)", name)
	}

	return d, nil
}

// SupportedDialects lists the registered dialect names
func SupportedDialects() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}

	return names
}

// quoteANSI double-quotes an identifier, doubling embedded quotes
func quoteANSI(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// scanSingleColumn collects a one-column string result set
func scanSingleColumn(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}

		out = append(out, value)
	}

	return out, rows.Err()
}
