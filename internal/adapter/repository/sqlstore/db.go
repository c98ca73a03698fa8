package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/glebarez/go-sqlite" // SQLite driver
	_ "github.com/lib/pq"             // PostgreSQL driver
)

// Dialect identifies the SQL engine behind a DB
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect validates a driver name from configuration
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(strings.ToLower(name)) {
	case DialectPostgres:
		return DialectPostgres, nil
	case DialectSQLite:
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// DB wraps the database connection
type DB struct {
	*sql.DB
	Dialect Dialect
}

// NewDB creates a new database connection
// For postgres, dsn is a lib/pq connection string: "host=localhost port=5432 user=postgres password=postgres dbname=tradeflow sslmode=disable"
// For sqlite, dsn is a file path.
func NewDB(dialect Dialect, dsn string) (*DB, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if dialect == DialectSQLite {
		// Writers are serialized through a single connection; this is what
		// makes the ledger's read-check-write sequences atomic on SQLite.
		db.SetMaxOpenConns(1)

		pragmas := []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA busy_timeout=5000;",
			"PRAGMA foreign_keys=ON;",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// rebind rewrites ? placeholders into the dialect's positional form
func (db *DB) rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row-locking clause for SELECTs inside a ledger transaction
func (db *DB) forUpdate() string {
	if db.Dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}
