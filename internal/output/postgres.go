// internal/output/postgres.go
package output

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// NewPostgresWriter connects to PostgreSQL with the given DSN and writes
// into the given table.
func NewPostgresWriter(dsn, table string) (Sink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return newSQLWriter(db, table, postgresDialect)
}

var postgresDialect = sqlDialect{
	driver: "postgres",
	placeholder: func(i int) string {
		return fmt.Sprintf("$%d", i+1)
	},
	insertHead: func(table, columns, placeholders string) string {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, columns, placeholders)
	},
	insertTail: " ON CONFLICT (identity_key) DO NOTHING",
	schema: func(table string) string {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
			table, columnDefs("TEXT", "DOUBLE PRECISION", "BOOLEAN", "TIMESTAMPTZ"))
	},
}
