// internal/output/sqlite.go
package output

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// NewSQLiteWriter opens (or creates) a SQLite database at path and writes
// into the given table.
func NewSQLiteWriter(path, table string) (Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newSQLWriter(db, table, sqliteDialect)
}

var sqliteDialect = sqlDialect{
	driver:      "sqlite3",
	placeholder: func(int) string { return "?" },
	insertHead: func(table, columns, placeholders string) string {
		return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", table, columns, placeholders)
	},
	schema: func(table string) string {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
			table, columnDefs("TEXT", "REAL", "INTEGER", "TEXT"))
	},
}
