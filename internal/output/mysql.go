// internal/output/mysql.go
package output

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// NewMySQLWriter connects to MySQL with the given DSN and writes into the
// given table.
func NewMySQLWriter(dsn, table string) (Sink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("MySQL DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return newSQLWriter(db, table, mysqlDialect)
}

var mysqlDialect = sqlDialect{
	driver:      "mysql",
	placeholder: func(int) string { return "?" },
	insertHead: func(table, columns, placeholders string) string {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, columns, placeholders)
	},
	schema: func(table string) string {
		// MySQL needs a bounded key type for the primary key.
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
			table, columnDefs("VARCHAR(512)", "DOUBLE", "TINYINT(1)", "VARCHAR(64)"))
	},
}
