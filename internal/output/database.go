// internal/output/database.go
package output

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/fetchlab/cataloger/pkg/types"
)

// sqlDialect captures the per-engine differences: placeholder style, the
// conflict-ignoring INSERT form, and the column type vocabulary.
type sqlDialect struct {
	driver      string
	placeholder func(i int) string
	insertHead  func(table, columns, placeholders string) string
	insertTail  string
	schema      func(table string) string
}

// sqlWriter is the shared implementation behind the SQLite, PostgreSQL, and
// MySQL sinks. Inserts ignore identity-key conflicts so appending the same
// record twice is a no-op, not an error.
type sqlWriter struct {
	mu      sync.Mutex
	db      *sql.DB
	table   string
	dialect sqlDialect
	closed  bool
}

func newSQLWriter(db *sql.DB, table string, dialect sqlDialect) (*sqlWriter, error) {
	if table == "" {
		table = "products"
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.driver, err)
	}

	w := &sqlWriter{db: db, table: table, dialect: dialect}
	if _, err := db.Exec(dialect.schema(table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table %q: %w", table, err)
	}
	return w, nil
}

// Append inserts the batch inside one transaction.
func (w *sqlWriter) Append(records []*types.ProductRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("%s writer is closed", w.dialect.driver)
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(w.insertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(recordArgs(rec)...); err != nil {
			return fmt.Errorf("failed to insert record %q: %w", rec.IdentityKey(), err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (w *sqlWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}

func (w *sqlWriter) insertQuery() string {
	placeholders := make([]string, len(recordColumns))
	for i := range recordColumns {
		placeholders[i] = w.dialect.placeholder(i)
	}

	query := w.dialect.insertHead(
		w.table,
		strings.Join(recordColumns, ", "),
		strings.Join(placeholders, ", "),
	)
	return query + w.dialect.insertTail
}

// columnDefs renders the shared schema with per-dialect types for the key,
// price, and boolean columns. Everything else is stored as text.
func columnDefs(keyType, floatType, boolType, timeType string) string {
	defs := make([]string, 0, len(recordColumns))
	for _, col := range recordColumns {
		switch col {
		case "identity_key":
			defs = append(defs, col+" "+keyType+" PRIMARY KEY")
		case "price", "original_price":
			defs = append(defs, col+" "+floatType)
		case "in_stock":
			defs = append(defs, col+" "+boolType)
		case "scraped_at":
			defs = append(defs, col+" "+timeType)
		default:
			defs = append(defs, col+" TEXT")
		}
	}
	return strings.Join(defs, ",\n\t")
}
