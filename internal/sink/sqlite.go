package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ashirbekov/txinsights/internal/domain"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

func init() {
	Register("sqlite", openSQLite)
}

// openSQLite opens a SQLite database with the pure-Go driver. The pool is
// pinned to a single connection: in-memory databases exist per connection,
// and a single writer avoids SQLITE_BUSY on file databases. Concurrent
// callers are serialized by the pool.
func openSQLite(ctx context.Context, cfg Config) (Sink, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	// Store timestamps in a format SQLite's date functions understand.
	if !strings.Contains(path, "_time_format=") {
		if strings.ContainsRune(path, '?') {
			path += "&_time_format=sqlite"
		} else {
			path += "?_time_format=sqlite"
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return newSQLSink(db, "sqlite", cfg.tableName(), sqliteType), nil
}

func sqliteType(k domain.ColumnKind) string {
	switch k {
	case domain.KindInteger:
		return "INTEGER"
	case domain.KindDecimal:
		return "REAL"
	case domain.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
