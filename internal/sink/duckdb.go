//go:build cgo

package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashirbekov/txinsights/internal/domain"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", openDuckDB)
}

// openDuckDB opens an embedded DuckDB database. An empty path means
// in-memory; go-duckdb shares one database instance across the pool's
// connections so concurrent queries see the same data.
func openDuckDB(ctx context.Context, cfg Config) (Sink, error) {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return newSQLSink(db, "duckdb", cfg.tableName(), duckdbType), nil
}

func duckdbType(k domain.ColumnKind) string {
	switch k {
	case domain.KindInteger:
		return "BIGINT"
	case domain.KindDecimal:
		return "DOUBLE"
	case domain.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}
