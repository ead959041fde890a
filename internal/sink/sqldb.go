package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ashirbekov/txinsights/internal/domain"
)

// sqlSink is the shared database/sql implementation behind the embedded
// adapters (DuckDB, SQLite). Both speak ? placeholders and double-quoted
// identifiers.
type sqlSink struct {
	db      *sql.DB
	dialect string
	table   string
	insert  string
	typeFor func(domain.ColumnKind) string
}

func newSQLSink(db *sql.DB, dialect, table string, typeFor func(domain.ColumnKind) string) *sqlSink {
	return &sqlSink{
		db:      db,
		dialect: dialect,
		table:   table,
		insert:  insertSQL(table),
		typeFor: typeFor,
	}
}

func insertSQL(table string) string {
	cols := domain.ColumnNames()
	marks := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	return fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
}

// InsertBatch writes all rows inside one transaction so the batch commits
// or fails as a unit.
func (s *sqlSink) InsertBatch(ctx context.Context, rows []domain.Transaction) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rowValues(&rows[i])...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close insert statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *sqlSink) Query(ctx context.Context, query string, limit int) (*QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows, limit)
}

func (s *sqlSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL(s.table, s.typeFor)); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

func (s *sqlSink) Close() error {
	return s.db.Close()
}

// scanRows drains up to limit rows into generic row maps, normalizing byte
// slices to strings.
func scanRows(rows *sql.Rows, limit int) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	res := &QueryResult{Columns: cols}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			m[c] = v
		}
		res.Rows = append(res.Rows, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return res, nil
}
