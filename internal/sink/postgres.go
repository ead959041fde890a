package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashirbekov/txinsights/internal/domain"
)

func init() {
	Register("postgres", openPostgres)
}

// pgClient is the subset of *pgxpool.Pool the sink uses. The seam keeps the
// adapter testable without a live server.
type pgClient interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

type postgresSink struct {
	client pgClient
	table  string
	cols   []string
}

func openPostgres(ctx context.Context, cfg Config) (Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &postgresSink{client: pool, table: cfg.tableName(), cols: domain.ColumnNames()}, nil
}

// InsertBatch bulk-loads the batch with COPY inside one transaction.
func (s *postgresSink) InsertBatch(ctx context.Context, rows []domain.Transaction) error {
	if len(rows) == 0 {
		return nil
	}

	src := make([][]any, len(rows))
	for i := range rows {
		src[i] = rowValues(&rows[i])
	}

	tx, err := s.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{s.table}, s.cols, pgx.CopyFromRows(src)); err != nil {
		return fmt.Errorf("copy batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *postgresSink) Query(ctx context.Context, query string, limit int) (*QueryResult, error) {
	rows, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	res := &QueryResult{Columns: cols}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
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

func (s *postgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.Exec(ctx, createTableSQL(s.table, postgresType)); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

func (s *postgresSink) Close() error {
	s.client.Close()
	return nil
}

func postgresType(k domain.ColumnKind) string {
	switch k {
	case domain.KindInteger:
		return "BIGINT"
	case domain.KindDecimal:
		return "DOUBLE PRECISION"
	case domain.KindTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
