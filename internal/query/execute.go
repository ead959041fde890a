package query

import (
	"context"

	"github.com/ashirbekov/txinsights/internal/sink"
)

// DefaultDisplayLimit caps how many rows a question brings back for
// display. The analysis projection sent to the model is smaller, see
// analysisRowLimit.
const DefaultDisplayLimit = 500

// Querier is the single sink capability the executor needs.
type Querier interface {
	Query(ctx context.Context, sql string, limit int) (*sink.QueryResult, error)
}

// Executor runs validated statements against the sink.
type Executor struct {
	db    Querier
	limit int
}

// NewExecutor wraps a sink for bounded read-only execution. A non-positive
// limit falls back to DefaultDisplayLimit.
func NewExecutor(db Querier, limit int) *Executor {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	return &Executor{db: db, limit: limit}
}

// Execute runs one statement and returns at most the display limit of rows,
// columns in statement order.
func (e *Executor) Execute(ctx context.Context, sql string) (*sink.QueryResult, error) {
	res, err := e.db.Query(ctx, sql, e.limit)
	if err != nil {
		return nil, &ExecutionError{SQL: sql, Err: err}
	}
	return res, nil
}
