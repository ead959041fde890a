// Package sink provides the relational stores that ingested transactions
// land in and read-only queries run against. Adapters register themselves
// by driver name; Open picks one from configuration.
package sink

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ashirbekov/txinsights/internal/domain"
)

// QueryResult is a bounded, ordered result set. Columns preserves the
// source order of the statement's select list.
type QueryResult struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool // more rows were available than the requested limit
}

// Empty reports whether the result has no rows.
func (r *QueryResult) Empty() bool {
	return len(r.Rows) == 0
}

// Sink is a relational store accepting transaction batches and answering
// read-only queries. Implementations must be safe for concurrent use; batch
// inserts must commit or fail as a unit.
type Sink interface {
	// InsertBatch writes one batch atomically.
	InsertBatch(ctx context.Context, rows []domain.Transaction) error

	// Query runs a read-only statement and returns at most limit rows
	// (unbounded when limit <= 0), marking the result truncated when more
	// were available.
	Query(ctx context.Context, sql string, limit int) (*QueryResult, error)

	Close() error
}

// SchemaEnsurer is implemented by sinks that can create the transaction
// table themselves. Schema management stays out of the load path; the
// migrate command uses this when available.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Config selects and parameterizes a sink driver.
type Config struct {
	Driver  string // "duckdb", "sqlite", "postgres" or "bigquery"
	Path    string // database file for embedded drivers, ":memory:" allowed
	DSN     string // connection string for postgres
	Project string // bigquery billing/project id
	Dataset string // bigquery dataset
	Table   string // defaults to domain.TableName
}

func (c Config) tableName() string {
	if c.Table != "" {
		return c.Table
	}
	return domain.TableName
}

// OpenFunc builds a connected Sink from configuration.
type OpenFunc func(ctx context.Context, cfg Config) (Sink, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]OpenFunc)
)

// Register adds a sink driver to the registry. Called by adapter
// implementations from their init functions.
func Register(name string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = open
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open connects the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("sink driver not specified, available: %v", Drivers())
	}
	registryMu.RLock()
	open, ok := registry[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink driver %q, available: %v", cfg.Driver, Drivers())
	}
	return open(ctx, cfg)
}

// rowValues flattens a transaction into driver arguments ordered like
// domain.Columns. Nil pointers become SQL NULLs.
func rowValues(t *domain.Transaction) []any {
	return []any{
		t.TransactionID,
		t.TransactionTimestamp,
		t.CardID,
		t.ExpiryDate,
		t.IssuerBankName,
		t.MerchantID,
		t.MerchantMCC,
		t.MCCCategory,
		t.MerchantCity,
		t.TransactionType,
		t.TransactionAmountKZT,
		t.OriginalAmount,
		t.TransactionCurrency,
		t.AcquirerCountryISO,
		t.POSEntryMode,
		t.WalletType,
		t.IndexLevel0,
	}
}

// createTableSQL renders idempotent DDL for the transaction table using the
// dialect's type names.
func createTableSQL(table string, typeFor func(domain.ColumnKind) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %q (\n", table)
	cols := domain.Columns()
	for i, c := range cols {
		fmt.Fprintf(&b, "\t%s %s", c.Name, typeFor(c.Kind))
		if c.Required {
			b.WriteString(" NOT NULL")
		}
		if i < len(cols)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteByte(')')
	return b.String()
}
