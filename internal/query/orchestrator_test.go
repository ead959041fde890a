package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashirbekov/txinsights/internal/domain"
	"github.com/ashirbekov/txinsights/internal/llm"
	"github.com/ashirbekov/txinsights/internal/sink"
)

// scriptedCompleter serves canned responses in call order and records every
// request. Safe for concurrent use.
type scriptedCompleter struct {
	mu    sync.Mutex
	steps []scriptStep
	reqs  []llm.Request
}

type scriptStep struct {
	text string
	err  error
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.reqs)
	s.reqs = append(s.reqs, req)
	if i >= len(s.steps) {
		return "", fmt.Errorf("unexpected completion call %d", i)
	}
	return s.steps[i].text, s.steps[i].err
}

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

// countingQuerier counts how often the sink is actually queried.
type countingQuerier struct {
	db    sink.Sink
	calls int32
}

func (c *countingQuerier) Query(ctx context.Context, sql string, limit int) (*sink.QueryResult, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.db.Query(ctx, sql, limit)
}

func seedTx(id, city, wallet string) domain.Transaction {
	amount := 1250.0
	return domain.Transaction{
		TransactionID:        id,
		TransactionTimestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CardID:               9001,
		MerchantCity:         &city,
		WalletType:           &wallet,
		TransactionAmountKZT: &amount,
	}
}

func seedSink(t *testing.T, rows []domain.Transaction) sink.Sink {
	t.Helper()
	ctx := context.Background()

	s, err := sink.Open(ctx, sink.Config{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.(sink.SchemaEnsurer).EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if len(rows) > 0 {
		if err := s.InsertBatch(ctx, rows); err != nil {
			t.Fatalf("seed rows: %v", err)
		}
	}
	return s
}

func TestAskCountByCityEndToEnd(t *testing.T) {
	db := seedSink(t, []domain.Transaction{
		seedTx("tx-1", "Almaty", "Apple Pay"),
		seedTx("tx-2", "Almaty", "Google Pay"),
		seedTx("tx-3", "Astana", "Apple Pay"),
		seedTx("tx-4", "Astana", "Google Pay"),
		seedTx("tx-5", "Shymkent", "Apple Pay"),
		seedTx("tx-6", "Shymkent", "Google Pay"),
	})
	model := &scriptedCompleter{steps: []scriptStep{
		{text: "```sql\nSELECT merchant_city, COUNT(*) AS transaction_count FROM \"transaction\" GROUP BY merchant_city ORDER BY merchant_city\n```"},
		{text: "Each city carries two transactions; volume is evenly spread."},
	}}

	out, err := New(model, db).Ask(context.Background(), "Count transactions by merchant city")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if out.Stage != StageCompleted || out.Failed() {
		t.Errorf("stage = %v, failed = %v", out.Stage, out.Failed())
	}
	if out.ID == "" {
		t.Error("outcome has no id")
	}
	if out.SQL != `SELECT merchant_city, COUNT(*) AS transaction_count FROM "transaction" GROUP BY merchant_city ORDER BY merchant_city` {
		t.Errorf("generated sql = %q", out.SQL)
	}
	if out.Verdict.SQL != out.SQL || out.Verdict.Rewritten {
		t.Errorf("verdict = %+v, expected statement unchanged", out.Verdict)
	}

	if got := len(out.Result.Rows); got != 3 {
		t.Fatalf("result has %d rows, want 3", got)
	}
	if out.Result.Columns[0] != "merchant_city" || out.Result.Columns[1] != "transaction_count" {
		t.Errorf("columns = %v", out.Result.Columns)
	}
	first := out.Result.Rows[0]
	if first["merchant_city"] != "Almaty" || first["transaction_count"] != int64(2) {
		t.Errorf("first row = %v", first)
	}

	if out.Analysis != "Each city carries two transactions; volume is evenly spread." {
		t.Errorf("analysis = %q", out.Analysis)
	}
	if out.SummaryErr != nil {
		t.Errorf("summary err = %v", out.SummaryErr)
	}
	if model.calls() != 2 {
		t.Errorf("model calls = %d, want generation + analysis", model.calls())
	}
}

func TestAskDeleteRejectedBeforeExecution(t *testing.T) {
	db := seedSink(t, []domain.Transaction{seedTx("tx-1", "Almaty", "Apple Pay")})
	querier := &countingQuerier{db: db}
	model := &scriptedCompleter{steps: []scriptStep{
		{text: "DELETE FROM transaction;"},
	}}

	out, err := New(model, querier).Ask(context.Background(), "Delete all transactions")

	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("Ask = %v, want rejection", err)
	}
	if rej.Reason != "DELETE" {
		t.Errorf("reason = %q, want DELETE", rej.Reason)
	}
	if out.Stage != StageValidating {
		t.Errorf("stage = %v, want validating", out.Stage)
	}
	if out.SQL != "DELETE FROM transaction;" {
		t.Errorf("outcome should keep the rejected statement, got %q", out.SQL)
	}
	if out.Result != nil {
		t.Error("rejected question produced a result")
	}
	if atomic.LoadInt32(&querier.calls) != 0 {
		t.Errorf("sink was queried %d times, want 0", querier.calls)
	}
	if model.calls() != 1 {
		t.Errorf("model calls = %d, want generation only", model.calls())
	}
}

func TestAskApplePayMatchesAllCasings(t *testing.T) {
	db := seedSink(t, []domain.Transaction{
		seedTx("tx-1", "Almaty", "Apple Pay"),
		seedTx("tx-2", "Almaty", "APPLE PAY"),
		seedTx("tx-3", "Astana", "apple pay"),
		seedTx("tx-4", "Astana", "Google Pay"),
	})
	model := &scriptedCompleter{steps: []scriptStep{
		{text: `SELECT COUNT(*) AS n FROM "transaction" WHERE wallet_type = 'Apple Pay'`},
		{text: "Three of four transactions used Apple Pay."},
	}}

	out, err := New(model, db).Ask(context.Background(), "How many transactions used the Apple Pay wallet?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !out.Verdict.Rewritten {
		t.Error("wallet predicate was not rewritten")
	}
	if out.Verdict.SQL != `SELECT COUNT(*) AS n FROM "transaction" WHERE LOWER(wallet_type) = LOWER('Apple Pay')` {
		t.Errorf("executed sql = %q", out.Verdict.SQL)
	}
	if got := out.Result.Rows[0]["n"]; got != int64(3) {
		t.Errorf("matched %v rows, want all three casings", got)
	}
}

func TestAskSummaryFailureIsPartialSuccess(t *testing.T) {
	db := seedSink(t, []domain.Transaction{seedTx("tx-1", "Almaty", "Apple Pay")})
	model := &scriptedCompleter{steps: []scriptStep{
		{text: `SELECT COUNT(*) AS n FROM "transaction"`},
		{err: errors.New("rate limited")},
	}}

	out, err := New(model, db).Ask(context.Background(), "count transactions")
	if err != nil {
		t.Fatalf("Ask should not fail on analysis: %v", err)
	}

	if out.Stage != StageCompleted {
		t.Errorf("stage = %v", out.Stage)
	}
	if out.Result == nil || out.Result.Rows[0]["n"] != int64(1) {
		t.Errorf("result = %+v", out.Result)
	}
	if out.Analysis != "" {
		t.Errorf("analysis = %q, want empty", out.Analysis)
	}
	if !errors.Is(out.SummaryErr, ErrSummaryUnavailable) {
		t.Errorf("summary err = %v", out.SummaryErr)
	}
}

func TestAskEmptyResultGetsFixedAnalysis(t *testing.T) {
	db := seedSink(t, []domain.Transaction{seedTx("tx-1", "Almaty", "Apple Pay")})
	model := &scriptedCompleter{steps: []scriptStep{
		{text: `SELECT transaction_id FROM "transaction" WHERE card_id = -1`},
	}}

	out, err := New(model, db).Ask(context.Background(), "find transactions for card -1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !out.Result.Empty() {
		t.Fatalf("expected empty result, got %d rows", len(out.Result.Rows))
	}
	if out.Analysis != noDataText {
		t.Errorf("analysis = %q, want fixed no-data text", out.Analysis)
	}
	if model.calls() != 1 {
		t.Errorf("model calls = %d, empty results must not spend an analysis call", model.calls())
	}
}

func TestAskGenerationFailureStopsEarly(t *testing.T) {
	db := seedSink(t, nil)
	querier := &countingQuerier{db: db}
	model := &scriptedCompleter{steps: []scriptStep{
		{err: errors.New("connection refused")},
	}}

	out, err := New(model, querier).Ask(context.Background(), "count transactions")

	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("Ask = %v, want ErrGenerationUnavailable", err)
	}
	if out.Stage != StageGenerating {
		t.Errorf("stage = %v", out.Stage)
	}
	if atomic.LoadInt32(&querier.calls) != 0 {
		t.Error("sink should not be touched when generation fails")
	}
}

func TestAskExecutionFailure(t *testing.T) {
	db := seedSink(t, []domain.Transaction{seedTx("tx-1", "Almaty", "Apple Pay")})
	model := &scriptedCompleter{steps: []scriptStep{
		{text: `SELECT no_such_column FROM "transaction"`},
	}}

	out, err := New(model, db).Ask(context.Background(), "show the unknown column of every transaction")

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Ask = %v, want execution error", err)
	}
	if execErr.SQL != `SELECT no_such_column FROM "transaction"` {
		t.Errorf("error sql = %q", execErr.SQL)
	}
	if out.Stage != StageExecuting {
		t.Errorf("stage = %v", out.Stage)
	}
	if model.calls() != 1 {
		t.Errorf("model calls = %d, failed execution must not be summarized", model.calls())
	}
}

func TestAskStageHookSequence(t *testing.T) {
	db := seedSink(t, []domain.Transaction{seedTx("tx-1", "Almaty", "Apple Pay")})
	model := &scriptedCompleter{steps: []scriptStep{
		{text: `SELECT COUNT(*) AS n FROM "transaction"`},
		{text: "one transaction"},
	}}

	var mu sync.Mutex
	var stages []Stage
	hook := func(id string, stage Stage) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	}

	if _, err := New(model, db, WithStageHook(hook)).Ask(context.Background(), "count transactions"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	want := []Stage{StageGenerating, StageValidating, StageExecuting, StageSummarizing, StageCompleted}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stages[%d] = %v, want %v", i, stages[i], want[i])
		}
	}
}

func TestAskConcurrentQuestionsShareSink(t *testing.T) {
	db := seedSink(t, []domain.Transaction{
		seedTx("tx-1", "Almaty", "Apple Pay"),
		seedTx("tx-2", "Astana", "Google Pay"),
	})
	model := &steadyCompleter{}
	orch := New(model, db)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := orch.Ask(context.Background(), "count transactions")
			if err == nil && out.Result.Rows[0]["n"] != int64(2) {
				err = fmt.Errorf("unexpected count %v", out.Result.Rows[0]["n"])
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("ask %d: %v", i, err)
		}
	}
}

// steadyCompleter answers by request role rather than call order, so it
// works under concurrency.
type steadyCompleter struct{}

func (steadyCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	if req.System == generationSystemPrompt {
		return `SELECT COUNT(*) AS n FROM "transaction"`, nil
	}
	return "steady volume", nil
}
