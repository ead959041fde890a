// Package query turns natural-language questions about the transaction
// table into validated, executed and summarized SQL. The pipeline is
// generate, validate, execute, summarize; validation failures stop a
// statement before it ever reaches the sink.
package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ashirbekov/txinsights/internal/llm"
	"github.com/ashirbekov/txinsights/internal/sink"
)

// Stage names one step of the question pipeline.
type Stage string

const (
	StageReceived    Stage = "received"
	StageGenerating  Stage = "generating"
	StageValidating  Stage = "validating"
	StageExecuting   Stage = "executing"
	StageSummarizing Stage = "summarizing"
	StageCompleted   Stage = "completed"
)

// Outcome is everything one question produced. On failure, fields filled
// before the failing stage keep their values so callers can still show the
// generated SQL of a rejected statement.
type Outcome struct {
	ID       string
	Question string

	// Stage is the terminal stage: StageCompleted, or the stage that
	// failed when Err is set.
	Stage Stage
	Err   error

	SQL     string  // as generated
	Verdict Verdict // accepted statement, after rewriting
	Result  *sink.QueryResult

	// Analysis is empty when summarization was unavailable; SummaryErr then
	// carries the non-fatal cause.
	Analysis   string
	SummaryErr error

	Duration time.Duration
}

// Failed reports whether the run stopped before completion.
func (o *Outcome) Failed() bool {
	return o.Err != nil
}

// Orchestrator drives one question through all stages. It is stateless
// between calls and safe for concurrent use as long as the sink and the
// completer are.
type Orchestrator struct {
	gen     *Generator
	exec    *Executor
	sum     *Summarizer
	log     zerolog.Logger
	limit   int
	onStage func(id string, stage Stage)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithDisplayLimit overrides DefaultDisplayLimit for fetched rows.
func WithDisplayLimit(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

// WithStageHook registers a callback invoked on every stage transition,
// including StageCompleted. Async jobs use it to expose progress.
func WithStageHook(fn func(id string, stage Stage)) Option {
	return func(o *Orchestrator) { o.onStage = fn }
}

// New wires the pipeline stages around one completer and one sink.
func New(model llm.Completer, db Querier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:   NewGenerator(model),
		sum:   NewSummarizer(model),
		log:   zerolog.Nop(),
		limit: DefaultDisplayLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.exec = NewExecutor(db, o.limit)
	return o
}

// Ask runs the full pipeline for one question. The returned outcome is
// never nil; on failure it carries the artifacts produced before the
// failing stage and the returned error equals outcome.Err.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*Outcome, error) {
	out := &Outcome{
		ID:       uuid.NewString(),
		Question: question,
		Stage:    StageReceived,
	}
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	log := o.log.With().Str("query_id", out.ID).Logger()

	o.advance(out, StageGenerating)
	sql, err := o.gen.Generate(ctx, question)
	if err != nil {
		return o.fail(log, out, err)
	}
	out.SQL = sql
	log.Debug().Str("sql", sql).Msg("generated statement")

	o.advance(out, StageValidating)
	verdict, err := Validate(sql)
	if err != nil {
		return o.fail(log, out, err)
	}
	out.Verdict = verdict

	o.advance(out, StageExecuting)
	res, err := o.exec.Execute(ctx, verdict.SQL)
	if err != nil {
		return o.fail(log, out, err)
	}
	out.Result = res

	o.advance(out, StageSummarizing)
	analysis, err := o.sum.Summarize(ctx, question, verdict.SQL, res)
	if err != nil {
		// Partial success: the executed result stands without analysis.
		out.SummaryErr = err
		log.Warn().Err(err).Msg("analysis unavailable")
	} else {
		out.Analysis = analysis
	}

	o.advance(out, StageCompleted)
	log.Info().
		Int("rows", len(res.Rows)).
		Bool("rewritten", verdict.Rewritten).
		Dur("took", time.Since(start)).
		Msg("question answered")
	return out, nil
}

func (o *Orchestrator) advance(out *Outcome, stage Stage) {
	out.Stage = stage
	if o.onStage != nil {
		o.onStage(out.ID, stage)
	}
}

func (o *Orchestrator) fail(log zerolog.Logger, out *Outcome, err error) (*Outcome, error) {
	out.Err = err
	log.Warn().Err(err).Str("stage", string(out.Stage)).Msg("question failed")
	return out, err
}
