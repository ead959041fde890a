package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashirbekov/txinsights/internal/llm"
	"github.com/ashirbekov/txinsights/internal/sink"
)

// analysisRowLimit caps the projection serialized into the analysis prompt
// so large results stay inside the model's context.
const analysisRowLimit = 100

// noDataText is the fixed analysis for empty results. No model call is made
// for it.
const noDataText = "Query executed successfully. No rows returned."

// Summarizer turns an executed result into a short analysis with a second
// model call.
type Summarizer struct {
	llm llm.Completer
}

func NewSummarizer(c llm.Completer) *Summarizer {
	return &Summarizer{llm: c}
}

// Summarize asks the model for insights over at most analysisRowLimit rows.
// Empty results short-circuit to noDataText. Failures surface as
// ErrSummaryUnavailable; callers treat them as non-fatal.
func (s *Summarizer) Summarize(ctx context.Context, question, sql string, res *sink.QueryResult) (string, error) {
	if res == nil || res.Empty() {
		return noDataText, nil
	}

	text, err := s.llm.Complete(ctx, llm.Request{
		System:      analysisSystemPrompt,
		Prompt:      analysisPrompt(question, sql, formatResults(res)),
		Temperature: analysisTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	return strings.TrimSpace(text), nil
}

// formatResults renders rows as a pipe-separated table with NULL for
// missing values, capped at analysisRowLimit rows.
func formatResults(res *sink.QueryResult) string {
	if len(res.Columns) == 0 {
		return "No columns returned."
	}

	var b strings.Builder
	n := len(res.Rows)
	plural := "s"
	if n == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "Query Results (%d row%s):\n\n", n, plural)

	b.WriteString(strings.Join(res.Columns, " | "))
	b.WriteByte('\n')
	width := 3 * (len(res.Columns) - 1)
	for _, c := range res.Columns {
		width += len(c)
	}
	b.WriteString(strings.Repeat("-", width))
	b.WriteByte('\n')

	rows := res.Rows
	if len(rows) > analysisRowLimit {
		rows = rows[:analysisRowLimit]
	}
	for _, row := range rows {
		vals := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			if v, ok := row[c]; ok && v != nil {
				vals[i] = fmt.Sprint(v)
			} else {
				vals[i] = "NULL"
			}
		}
		b.WriteString(strings.Join(vals, " | "))
		b.WriteByte('\n')
	}
	if n > analysisRowLimit {
		fmt.Fprintf(&b, "\n... (showing first %d of %d rows)\n", analysisRowLimit, n)
	}
	return b.String()
}
