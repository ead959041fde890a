package query

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationUnavailable wraps reasoning-service failures during SQL
	// generation.
	ErrGenerationUnavailable = errors.New("sql generation unavailable")

	// ErrGenerationEmpty reports that the model produced no SQL to run.
	ErrGenerationEmpty = errors.New("sql generation returned nothing")

	// ErrSummaryUnavailable reports that result analysis failed. It is
	// non-fatal: the executed result still stands.
	ErrSummaryUnavailable = errors.New("result analysis unavailable")
)

// RejectedError reports a question or statement turned away before
// execution. Reason names the offending keyword for denylist hits, or the
// refusal wording for off-topic questions.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "query rejected: " + e.Reason
}

// ExecutionError reports a statement the sink failed to run.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
