package ingest

import (
	"errors"
	"fmt"
)

// errUnparsable marks a source value that could not be coerced to its
// column kind.
var errUnparsable = errors.New("unparsable value")

// SourceUnreadableError reports a source file that could not be opened or
// whose metadata could not be parsed.
type SourceUnreadableError struct {
	Path string
	Err  error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("source unreadable: %s: %v", e.Path, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error {
	return e.Err
}

// BatchError records one batch that failed to commit to the sink.
type BatchError struct {
	Index  int   // zero-based batch index
	Offset int64 // absolute row offset of the batch's first row
	Rows   int   // rows the batch carried
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (rows %d-%d) failed: %v", e.Index, e.Offset, e.Offset+int64(e.Rows)-1, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
