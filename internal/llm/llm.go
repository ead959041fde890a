// Package llm wraps the reasoning service behind a one-shot completion
// interface so pipeline stages can be tested with canned responses.
package llm

import (
	"context"
	"errors"
)

// ErrEmpty reports that the model returned no usable text.
var ErrEmpty = errors.New("empty model response")

// Request is a single completion call.
type Request struct {
	System      string  // system instruction, empty for none
	Prompt      string  // user turn
	Temperature float32 // 0 keeps the service default
}

// Completer produces one completion per request. Implementations must be
// safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
