package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashirbekov/txinsights/internal/llm"
)

// Generator turns a natural-language question into one candidate SQL
// statement.
type Generator struct {
	llm llm.Completer
}

func NewGenerator(c llm.Completer) *Generator {
	return &Generator{llm: c}
}

// Generate asks the model for SQL. Off-topic questions are turned away
// before a model call is spent. One question, one call: there are no
// retries, a failed call surfaces as ErrGenerationUnavailable.
func (g *Generator) Generate(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &RejectedError{Reason: "empty question"}
	}
	if !OnTopic(question) {
		return "", &RejectedError{Reason: rejectionText}
	}

	raw, err := g.llm.Complete(ctx, llm.Request{
		System:      generationSystemPrompt,
		Prompt:      question,
		Temperature: generationTemperature,
	})
	if err != nil {
		if errors.Is(err, llm.ErrEmpty) {
			return "", fmt.Errorf("%w: %v", ErrGenerationEmpty, err)
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, rejectionSentinel) {
		reason := strings.TrimSpace(strings.TrimPrefix(raw, rejectionSentinel))
		return "", &RejectedError{Reason: reason}
	}

	sql := ExtractSQL(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: no SQL in model response", ErrGenerationEmpty)
	}
	return sql, nil
}

// ExtractSQL strips the markdown fences and JSON wrapping the model
// sometimes adds despite instructions.
func ExtractSQL(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		// Drop the first line (``` or ```sql).
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
			lines = lines[:n-1]
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	// Some responses arrive as {"query": "..."} or {"sql": "..."}.
	if strings.HasPrefix(text, "{") {
		var wrapped map[string]any
		if err := json.Unmarshal([]byte(text), &wrapped); err == nil {
			if q, ok := wrapped["query"].(string); ok {
				text = q
			} else if q, ok := wrapped["sql"].(string); ok {
				text = q
			}
		}
	}

	return strings.TrimSpace(text)
}
