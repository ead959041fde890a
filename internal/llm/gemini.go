package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the default Gemini model used for SQL generation and
// result analysis.
const DefaultModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini-backed completer.
type GeminiConfig struct {
	APIKey string // empty falls back to GEMINI_API_KEY / application credentials
	Model  string // empty uses DefaultModel
}

// Gemini is a Completer backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client. The client is lazy; no request is sent
// until Complete is called.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Complete sends exactly one generation request. There is no retry loop;
// callers decide whether a failure is fatal.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.Prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}
