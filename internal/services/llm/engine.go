package llm

import (
	"context"

	"github.com/perlustro/perlustro/internal/interfaces"
)

// Engine composes the two providers behind the single ReasoningEngine
// surface: Claude for structured generation, Gemini for grounded search.
type Engine struct {
	claude *ClaudeClient
	gemini *GeminiClient
}

var _ interfaces.ReasoningEngine = (*Engine)(nil)

// NewEngine wires the providers together.
func NewEngine(claude *ClaudeClient, gemini *GeminiClient) *Engine {
	return &Engine{claude: claude, gemini: gemini}
}

func (e *Engine) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, out any) error {
	return e.claude.GenerateStructured(ctx, prompt, schema, out)
}

func (e *Engine) GenerateWithSearch(ctx context.Context, prompt string) (*interfaces.SearchResult, error) {
	return e.gemini.GenerateWithSearch(ctx, prompt)
}
