package interfaces

import "context"

// SearchResult is the outcome of a grounded web search: synthesized text
// plus the source URLs the model consulted.
type SearchResult struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// ReasoningEngine is the pipeline's view of the LLM providers. Structured
// generation validates the model's JSON against the supplied schema before
// unmarshalling into out; unvalidatable output is an error, which the
// analyzers convert into degraded results.
type ReasoningEngine interface {
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any, out any) error
	GenerateWithSearch(ctx context.Context, prompt string) (*SearchResult, error)
}
