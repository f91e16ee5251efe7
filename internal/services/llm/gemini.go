package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/perlustro/perlustro/internal/common"
	"github.com/perlustro/perlustro/internal/interfaces"
)

// GeminiClient runs grounded web searches through the Gemini API's
// GoogleSearch tool. The synthesized answer plus the grounding source URLs
// come back as one SearchResult.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewGeminiClient creates the client from configuration.
func NewGeminiClient(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required (set GEMINI_API_KEY or llm.gemini.api_key)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &GeminiClient{client: client, model: model, timeout: timeout, logger: logger}, nil
}

// GenerateWithSearch answers the prompt with GoogleSearch grounding.
func (g *GeminiClient) GenerateWithSearch(ctx context.Context, prompt string) (*interfaces.SearchResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(
		callCtx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("gemini search failed: %w", err)
	}

	result := &interfaces.SearchResult{}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				result.Text += part.Text
			}
		}
		if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
			for _, chunk := range gm.GroundingChunks {
				if chunk.Web != nil && chunk.Web.URI != "" {
					result.Sources = append(result.Sources, chunk.Web.URI)
				}
			}
		}
	}

	if result.Text == "" {
		return nil, fmt.Errorf("gemini search returned no content")
	}

	g.logger.Debug().
		Str("model", g.model).
		Int("sources", len(result.Sources)).
		Dur("duration", time.Since(start)).
		Msg("Grounded search complete")
	return result, nil
}
