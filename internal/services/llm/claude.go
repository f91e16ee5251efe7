package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/perlustro/perlustro/internal/common"
)

// ClaudeClient produces schema-validated JSON from Claude. All analyzer
// reasoning calls go through here, throttled by a shared per-minute limiter
// so parallel workers cannot blow the provider quota.
type ClaudeClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      arbor.ILogger
}

// NewClaudeClient creates the client from configuration.
func NewClaudeClient(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required (set ANTHROPIC_API_KEY or llm.claude.api_key)")
	}

	model := config.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := int64(config.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &ClaudeClient{
		client:      sdk.NewClient(option.WithAPIKey(config.APIKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
		timeout:     timeout,
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		logger:      logger,
	}, nil
}

// GenerateStructured asks the model for JSON conforming to schema, validates
// the response against it, and unmarshals into out.
func (c *ClaudeClient) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal response schema: %w", err)
	}

	system := fmt.Sprintf(`Respond with a single JSON document conforming to this JSON Schema and nothing else. No prose, no markdown fences.

%s`, schemaJSON)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	msg, err := c.client.Messages.New(callCtx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: sdk.Float(c.temperature),
		System:      []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic message failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw := []byte(extractJSON(text.String()))

	if err := validateAgainstSchema(schema, raw); err != nil {
		c.logger.Warn().
			Err(err).
			Str("model", c.model).
			Msg("Model output failed schema validation")
		return fmt.Errorf("structured output invalid: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal structured output: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("Structured generation complete")
	return nil
}
