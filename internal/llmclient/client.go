// Package llmclient wraps github.com/anthropics/anthropic-sdk-go with the
// three prompt roles the pipeline needs: translating a source CI config to a
// GitHub Actions workflow, semantically verifying a translation's fidelity,
// and repairing a workflow from a runtime error. Prompt content itself is
// out of scope here; this package only owns call shape and timeouts.
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("llmclient:client")

const (
	defaultModel = "claude-sonnet-4-5"

	// translateTimeout and verifyTimeout bound the two fast roles.
	translateTimeout = 120 * time.Second
	verifyTimeout    = 90 * time.Second

	// fixTimeout is long because reasoning-heavy repair calls run slower,
	// mirroring the original repair agent's 300-second budget.
	fixTimeout = 5 * time.Minute

	// fixTemperature keeps repair output close to deterministic; the repair
	// agent is making a targeted patch, not composing prose.
	fixTemperature = 0.1
)

// Client issues chat completions against the Anthropic Messages API.
type Client struct {
	anthropic anthropic.Client
	model     anthropic.Model
}

// New builds a Client. baseURL overrides the API host when non-empty, used
// for routing through a proxy in restricted environments.
func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		anthropic: anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
	}
}

// complete issues a single-turn message exchange and returns the
// concatenated text of the response's content blocks.
func (c *Client) complete(ctx context.Context, timeout time.Duration, maxTokens int64, temperature float64, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: messages.new: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("llmclient: empty response content")
	}
	return out, nil
}

// Translate asks the model to convert a source CI config to a GitHub Actions
// workflow, returning the raw response text (fence-stripping and YAML
// validation belong to the caller).
func (c *Client) Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	log.Printf("translate: system=%dB user=%dB", len(systemPrompt), len(userPrompt))
	return c.complete(ctx, translateTimeout, 8192, 0.2, systemPrompt, userPrompt)
}

// SemanticVerify asks the model to judge a translation's fidelity, returning
// the raw JSON verdict text for the caller to parse and schema-validate.
func (c *Client) SemanticVerify(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	log.Printf("semantic-verify: system=%dB user=%dB", len(systemPrompt), len(userPrompt))
	return c.complete(ctx, verifyTimeout, 2048, 0.0, systemPrompt, userPrompt)
}

// Fix asks the model to repair a workflow given a runtime error, returning
// the raw response text.
func (c *Client) Fix(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	log.Printf("fix: system=%dB user=%dB", len(systemPrompt), len(userPrompt))
	return c.complete(ctx, fixTimeout, 8192, fixTemperature, systemPrompt, userPrompt)
}
