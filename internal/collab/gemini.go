package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dmaher/flowline/internal/port"
)

// GeminiCollaborator implements port.Collaborator on Google Gemini. Call
// failures are wrapped as transient so the engine's retry policy applies;
// malformed responses are not retryable.
type GeminiCollaborator struct {
	client *genai.Client
	config *Config
}

// NewGeminiCollaborator creates a Gemini-backed collaborator
func NewGeminiCollaborator(ctx context.Context, config *Config, apiKey string) (*GeminiCollaborator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiCollaborator{client: client, config: config}, nil
}

// Invoke runs one unit of work on the tier configured for the request's
// kind and reports the token-derived cost alongside the output.
func (c *GeminiCollaborator) Invoke(ctx context.Context, req port.InvokeRequest) (*port.InvokeResult, error) {
	tier := c.config.TierFor(req.Kind)
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(req.Payload))
	if err != nil {
		return nil, port.Transient("generate content", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}

	var cost float64
	if resp.UsageMetadata != nil {
		cost = c.config.cost(tier, resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount)
	}

	return &port.InvokeResult{
		Output: []byte(CleanJSONBlock(text)),
		Cost:   cost,
	}, nil
}

// Close releases resources held by the client
func (c *GeminiCollaborator) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from a Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
