package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gemini "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client  *gemini.Client
	modelID string
}

// NewGeminiClient creates a Gemini-backed generation client.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.0-flash"
	}

	client, err := gemini.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("genai: failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Generate sends one completion request to Gemini.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := c.client.GenerativeModel(c.modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = gemini.NewUserContent(gemini.Text(req.System))
	}

	resp, err := model.GenerateContent(ctx, gemini.Text(req.Prompt))
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 {
		return Response{}, ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Response{}, ErrEmptyResponse
	}

	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(gemini.Text); ok {
			out.WriteString(string(text))
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{
		Text:      text,
		Truncated: candidate.FinishReason == gemini.FinishReasonMaxTokens,
	}, nil
}

// Close releases resources held by the underlying client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code == 503 {
			return fmt.Errorf("genai: gemini %d: %w", apiErr.Code, ErrOverloaded)
		}
		return fmt.Errorf("genai: gemini completion failed: %w", err)
	}
	if classifyStatusText(err.Error()) {
		return fmt.Errorf("genai: gemini overloaded: %w", ErrOverloaded)
	}
	return fmt.Errorf("genai: gemini completion failed: %w", err)
}
