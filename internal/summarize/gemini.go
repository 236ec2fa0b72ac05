package summarize

import (
	"context"
	"fmt"

	"github.com/MimeLyc/docbrief/internal/pipeline"
	"google.golang.org/genai"
)

// GeminiClient is the alternative summarizer backend, selected with
// SUMMARIZER_PROVIDER=gemini.
type GeminiClient struct {
	apiKey string
	model  string
}

func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{apiKey: apiKey, model: model}, nil
}

func (g *GeminiClient) Summarize(ctx context.Context, text string, listener pipeline.Context) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	prompt := systemPrompt + "\n\n" + BuildPrompt(text, listener)
	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	var narrative string
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			narrative += part.Text
		}
	}
	if narrative == "" {
		return "", fmt.Errorf("empty narrative from gemini")
	}
	return narrative, nil
}
