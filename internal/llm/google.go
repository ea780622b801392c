package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const defaultGeminiModel = "gemini-2.0-flash-001"

// GoogleProvider generates text with Gemini.
type GoogleProvider struct {
	llm *googleai.GoogleAI
}

func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	opts := []googleai.Option{
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	}
	m, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GoogleProvider{llm: m}, nil
}

func (p *GoogleProvider) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(out), nil
}
