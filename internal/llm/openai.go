package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider generates text through the OpenAI chat completions API or a
// compatible endpoint.
type OpenAIProvider struct {
	llm   *openai.LLM
	model string
}

func NewOpenAIProvider(apiKey, baseURL, model string, client *http.Client) (*OpenAIProvider, error) {
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL = strings.TrimRight(baseURL, "/"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if client != nil {
		opts = append(opts, openai.WithHTTPClient(client))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	return &OpenAIProvider{llm: m, model: model}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// OpenAIEmbedder embeds queries with an OpenAI embedding model.
type OpenAIEmbedder struct {
	embedder *embeddings.EmbedderImpl
}

func NewOpenAIEmbedder(apiKey, baseURL, model string, client *http.Client) (*OpenAIEmbedder, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if model != "" {
		opts = append(opts, openai.WithEmbeddingModel(model))
	}
	if baseURL = strings.TrimRight(baseURL, "/"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if client != nil {
		opts = append(opts, openai.WithHTTPClient(client))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings client: %w", err)
	}
	e, err := embeddings.NewEmbedder(m)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: e}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}
