// Package llm provides text generation and embeddings behind small
// provider-agnostic interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/omnidesk/omnidesk/internal/config"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider names accepted in configuration.
const (
	ProviderGPT    = "gpt"
	ProviderGemini = "gemini"
)

// NormalizeProvider folds config aliases onto the two supported backends.
func NormalizeProvider(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "gpt", "openai":
		return ProviderGPT, nil
	case "gemini", "google", "googleai":
		return ProviderGemini, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
}

// NewGenerator builds the configured generation backend. The choice is made
// once at startup.
func NewGenerator(ctx context.Context, log *slog.Logger, cfg config.LLMConfig) (Generator, error) {
	provider, err := NormalizeProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: cfg.Timeout()}
	log.Info("llm generator selected", slog.String("provider", provider), slog.String("model", cfg.Model))
	switch provider {
	case ProviderGemini:
		return NewGoogleProvider(ctx, cfg.APIKey, cfg.Model)
	default:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, client)
	}
}

// NewEmbedder builds the embeddings client. Embeddings always use an
// OpenAI-compatible endpoint so stored vectors keep one dimension.
func NewEmbedder(cfg config.LLMConfig) (Embedder, error) {
	key := cfg.EmbeddingAPIKey
	if key == "" {
		key = cfg.APIKey
	}
	baseURL := cfg.EmbeddingURL
	if baseURL == "" {
		if p, _ := NormalizeProvider(cfg.Provider); p == ProviderGPT {
			baseURL = cfg.BaseURL
		}
	}
	return NewOpenAIEmbedder(key, baseURL, cfg.EmbeddingModel, &http.Client{Timeout: cfg.Timeout()})
}
