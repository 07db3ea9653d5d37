// Package embeddings converts text batches into fixed-dimension vectors via
// a hosted provider.
package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/doc-chat/config"
)

// Embedder returns one vector per input string, order-preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewEmbedder builds the configured provider wrapped with batch splitting.
func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	var provider Embedder
	switch opts.Provider {
	case config.ProviderOllama:
		provider = NewOllamaEmbedder(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		provider = NewOpenAIEmbedder(opts)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}

	return NewBatching(provider, cfg.Embeddings.BatchSize), nil
}
