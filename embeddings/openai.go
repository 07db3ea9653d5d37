package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/doc-chat/fault"
)

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, classifyOpenAIError("create openai embeddings", err)
	}

	results := make([][]float32, len(resp.Data))
	for i, datum := range resp.Data {
		if e.dimension > 0 && len(datum.Embedding) != e.dimension {
			return nil, fmt.Errorf("openai embedding dimension mismatch: expected %d, got %d", e.dimension, len(datum.Embedding))
		}
		results[i] = datum.Embedding
	}

	return results, nil
}

// classifyOpenAIError maps provider failures onto the shared taxonomy so the
// pipeline retries rate limits and timeouts but not auth failures.
func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %v: %w", op, err, fault.ErrRateLimited)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %v: %w", op, err, fault.ErrAuth)
		}
	}
	if timeoutErr := fault.Timeout(err); errors.Is(timeoutErr, fault.ErrNetworkTimeout) {
		return fmt.Errorf("%s: %v: %w", op, err, fault.ErrNetworkTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
