package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Batching splits oversized inputs into provider-sized batches and merges
// the results back in input order. A limiter spaces out consecutive batch
// calls to stay under provider rate limits.
type Batching struct {
	inner     Embedder
	batchSize int
	limiter   *rate.Limiter
}

func NewBatching(inner Embedder, batchSize int) *Batching {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Batching{
		inner:     inner,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
	}
}

func (b *Batching) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for embed slot: %w", err)
		}

		vectors, err := b.inner.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", end-start, len(vectors))
		}
		results = append(results, vectors...)
	}

	return results, nil
}

var _ Embedder = (*Batching)(nil)
