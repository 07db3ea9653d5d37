package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the loaded configuration and returns every violation found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Pipeline.ChunkSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "pipeline.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}
	if c.Pipeline.TopK < 1 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.top_k",
			Message: "top_k must be positive",
		})
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.max_retries",
			Message: "max_retries must be non-negative",
		})
	}
	if c.Pipeline.CallTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.call_timeout",
			Message: "call_timeout must be positive",
		})
	}

	if c.Embeddings.Dimension < 1 {
		errs = append(errs, ValidationError{
			Field:   "embeddings.dimension",
			Message: "dimension must be positive",
		})
	}
	if c.Embeddings.BatchSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "embeddings.batch_size",
			Message: "batch_size must be positive",
		})
	}
	if c.Embeddings.Provider != ProviderOllama && c.Embeddings.Provider != ProviderOpenAI {
		errs = append(errs, ValidationError{
			Field:   "embeddings.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Embeddings.Provider),
		})
	}

	if c.LLM.Provider != ProviderOllama && c.LLM.Provider != ProviderOpenAI {
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}
	if c.LLM.MaxContextChars < 1 {
		errs = append(errs, ValidationError{
			Field:   "llm.max_context_chars",
			Message: "max_context_chars must be positive",
		})
	}

	switch c.Index.Provider {
	case IndexPgvector:
	case IndexQdrant:
		if c.Index.QdrantURL == "" {
			errs = append(errs, ValidationError{
				Field:   "index.qdrant_url",
				Message: "qdrant_url is required for the qdrant index",
			})
		} else if _, err := url.Parse(c.Index.QdrantURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "index.qdrant_url",
				Message: "invalid qdrant URL",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "index.provider",
			Message: fmt.Sprintf("unknown index provider: %s", c.Index.Provider),
		})
	}

	if c.Storage.MaxUploadBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_upload_bytes",
			Message: "max_upload_bytes must be positive",
		})
	}

	return errs
}
