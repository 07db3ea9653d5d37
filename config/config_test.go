package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fabfab/doc-chat/config"
)

// clearAmbientEnv neutralizes variables that may leak in from the host
// environment. Empty values are ignored by the env merge.
func clearAmbientEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HTTP_ADDR", "POSTGRES_DSN", "OLLAMA_HOST", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"EMBEDDINGS_PROVIDER", "EMBEDDINGS_MODEL", "EMBEDDINGS_DIMENSION",
		"LLM_PROVIDER", "LLM_MODEL", "INDEX_PROVIDER",
		"QDRANT_URL", "QDRANT_API_KEY", "QDRANT_COLLECTION", "UPLOAD_DIR",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAmbientEnv(t)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing-on-purpose.yaml"))
	require.Error(t, err, "explicit missing file should fail")

	cfg, err = config.Load("")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, config.ProviderOpenAI, cfg.Embeddings.Provider)
	require.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	require.Equal(t, 1536, cfg.Embeddings.Dimension)
	require.Equal(t, 100, cfg.Embeddings.BatchSize)
	require.Equal(t, config.ProviderOpenAI, cfg.LLM.Provider)
	require.Equal(t, float32(0.3), cfg.LLM.Temperature)
	require.Equal(t, config.IndexPgvector, cfg.Index.Provider)
	require.Equal(t, 500, cfg.Pipeline.ChunkSize)
	require.Equal(t, 50, cfg.Pipeline.ChunkOverlap)
	require.Equal(t, 3, cfg.Pipeline.TopK)
	require.Equal(t, 3, cfg.Pipeline.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.Pipeline.CallTimeout)
	require.Equal(t, "uploads", cfg.Storage.UploadDir)
	require.Equal(t, int64(10<<20), cfg.Storage.MaxUploadBytes)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearAmbientEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
embeddings:
  provider: ollama
  model: nomic-embed-text
  dimension: 768
pipeline:
  chunk_size: 800
  top_k: 5
`), 0o644))

	t.Setenv("EMBEDDINGS_DIMENSION", "384")
	t.Setenv("LLM_PROVIDER", "ollama")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.HTTPAddr)
	require.Equal(t, config.ProviderOllama, cfg.Embeddings.Provider)
	require.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	require.Equal(t, 384, cfg.Embeddings.Dimension, "env wins over file")
	require.Equal(t, config.ProviderOllama, cfg.LLM.Provider)
	require.Equal(t, 800, cfg.Pipeline.ChunkSize)
	require.Equal(t, 5, cfg.Pipeline.TopK)
	require.Equal(t, 50, cfg.Pipeline.ChunkOverlap, "default still applies")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearAmbientEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: [unterminated"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	clearAmbientEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Empty(t, cfg.Validate())
}

func TestValidateReportsEveryViolation(t *testing.T) {
	clearAmbientEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Pipeline.ChunkSize = 100
	cfg.Pipeline.ChunkOverlap = 100
	cfg.Pipeline.TopK = 0
	cfg.LLM.Temperature = 3.5
	cfg.Embeddings.Provider = "hal9000"

	errs := cfg.Validate()
	fields := make(map[string]bool, len(errs))
	for _, e := range errs {
		fields[e.Field] = true
	}
	require.True(t, fields["pipeline.chunk_overlap"])
	require.True(t, fields["pipeline.top_k"])
	require.True(t, fields["llm.temperature"])
	require.True(t, fields["embeddings.provider"])
	require.Len(t, errs, 4)
}

func TestValidateQdrantNeedsURL(t *testing.T) {
	clearAmbientEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Index.Provider = config.IndexQdrant
	cfg.Index.QdrantURL = ""

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	require.Equal(t, "index.qdrant_url", errs[0].Field)

	cfg.Index.QdrantURL = "http://localhost:6333"
	require.Empty(t, cfg.Validate())
}

func TestValidationErrorString(t *testing.T) {
	err := config.ValidationError{Field: "pipeline.top_k", Message: "top_k must be positive"}
	require.Equal(t, "pipeline.top_k: top_k must be positive", err.Error())
}
