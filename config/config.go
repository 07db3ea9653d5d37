// Package config loads application configuration from an optional YAML file,
// merges environment overrides, applies defaults, and validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	IndexPgvector = "pgvector"
	IndexQdrant   = "qdrant"
)

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type LLMConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

type IndexConfig struct {
	Provider         string `yaml:"provider"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

type PipelineConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
	TopK         int           `yaml:"top_k"`
	MaxRetries   int           `yaml:"max_retries"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
}

type StorageConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	Embeddings EmbeddingConfig `yaml:"embeddings"`
	LLM        LLMConfig       `yaml:"llm"`
	Index      IndexConfig     `yaml:"index"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Storage    StorageConfig   `yaml:"storage"`
}

// Load reads the config file at path (when it exists), merges environment
// variables on top, and fills in defaults. Pass "" to use config.yaml when
// present, or pure env/defaults otherwise.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	mergeEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func mergeEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Embeddings.Provider, "EMBEDDINGS_PROVIDER")
	setString(&cfg.Embeddings.Model, "EMBEDDINGS_MODEL")
	setInt(&cfg.Embeddings.Dimension, "EMBEDDINGS_DIMENSION")
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.Index.Provider, "INDEX_PROVIDER")
	setString(&cfg.Index.QdrantURL, "QDRANT_URL")
	setString(&cfg.Index.QdrantAPIKey, "QDRANT_API_KEY")
	setString(&cfg.Index.QdrantCollection, "QDRANT_COLLECTION")
	setString(&cfg.Storage.UploadDir, "UPLOAD_DIR")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "postgres://localhost:5432/doc-chat?sslmode=disable"
	}
	if cfg.OllamaHost == "" {
		cfg.OllamaHost = "http://localhost:11434"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = ProviderOpenAI
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 1536
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 100
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxContextChars == 0 {
		cfg.LLM.MaxContextChars = 12000
	}

	if cfg.Index.Provider == "" {
		cfg.Index.Provider = IndexPgvector
	}
	if cfg.Index.QdrantCollection == "" {
		cfg.Index.QdrantCollection = "doc_chat_chunks"
	}

	if cfg.Pipeline.ChunkSize == 0 {
		cfg.Pipeline.ChunkSize = 500
	}
	if cfg.Pipeline.ChunkOverlap == 0 {
		cfg.Pipeline.ChunkOverlap = 50
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 3
	}
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = 3
	}
	if cfg.Pipeline.CallTimeout == 0 {
		cfg.Pipeline.CallTimeout = 30 * time.Second
	}

	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "uploads"
	}
	if cfg.Storage.MaxUploadBytes == 0 {
		cfg.Storage.MaxUploadBytes = 10 << 20
	}
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}
