package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds credentials shared by the embedding and completion clients.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"-"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	// Dimension only applies to the hashing embedder; the openai embedder
	// derives it from the model name.
	Dimension int `yaml:"dimension"`
}

// CompletionConfig configures the chat-completion model.
type CompletionConfig struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	BatchSize  int    `yaml:"batch_size"`
}

// RetrievalConfig tunes search and prompt assembly.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	MaxCharsPerHit int     `yaml:"max_chars_per_hit"`
	FallbackChars  int     `yaml:"fallback_chars"`
}

// IngestConfig holds the default document root.
type IngestConfig struct {
	DataDir string `yaml:"data_dir"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Completion  CompletionConfig  `yaml:"completion"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Ingest      IngestConfig      `yaml:"ingest"`
}

// Load reads the YAML file at path, falling back to defaults when it is
// absent, then applies environment overrides.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	return cfg, cfg.Validate()
}

// LoadDefault tries ./config.yaml first, then ~/.config/unihelp/config.yaml.
// If neither exists, it writes defaults to ~/.config/unihelp/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg, userPath, cfg.Validate()
}

// Save writes the config to the given path, creating directories as needed.
// Secrets read from the environment are never written.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "openai", "hashing":
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("unknown vector store type %q", c.VectorStore.Type)
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return errors.New("qdrant vector store requires a url")
	}
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be 0-1, got %f", c.Retrieval.ScoreThreshold)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "unihelp", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			TimeoutSecs: 30,
		},
		Embedder:   EmbedderConfig{Type: "openai", Model: "text-embedding-3-small", BatchSize: 100, Dimension: 1536},
		Completion: CompletionConfig{Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 800},
		Chunker:    ChunkerConfig{ChunkSize: 512, ChunkOverlap: 50},
		VectorStore: VectorStoreConfig{
			Type: "qdrant",
			Qdrant: &QdrantConfig{
				URL:        "http://localhost:6333",
				Collection: "university_docs",
				BatchSize:  100,
			},
		},
		Retrieval: RetrievalConfig{TopK: 5, MaxCharsPerHit: 500, FallbackChars: 600},
		Ingest:    IngestConfig{DataDir: "docs/Data"},
	}
}

// applyConfigDefaults fills zero values left by a partial YAML file.
func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = def.OpenAI.BaseURL
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = def.OpenAI.APIKeyEnv
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = def.OpenAI.TimeoutSecs
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = def.Embedder.Model
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = def.Embedder.BatchSize
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = def.Completion.Model
	}
	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion.MaxTokens = def.Completion.MaxTokens
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = def.Chunker.ChunkSize
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = def.VectorStore.Type
	}
	if cfg.VectorStore.Qdrant == nil {
		cfg.VectorStore.Qdrant = def.VectorStore.Qdrant
	} else {
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = def.VectorStore.Qdrant.URL
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = def.VectorStore.Qdrant.Collection
		}
		if cfg.VectorStore.Qdrant.BatchSize == 0 {
			cfg.VectorStore.Qdrant.BatchSize = def.VectorStore.Qdrant.BatchSize
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.MaxCharsPerHit == 0 {
		cfg.Retrieval.MaxCharsPerHit = def.Retrieval.MaxCharsPerHit
	}
	if cfg.Retrieval.FallbackChars == 0 {
		cfg.Retrieval.FallbackChars = def.Retrieval.FallbackChars
	}
	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = def.Ingest.DataDir
	}
}

// applyEnv lets the environment override the file. The API key is only ever
// read from the environment.
func applyEnv(cfg *AppConfig) {
	cfg.OpenAI.APIKey = os.Getenv(cfg.OpenAI.APIKeyEnv)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.Embedder.Type = getEnv("EMBEDDER_TYPE", cfg.Embedder.Type)
	cfg.Embedder.Model = getEnv("EMBEDDING_MODEL", cfg.Embedder.Model)
	cfg.Completion.Model = getEnv("MODEL_NAME", cfg.Completion.Model)
	cfg.Chunker.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.Chunker.ChunkSize)
	cfg.Chunker.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunker.ChunkOverlap)
	cfg.VectorStore.Type = getEnv("VECTOR_STORE_TYPE", cfg.VectorStore.Type)
	if cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.URL = getEnv("QDRANT_URL", cfg.VectorStore.Qdrant.URL)
		cfg.VectorStore.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.VectorStore.Qdrant.APIKey)
		cfg.VectorStore.Qdrant.Collection = getEnv("QDRANT_COLLECTION_NAME", cfg.VectorStore.Qdrant.Collection)
	}
	cfg.Retrieval.TopK = getEnvInt("RETRIEVAL_TOP_K", cfg.Retrieval.TopK)
	cfg.Retrieval.ScoreThreshold = getEnvFloat("SCORE_THRESHOLD", cfg.Retrieval.ScoreThreshold)
	cfg.Ingest.DataDir = getEnv("UNIHELP_DATA_DIR", cfg.Ingest.DataDir)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
