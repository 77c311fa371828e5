// Package config loads the contractlens settings: built-in defaults, then an
// optional yaml or toml file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"contractlens/llm"
	"contractlens/llm/providers"
	"contractlens/llm/vector"
)

// Index backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Embedding providers
const (
	EmbeddingLocal  = "local"
	EmbeddingOpenAI = "openai"
)

// Config is the root configuration
type Config struct {
	Segmenter SegmenterConfig `yaml:"segmenter" toml:"segmenter"`
	Index     IndexConfig     `yaml:"index" toml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Reasoning ReasoningConfig `yaml:"reasoning" toml:"reasoning"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Tracing   TracingConfig   `yaml:"tracing" toml:"tracing"`
	Workers   int             `yaml:"workers" toml:"workers"`
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
	LogFormat string          `yaml:"log_format" toml:"log_format"`
}

// SegmenterConfig sizes the chunks, in bytes
type SegmenterConfig struct {
	ChunkSize int `yaml:"chunk_size" toml:"chunk_size"`
	Overlap   int `yaml:"overlap" toml:"overlap"`
}

// IndexConfig selects the vector index
type IndexConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	// SnapshotPath is where the memory backend persists. Empty means
	// <data_dir>/vectors.json.
	SnapshotPath string      `yaml:"snapshot_path" toml:"snapshot_path"`
	Dim          int         `yaml:"dim" toml:"dim"`
	BatchSize    int         `yaml:"batch_size" toml:"batch_size"`
	Redis        RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig is the Redis connection and HNSW tuning
type RedisConfig struct {
	Addr           string `yaml:"addr" toml:"addr"`
	Password       string `yaml:"password" toml:"password"`
	DB             int    `yaml:"db" toml:"db"`
	PoolSize       int    `yaml:"pool_size" toml:"pool_size"`
	Prefix         string `yaml:"prefix" toml:"prefix"`
	EFConstruction int    `yaml:"ef_construction" toml:"ef_construction"`
	M              int    `yaml:"m" toml:"m"`
}

// EmbeddingConfig selects the embedder
type EmbeddingConfig struct {
	Provider string `yaml:"provider" toml:"provider"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	Model    string `yaml:"model" toml:"model"`
}

// ReasoningConfig selects the reasoning backend
type ReasoningConfig struct {
	Provider      string  `yaml:"provider" toml:"provider"`
	MistralAPIKey string  `yaml:"mistral_api_key" toml:"mistral_api_key"`
	OpenAIAPIKey  string  `yaml:"openai_api_key" toml:"openai_api_key"`
	GeminiAPIKey  string  `yaml:"gemini_api_key" toml:"gemini_api_key"`
	APIKey        string  `yaml:"api_key" toml:"api_key"`
	BaseURL       string  `yaml:"base_url" toml:"base_url"`
	Model         string  `yaml:"model" toml:"model"`
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second"`
}

// StorageConfig locates the database and blobs
type StorageConfig struct {
	DataDir string `yaml:"data_dir" toml:"data_dir"`
}

// TracingConfig enables cozeloop tracing when both values are set
type TracingConfig struct {
	CozeloopToken     string `yaml:"cozeloop_token" toml:"cozeloop_token"`
	CozeloopWorkspace string `yaml:"cozeloop_workspace" toml:"cozeloop_workspace"`
}

// Default returns the built-in configuration
func Default() *Config {
	chunks := vector.DefaultChunkConfig()
	redis := vector.DefaultRedisConfig()
	return &Config{
		Segmenter: SegmenterConfig{ChunkSize: chunks.ChunkSize, Overlap: chunks.ChunkOverlap},
		Index: IndexConfig{
			Backend:   BackendMemory,
			Dim:       vector.DefaultEmbeddingDim,
			BatchSize: vector.DefaultBatchSize,
			Redis: RedisConfig{
				Addr:           redis.Addr,
				PoolSize:       redis.PoolSize,
				Prefix:         redis.KeyPrefix,
				EFConstruction: redis.EFConstruction,
				M:              redis.M,
			},
		},
		Embedding: EmbeddingConfig{Provider: EmbeddingLocal},
		Reasoning: ReasoningConfig{Provider: string(providers.ProviderAuto), RatePerSecond: 2},
		Storage:   StorageConfig{DataDir: ".contractlens"},
		Workers:   4,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds the configuration. path may be empty; a missing file is an
// error only when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return llm.InvalidConfig("config file %s does not exist", path)
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return llm.InvalidConfig("unsupported config format %q, want .yaml, .yml or .toml", ext)
	}
	if err != nil {
		return llm.NewAppError("CONFIG_ERROR", fmt.Sprintf("failed to parse %s", path), errors.Join(llm.ErrInvalidConfig, err))
	}
	return nil
}

// envSource reads overrides, recording the first malformed value
type envSource struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envSource) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *envSource) setInt(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if e.err == nil {
			e.err = llm.InvalidConfig("%s must be an integer, got %q", key, v)
		}
		return
	}
	*dst = n
}

func (e *envSource) setFloat(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		if e.err == nil {
			e.err = llm.InvalidConfig("%s must be a number, got %q", key, v)
		}
		return
	}
	*dst = f
}

func (c *Config) applyEnv() error {
	return c.applyEnvFrom(os.LookupEnv)
}

func (c *Config) applyEnvFrom(lookup func(string) (string, bool)) error {
	e := &envSource{lookup: lookup}

	e.setInt("CHUNK_SIZE", &c.Segmenter.ChunkSize)
	e.setInt("CHUNK_OVERLAP", &c.Segmenter.Overlap)

	e.setString("VECTOR_BACKEND", &c.Index.Backend)
	e.setString("VECTOR_SNAPSHOT", &c.Index.SnapshotPath)
	e.setInt("VECTOR_DIM", &c.Index.Dim)
	e.setInt("EMBED_BATCH_SIZE", &c.Index.BatchSize)

	e.setString("REDIS_ADDR", &c.Index.Redis.Addr)
	e.setString("REDIS_PASSWORD", &c.Index.Redis.Password)
	e.setInt("REDIS_DB", &c.Index.Redis.DB)
	e.setInt("REDIS_POOL_SIZE", &c.Index.Redis.PoolSize)
	e.setString("VECTOR_INDEX_PREFIX", &c.Index.Redis.Prefix)
	e.setInt("HNSW_EF_CONSTRUCTION", &c.Index.Redis.EFConstruction)
	e.setInt("HNSW_M", &c.Index.Redis.M)

	e.setString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	e.setString("EMBEDDING_MODEL_API_KEY", &c.Embedding.APIKey)
	e.setString("EMBEDDING_MODEL_BASE_URL", &c.Embedding.BaseURL)
	e.setString("EMBEDDING_MODEL", &c.Embedding.Model)

	e.setString("REASONING_PROVIDER", &c.Reasoning.Provider)
	e.setString("MISTRAL_API_KEY", &c.Reasoning.MistralAPIKey)
	e.setString("OPENAI_API_KEY", &c.Reasoning.OpenAIAPIKey)
	e.setString("GEMINI_API_KEY", &c.Reasoning.GeminiAPIKey)
	e.setString("API_KEY", &c.Reasoning.APIKey)
	e.setString("BASE_URL", &c.Reasoning.BaseURL)
	e.setString("MODEL", &c.Reasoning.Model)
	e.setFloat("LLM_RATE_PER_SECOND", &c.Reasoning.RatePerSecond)

	e.setString("DATA_DIR", &c.Storage.DataDir)

	e.setString("COZE_LOOP_API_TOKEN", &c.Tracing.CozeloopToken)
	e.setString("COZELOOP_WORKSPACE_ID", &c.Tracing.CozeloopWorkspace)

	e.setInt("WORKERS", &c.Workers)
	e.setString("LOG_LEVEL", &c.LogLevel)
	e.setString("LOG_FORMAT", &c.LogFormat)

	return e.err
}

// Validate rejects settings that cannot work
func (c *Config) Validate() error {
	if err := c.ChunkConfig().Validate(); err != nil {
		return err
	}

	switch c.Index.Backend {
	case BackendMemory, BackendRedis:
	default:
		return llm.InvalidConfig("unknown vector backend %q, want memory or redis", c.Index.Backend)
	}
	if c.Index.Dim <= 0 {
		return llm.InvalidConfig("vector dimension must be positive, got %d", c.Index.Dim)
	}
	if c.Index.BatchSize <= 0 {
		return llm.InvalidConfig("embedding batch size must be positive, got %d", c.Index.BatchSize)
	}

	switch c.Embedding.Provider {
	case EmbeddingLocal:
	case EmbeddingOpenAI:
		if c.Embedding.APIKey == "" {
			return llm.InvalidConfig("embedding provider openai requires EMBEDDING_MODEL_API_KEY")
		}
	default:
		return llm.InvalidConfig("unknown embedding provider %q, want local or openai", c.Embedding.Provider)
	}

	switch p := providers.Provider(c.Reasoning.Provider); p {
	case providers.ProviderAuto, providers.ProviderRules:
	case providers.ProviderMistral, providers.ProviderOpenAI, providers.ProviderGemini, providers.ProviderCompatible:
		if c.Reasoning.key(p) == "" {
			return llm.InvalidConfig("reasoning provider %s has no API key", p)
		}
		if p == providers.ProviderCompatible && (c.Reasoning.BaseURL == "" || c.Reasoning.Model == "") {
			return llm.InvalidConfig("reasoning provider compatible requires BASE_URL and MODEL")
		}
	default:
		return llm.InvalidConfig("unknown reasoning provider %q", c.Reasoning.Provider)
	}
	if c.Reasoning.RatePerSecond < 0 {
		return llm.InvalidConfig("reasoning rate must be >= 0, got %v", c.Reasoning.RatePerSecond)
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return llm.InvalidConfig("data directory must be set")
	}
	if c.Workers <= 0 {
		return llm.InvalidConfig("workers must be positive, got %d", c.Workers)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return llm.InvalidConfig("unknown log format %q, want text or json", c.LogFormat)
	}
	return nil
}

func (r ReasoningConfig) key(p providers.Provider) string {
	switch p {
	case providers.ProviderMistral:
		return r.MistralAPIKey
	case providers.ProviderOpenAI:
		return r.OpenAIAPIKey
	case providers.ProviderGemini:
		return r.GeminiAPIKey
	default:
		return r.APIKey
	}
}

// ChunkConfig returns the segmenter settings
func (c *Config) ChunkConfig() vector.ChunkConfig {
	return vector.ChunkConfig{ChunkSize: c.Segmenter.ChunkSize, ChunkOverlap: c.Segmenter.Overlap}
}

// SnapshotPath returns the memory index snapshot location
func (c *Config) SnapshotPath() string {
	if c.Index.SnapshotPath != "" {
		return c.Index.SnapshotPath
	}
	return filepath.Join(c.Storage.DataDir, "vectors.json")
}

// BlobDir returns the directory holding uploaded files
func (c *Config) BlobDir() string {
	return filepath.Join(c.Storage.DataDir, "blobs")
}

// RedisConfig returns the redis index settings
func (c *Config) RedisConfig() vector.RedisConfig {
	r := c.Index.Redis
	return vector.RedisConfig{
		Addr:           r.Addr,
		Password:       r.Password,
		DB:             r.DB,
		PoolSize:       r.PoolSize,
		KeyPrefix:      r.Prefix,
		VectorDim:      c.Index.Dim,
		EFConstruction: r.EFConstruction,
		M:              r.M,
	}
}

// ProviderConfig returns the reasoning provider selection
func (c *Config) ProviderConfig() providers.ReasoningConfig {
	r := c.Reasoning
	return providers.ReasoningConfig{
		Provider:      providers.Provider(r.Provider),
		MistralAPIKey: r.MistralAPIKey,
		OpenAIAPIKey:  r.OpenAIAPIKey,
		GeminiAPIKey:  r.GeminiAPIKey,
		APIKey:        r.APIKey,
		BaseURL:       r.BaseURL,
		Model:         r.Model,
	}
}

// EmbeddingModelConfig returns the remote embedder settings
func (c *Config) EmbeddingModelConfig() *providers.EmbeddingConfig {
	return &providers.EmbeddingConfig{
		APIKey:     c.Embedding.APIKey,
		BaseURL:    c.Embedding.BaseURL,
		Model:      c.Embedding.Model,
		Dimensions: c.Index.Dim,
	}
}
