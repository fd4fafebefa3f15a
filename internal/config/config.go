package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"health-rag/internal/models"
)

const (
	BackendPostgres = "postgres"
	BackendChromem  = "chromem"

	DriverPgdriver = "pgdriver"
	DriverPq       = "postgres"

	ProviderHuggingFace = "huggingface"
	ProviderOllama      = "ollama"
	ProviderOpenAI      = "openai"

	PoolingAuto = "auto"
	PoolingNone = "none"
	PoolingMean = "mean"

	defaultHFBaseURL   = "https://api-inference.huggingface.co"
	defaultHFModel     = "sentence-transformers/all-MiniLM-L6-v2"
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "all-minilm"
	defaultTimeoutSecs = 30
	defaultChromemPath = "./chromemdb"
	defaultDataDir     = "health_data"
	defaultServerAddr  = ":8000"
	defaultLogLevel    = "info"
	defaultEmbedBatch  = 32
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Backend       string `yaml:"backend"`
	URL           string `yaml:"url"`
	Key           string `yaml:"key"`
	Driver        string `yaml:"driver"`
	Table         string `yaml:"table"`
	MatchFunction string `yaml:"match_function"`
	Debug         bool   `yaml:"debug"`
	ChromemPath   string `yaml:"chromem_path"`
	InMemory      bool   `yaml:"in_memory"`
	Collection    string `yaml:"collection"`
}

type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Token       string `yaml:"token"`
	BaseURL     string `yaml:"base_url"`
	Dimension   int    `yaml:"dimension"`
	Pooling     string `yaml:"pooling"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

type SearchConfig struct {
	MatchThreshold float64 `yaml:"match_threshold"`
	MatchCount     int     `yaml:"match_count"`
}

type IngestConfig struct {
	DataDir    string   `yaml:"data_dir"`
	BatchSize  int      `yaml:"batch_size"`
	Extensions []string `yaml:"extensions"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig reads the yaml file at path (a missing file is not an error),
// overlays environment variables and fills defaults. A .env file in the
// working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{Log: LogConfig{Pretty: true}}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.URL, "SUPABASE_URL")
	setString(&cfg.Database.Key, "SUPABASE_SERVICE_KEY")
	setString(&cfg.Database.Backend, "DATABASE_BACKEND")
	setString(&cfg.Embedding.Token, "HUGGINGFACEHUB_API_TOKEN")
	setString(&cfg.Embedding.Token, "HF_TOKEN")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	db := &cfg.Database
	if db.Backend == "" {
		db.Backend = BackendPostgres
	}
	if db.Driver == "" {
		db.Driver = DriverPgdriver
	}
	if db.Table == "" {
		db.Table = models.DefaultTable
	}
	if db.MatchFunction == "" {
		db.MatchFunction = models.DefaultMatchFunction
	}
	if db.ChromemPath == "" {
		db.ChromemPath = defaultChromemPath
	}
	if db.Collection == "" {
		db.Collection = models.DefaultTable
	}

	emb := &cfg.Embedding
	if emb.Provider == "" {
		emb.Provider = ProviderHuggingFace
	}
	switch emb.Provider {
	case ProviderHuggingFace:
		if emb.BaseURL == "" {
			emb.BaseURL = defaultHFBaseURL
		}
		if emb.Model == "" {
			emb.Model = defaultHFModel
		}
	case ProviderOllama:
		if emb.BaseURL == "" {
			emb.BaseURL = defaultOllamaURL
		}
		if emb.Model == "" {
			emb.Model = defaultOllamaModel
		}
	}
	if emb.Dimension == 0 {
		emb.Dimension = models.DefaultDimension
	}
	if emb.Pooling == "" {
		emb.Pooling = PoolingAuto
	}
	if emb.TimeoutSecs == 0 {
		emb.TimeoutSecs = defaultTimeoutSecs
	}
	if emb.BatchSize == 0 {
		emb.BatchSize = defaultEmbedBatch
	}

	if cfg.Search.MatchThreshold == 0 {
		cfg.Search.MatchThreshold = models.DefaultMatchThreshold
	}
	if cfg.Search.MatchCount == 0 {
		cfg.Search.MatchCount = models.DefaultMatchCount
	}

	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = defaultDataDir
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = models.DefaultBatchSize
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".txt"}
	}
	for i, ext := range cfg.Ingest.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Ingest.Extensions[i] = ext
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
}

// Validate reports configuration that must abort startup. The embedding
// token is not checked; a missing token fails each embedding call instead.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.URL == "" || c.Database.Key == "" {
			return errors.New("supabase URL and key must be set (SUPABASE_URL, SUPABASE_SERVICE_KEY)")
		}
		if c.Database.Driver != DriverPgdriver && c.Database.Driver != DriverPq {
			return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
		}
	case BackendChromem:
	default:
		return fmt.Errorf("unknown database backend: %s", c.Database.Backend)
	}

	switch c.Embedding.Provider {
	case ProviderHuggingFace, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model must be set (EMBEDDING_MODEL)")
	}
	switch c.Embedding.Pooling {
	case PoolingAuto, PoolingNone, PoolingMean:
	default:
		return fmt.Errorf("unknown pooling strategy: %s", c.Embedding.Pooling)
	}

	if c.Search.MatchThreshold < 0 || c.Search.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be within [0, 1], got %v", c.Search.MatchThreshold)
	}
	if c.Search.MatchCount < 1 {
		return fmt.Errorf("match count must be positive, got %d", c.Search.MatchCount)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest batch size must be positive, got %d", c.Ingest.BatchSize)
	}
	return nil
}
