package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SUPABASE_URL", "SUPABASE_SERVICE_KEY", "DATABASE_BACKEND", "HUGGINGFACEHUB_API_TOKEN",
		"HF_TOKEN", "EMBEDDING_MODEL", "EMBEDDING_PROVIDER", "EMBEDDING_BASE_URL", "LOG_LEVEL", "PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Database.Backend)
	assert.Equal(t, DriverPgdriver, cfg.Database.Driver)
	assert.Equal(t, "health_knowledge_base", cfg.Database.Table)
	assert.Equal(t, "match_health_documents", cfg.Database.MatchFunction)
	assert.Equal(t, ProviderHuggingFace, cfg.Embedding.Provider)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, PoolingAuto, cfg.Embedding.Pooling)
	assert.InDelta(t, 0.70, cfg.Search.MatchThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Search.MatchCount)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, []string{".txt"}, cfg.Ingest.Extensions)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  backend: chromem
  in_memory: true
embedding:
  provider: ollama
search:
  match_count: 5
ingest:
  extensions: ["txt", ".md"]
log:
  pretty: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("HF_TOKEN", "hf_secret")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendChromem, cfg.Database.Backend)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "hf_secret", cfg.Embedding.Token)
	assert.Equal(t, 5, cfg.Search.MatchCount)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Ingest.Extensions)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.Log.Pretty)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: ["), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing supabase credentials",
			mutate:  func(c *Config) {},
			wantErr: "supabase URL and key must be set",
		},
		{
			name: "valid postgres",
			mutate: func(c *Config) {
				c.Database.URL = "postgres://localhost:5432/postgres"
				c.Database.Key = "secret"
			},
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Database.URL = "postgres://localhost:5432/postgres"
				c.Database.Key = "secret"
				c.Database.Driver = "mysql"
			},
			wantErr: "unknown database driver",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Database.Backend = "redis" },
			wantErr: "unknown database backend",
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.Database.Backend = BackendChromem
				c.Embedding.Provider = "cohere"
			},
			wantErr: "unknown embedding provider",
		},
		{
			name: "unknown pooling",
			mutate: func(c *Config) {
				c.Database.Backend = BackendChromem
				c.Embedding.Pooling = "max"
			},
			wantErr: "unknown pooling strategy",
		},
		{
			name: "threshold out of range",
			mutate: func(c *Config) {
				c.Database.Backend = BackendChromem
				c.Search.MatchThreshold = 1.5
			},
			wantErr: "match threshold",
		},
		{
			name: "missing token is not a startup error",
			mutate: func(c *Config) {
				c.Database.Backend = BackendChromem
				c.Embedding.Token = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
