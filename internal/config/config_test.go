package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunk.Size)
	assert.Equal(t, 50, cfg.Chunk.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 1536, cfg.AI.Embedding.Dimensions)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
mode: worker
server:
  port: 9090
worker:
  concurrency: 4
  retention: 48h
chunk:
  size: 300
  overlap: 30
ai:
  embedding:
    provider: ollama
    model: nomic-embed-text
    dimensions: 768
    base_url: http://ollama:11434
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeWorker, cfg.Mode)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 48*time.Hour, cfg.Worker.Retention)
	assert.Equal(t, 300, cfg.Chunk.Size)
	assert.Equal(t, domain.AIProviderOllama, cfg.AI.Embedding.Provider)
	assert.Equal(t, 768, cfg.AI.Embedding.Dimensions)
	// untouched sections keep defaults
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.LLM.Model)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":                 "8181",
		"REDIS_URL":            "redis://localhost:6379/0",
		"OPENAI_API_KEY":       "sk-test",
		"EMBEDDING_DIMENSIONS": "512",
		"CHUNK_SIZE":           "200",
		"CHUNK_OVERLAP":        "20",
		"TOP_K":                "8",
		"CHROME_ENABLED":       "true",
		"FETCH_RPS":            "0.5",
		"ALLOWED_ORIGINS":      "https://a.example, https://b.example",
		"LOG_FORMAT":           "json",
		"WORKER_CONCURRENCY":   "  ",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, "sk-test", cfg.AI.Embedding.APIKey)
	assert.Equal(t, "sk-test", cfg.AI.LLM.APIKey)
	assert.Equal(t, 512, cfg.AI.Embedding.Dimensions)
	assert.Equal(t, 200, cfg.Chunk.Size)
	assert.Equal(t, 20, cfg.Chunk.Overlap)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.True(t, cfg.Fetch.ChromeEnabled)
	assert.Equal(t, 0.5, cfg.Fetch.HostRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 2, cfg.Worker.Concurrency, "blank values are ignored")
}

func TestApplyEnv_Ollama(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"EMBEDDING_PROVIDER": "ollama",
		"LLM_PROVIDER":       "ollama",
		"LLM_MODEL":          "llama3.1",
		"OLLAMA_URL":         "http://ollama:11434",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://ollama:11434", cfg.AI.Embedding.BaseURL)
	assert.Equal(t, "http://ollama:11434", cfg.AI.LLM.BaseURL)
	assert.Equal(t, "llama3.1", cfg.AI.LLM.Model)
	assert.True(t, cfg.AI.LLM.IsConfigured())
}

func TestApplyEnv_FileKeyWins(t *testing.T) {
	cfg := Default()
	cfg.AI.LLM.APIKey = "from-file"

	require.NoError(t, cfg.applyEnv(envMap(map[string]string{"OPENAI_API_KEY": "from-env"})))
	assert.Equal(t, "from-file", cfg.AI.LLM.APIKey)
	assert.Equal(t, "from-env", cfg.AI.Embedding.APIKey)
}

func TestApplyEnv_ParseError(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{"PORT": "eighty", "TOP_K": "x"}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Contains(t, err.Error(), "PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"overlap equals size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }, false},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }, false},
		{"zero size", func(c *Config) { c.Chunk.Size = 0 }, false},
		{"zero dimensions", func(c *Config) { c.AI.Embedding.Dimensions = 0 }, false},
		{"top_k zero", func(c *Config) { c.Retrieval.TopK = 0 }, false},
		{"top_k max", func(c *Config) { c.Retrieval.TopK = 20 }, true},
		{"top_k over max", func(c *Config) { c.Retrieval.TopK = 21 }, false},
		{"unknown mode", func(c *Config) { c.Mode = "batch" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, false},
		{"no database", func(c *Config) { c.Database.URL = "" }, false},
		{"no workers", func(c *Config) { c.Worker.Concurrency = 0 }, false},
		{"unknown provider", func(c *Config) { c.AI.LLM.Provider = "acme" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
