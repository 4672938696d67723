package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Index.TopK)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 200, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Development())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: development
server:
  port: 9090
index:
  backend: qdrant
  qdrant_host: qdrant.internal
  timeout: 3s
cache:
  ttl: 30m
`), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.True(t, cfg.Development())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, "qdrant.internal:6334", cfg.QdrantAddr())
	assert.Equal(t, 3*time.Second, cfg.Index.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize, "unset fields keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("REDIS_PORT=6380\n"), 0o644))
	t.Setenv("REDIS_PORT", "")
	os.Unsetenv("REDIS_PORT")

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, 6380, cfg.Cache.RedisPort)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"PORT":              "3000",
		"QUEUE_WORKERS":     "8",
		"INDEX_BACKEND":     "qdrant",
		"QDRANT_PORT":       "7000",
		"INDEX_TIMEOUT":     "250ms",
		"GENERATOR_API_KEY": "secret",
		"CACHE_BACKEND":     "redis",
		"CACHE_TTL":         "120",
		"APP_ENV":           "development",
		"EMBEDDING_MODEL":   "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, ":3000", cfg.ListenAddr())
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, 7000, cfg.Index.QdrantPort)
	assert.Equal(t, 250*time.Millisecond, cfg.Index.Timeout)
	assert.Equal(t, "secret", cfg.AI.GeneratorAPIKey)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL, "plain numbers are seconds")
	assert.True(t, cfg.Development())
	assert.Equal(t, Default().AI.EmbeddingModel, cfg.AI.EmbeddingModel, "empty values are ignored")
}

func TestApplyEnv_Malformed(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(mapLookup(map[string]string{"PORT": "eighty"}))
	assert.ErrorContains(t, err, "PORT")

	cfg = Default()
	err = cfg.applyEnv(mapLookup(map[string]string{"CACHE_TTL": "soon"}))
	assert.ErrorContains(t, err, "CACHE_TTL")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"index backend":  func(c *Config) { c.Index.Backend = "pinecone" },
		"cache backend":  func(c *Config) { c.Cache.Backend = "memcached" },
		"port":           func(c *Config) { c.Server.Port = 0 },
		"overlap":        func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize },
		"workers":        func(c *Config) { c.Queue.Workers = 0 },
		"embedding host": func(c *Config) { c.AI.EmbeddingHost = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAIProviderConfig(t *testing.T) {
	cfg := Default()
	cfg.AI.GeneratorHost = "http://llm:8000"
	cfg.AI.GeneratorRPS = 2

	aiCfg := cfg.AIProviderConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://llm:8000/v1", aiCfg.GeneratorHost)
	assert.Equal(t, float64(2), aiCfg.GeneratorRPS)
}
