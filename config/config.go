// Package config loads docrag settings from an optional YAML file, a .env
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/docrag/ai"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port     int           `yaml:"port"`
	SyncWait time.Duration `yaml:"sync_wait"`
}

// QueueConfig configures the durable job queue.
type QueueConfig struct {
	Dir         string `yaml:"dir"` // empty keeps the queue in memory
	Workers     int    `yaml:"workers"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	Backend          string        `yaml:"backend"` // badger or qdrant
	Dir              string        `yaml:"dir"`
	QdrantHost       string        `yaml:"qdrant_host"`
	QdrantPort       int           `yaml:"qdrant_port"`
	Timeout          time.Duration `yaml:"timeout"`
	CollectionPrefix string        `yaml:"collection_prefix"`
	TopK             int           `yaml:"top_k"`
}

// IngestionConfig configures download and chunking.
type IngestionConfig struct {
	DownloadDir     string        `yaml:"download_dir"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	ChunkSize       int           `yaml:"chunk_size"`
	ChunkOverlap    int           `yaml:"chunk_overlap"`
	BatchSize       int           `yaml:"batch_size"`
}

// AIConfig configures the embedding and generation services.
type AIConfig struct {
	EmbeddingHost   string        `yaml:"embedding_host"`
	EmbeddingModel  string        `yaml:"embedding_model"`
	EmbeddingAPIKey string        `yaml:"embedding_api_key"`
	GeneratorHost   string        `yaml:"generator_host"`
	GeneratorModel  string        `yaml:"generator_model"`
	GeneratorAPIKey string        `yaml:"generator_api_key"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	GeneratorRPS    float64       `yaml:"generator_rps"`
}

// CacheConfig selects and configures the response cache.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory or redis
	RedisHost     string        `yaml:"redis_host"`
	RedisPort     int           `yaml:"redis_port"`
	RedisPassword string        `yaml:"redis_password"`
	TTL           time.Duration `yaml:"ttl"`
	MaxBytes      int64         `yaml:"max_bytes"`
}

// Config is the root configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Queue     QueueConfig     `yaml:"queue"`
	Index     IndexConfig     `yaml:"index"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	AI        AIConfig        `yaml:"ai"`
	Cache     CacheConfig     `yaml:"cache"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	defaults := ai.DefaultConfig()
	return &Config{
		Env:    "production",
		Server: ServerConfig{Port: 8080, SyncWait: 5 * time.Minute},
		Queue:  QueueConfig{Dir: "data/queue", Workers: 4, MaxAttempts: 3},
		Index: IndexConfig{
			Backend:          "badger",
			Dir:              "data/index",
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			Timeout:          10 * time.Second,
			CollectionPrefix: "docs",
			TopK:             2,
		},
		Ingestion: IngestionConfig{
			DownloadDir:     "data/downloads",
			DownloadTimeout: 2 * time.Minute,
			ChunkSize:       1000,
			ChunkOverlap:    200,
			BatchSize:       32,
		},
		AI: AIConfig{
			EmbeddingHost:  defaults.EmbeddingHost,
			EmbeddingModel: defaults.EmbeddingModel,
			GeneratorHost:  defaults.GeneratorHost,
			GeneratorModel: defaults.GeneratorModel,
			RequestTimeout: defaults.RequestTimeout,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisHost: "localhost",
			RedisPort: 6379,
			TTL:       10 * time.Minute,
			MaxBytes:  64 << 20,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; envFile
// names an optional dotenv file whose variables do not override the process
// environment. A missing envFile is ignored.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Development reports whether internal error detail may be exposed.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// QdrantAddr returns the qdrant gRPC address.
func (c *Config) QdrantAddr() string {
	return net.JoinHostPort(c.Index.QdrantHost, strconv.Itoa(c.Index.QdrantPort))
}

// RedisAddr returns the redis address.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.Cache.RedisHost, strconv.Itoa(c.Cache.RedisPort))
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// AIProviderConfig converts the AI section into an ai.Config.
func (c *Config) AIProviderConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithAPIKeys(c.AI.EmbeddingAPIKey, c.AI.GeneratorAPIKey),
		ai.WithRequestTimeout(c.AI.RequestTimeout),
		ai.WithGeneratorRPS(c.AI.GeneratorRPS),
	)
}

// Validate checks value ranges and backend names.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "badger", "qdrant":
	default:
		return fmt.Errorf("config: unknown index backend %q", c.Index.Backend)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Queue.Workers <= 0 {
		return errors.New("config: queue workers must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("config: max attempts must be positive")
	}
	if c.Ingestion.ChunkSize <= 0 || c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return errors.New("config: chunk overlap must be in [0, chunk size)")
	}
	if c.Index.TopK <= 0 {
		return errors.New("config: top_k must be positive")
	}
	if c.Index.Backend == "badger" && c.Index.Dir == "" {
		return errors.New("config: index dir is required for the badger backend")
	}
	return c.AIProviderConfig().Validate()
}
