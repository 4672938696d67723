package config

import (
	"fmt"
	"strconv"
	"time"
)

// lookupFunc matches os.LookupEnv.
type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("APP_ENV", &c.Env)
	e.integer("PORT", &c.Server.Port)
	e.duration("SYNC_WAIT", &c.Server.SyncWait)

	e.str("QUEUE_DIR", &c.Queue.Dir)
	e.integer("QUEUE_WORKERS", &c.Queue.Workers)
	e.integer("QUEUE_MAX_ATTEMPTS", &c.Queue.MaxAttempts)

	e.str("INDEX_BACKEND", &c.Index.Backend)
	e.str("INDEX_DIR", &c.Index.Dir)
	e.str("QDRANT_HOST", &c.Index.QdrantHost)
	e.integer("QDRANT_PORT", &c.Index.QdrantPort)
	e.duration("INDEX_TIMEOUT", &c.Index.Timeout)

	e.str("DOWNLOAD_DIR", &c.Ingestion.DownloadDir)

	e.str("EMBEDDING_HOST", &c.AI.EmbeddingHost)
	e.str("EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	e.str("EMBEDDING_API_KEY", &c.AI.EmbeddingAPIKey)
	e.str("GENERATOR_HOST", &c.AI.GeneratorHost)
	e.str("GENERATOR_MODEL", &c.AI.GeneratorModel)
	e.str("GENERATOR_API_KEY", &c.AI.GeneratorAPIKey)

	e.str("CACHE_BACKEND", &c.Cache.Backend)
	e.str("REDIS_HOST", &c.Cache.RedisHost)
	e.integer("REDIS_PORT", &c.Cache.RedisPort)
	e.str("REDIS_PASSWORD", &c.Cache.RedisPassword)
	e.duration("CACHE_TTL", &c.Cache.TTL)

	return e.err
}

// envReader records the first malformed value and skips the rest.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("config: %s: %w", name, err)
		return
	}
	*dst = n
}

// duration accepts Go duration syntax or a plain number of seconds.
func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("config: %s: %w", name, err)
		return
	}
	*dst = d
}
