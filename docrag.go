// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package docrag wires the document question-answering pipeline together:
// the durable ingestion queue, the vector index, the answer orchestrator,
// the response cache and the HTTP API.
package docrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/openai"
	"github.com/poiesic/docrag/api"
	"github.com/poiesic/docrag/cache"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/index"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/queue"
	"github.com/poiesic/docrag/search"
	"github.com/poiesic/docrag/service"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/poiesic/docrag/storage/qdrant"
)

// ErrConfigRequired is returned when no configuration is provided.
var ErrConfigRequired = errors.New("config is required")

// App owns every long-lived component of a docrag process.
type App struct {
	cfg          *config.Config
	provider     ai.AIProvider
	store        storage.VectorStore
	index        *index.Adapter
	worker       *ingestion.Worker
	orchestrator *search.Orchestrator
	cache        cache.Cache
	queue        *queue.Queue
	service      *service.Service
	server       *api.Server
	logger       *slog.Logger
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	logger   *slog.Logger
	provider ai.AIProvider
	store    storage.VectorStore
	cache    cache.Cache
	monitor  search.QueryMonitor
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// WithProvider replaces the OpenAI-compatible provider built from the config.
func WithProvider(p ai.AIProvider) AppOption {
	return func(o *appOptions) {
		o.provider = p
	}
}

// WithVectorStore replaces the vector store selected by the config.
// The App takes ownership and closes it.
func WithVectorStore(s storage.VectorStore) AppOption {
	return func(o *appOptions) {
		o.store = s
	}
}

// WithCache replaces the response cache selected by the config.
// The App takes ownership and closes it.
func WithCache(c cache.Cache) AppOption {
	return func(o *appOptions) {
		o.cache = c
	}
}

// WithQueryMonitor attaches a monitor to every batch of questions answered.
func WithQueryMonitor(m search.QueryMonitor) AppOption {
	return func(o *appOptions) {
		o.monitor = m
	}
}

// NewApp builds the component graph described by cfg. The queue is not
// started; call Start before enqueueing work.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (app *App, err error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	options := &appOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	a := &App{cfg: cfg, logger: options.logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.provider = options.provider
	if a.provider == nil {
		a.provider, err = openai.NewProvider(cfg.AIProviderConfig())
		if err != nil {
			return nil, err
		}
	}

	a.store = options.store
	if a.store == nil {
		a.store, err = openStore(cfg, a.logger)
		if err != nil {
			return nil, err
		}
	}

	a.cache = options.cache
	if a.cache == nil {
		a.cache, err = openCache(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	a.index, err = index.NewAdapter(a.store, a.provider.Embedder(),
		index.WithTimeout(cfg.Index.Timeout),
		index.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}

	a.worker, err = ingestion.NewWorker(a.provider.Embedder(), a.index,
		ingestion.WithLogger(a.logger),
		ingestion.WithPoolSize(cfg.Queue.Workers),
		ingestion.WithChunking(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithDownloadTimeout(cfg.Ingestion.DownloadTimeout),
	)
	if err != nil {
		return nil, err
	}

	synth, err := search.NewLLMSynthesizer(a.provider.Generator(), search.WithSynthLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.orchestrator, err = search.NewOrchestrator(a.index, synth,
		search.WithLogger(a.logger),
		search.WithTopK(cfg.Index.TopK),
		search.WithCollectionPrefix(cfg.Index.CollectionPrefix),
		search.WithMonitor(options.monitor),
	)
	if err != nil {
		return nil, err
	}

	handler, err := service.NewJobHandler(a.worker, a.orchestrator, a.cache, cfg.Cache.TTL, a.logger)
	if err != nil {
		return nil, err
	}
	a.queue, err = queue.Open(ctx, cfg.Queue.Dir, handler.Handle,
		queue.WithLogger(a.logger),
		queue.WithPoolSize(cfg.Queue.Workers),
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts),
	)
	if err != nil {
		return nil, err
	}

	a.service, err = service.New(a.queue, a.orchestrator, a.cache,
		service.WithLogger(a.logger),
		service.WithSyncWait(cfg.Server.SyncWait),
		service.WithCacheTTL(cfg.Cache.TTL),
		service.WithDownloadDir(cfg.Ingestion.DownloadDir),
	)
	if err != nil {
		return nil, err
	}

	a.server, err = api.NewServer(a.service,
		api.WithLogger(a.logger),
		api.WithResponseCache(a.cache, cfg.Cache.TTL),
		api.WithDevelopment(cfg.Development()),
	)
	if err != nil {
		return nil, err
	}

	a.logger.Info("app ready",
		"index", cfg.Index.Backend,
		"cache", cfg.Cache.Backend,
		"workers", cfg.Queue.Workers)
	return a, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (storage.VectorStore, error) {
	switch cfg.Index.Backend {
	case "qdrant":
		store, err := qdrant.New(cfg.QdrantAddr(), qdrant.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	case "badger":
		store, err := badger.OpenVectorStore(cfg.Index.Dir, false)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:       cfg.RedisAddr(),
			Password:   cfg.Cache.RedisPassword,
			KeyPrefix:  "docrag:",
			DefaultTTL: cfg.Cache.TTL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "memory":
		c, err := cache.NewMemoryCache(cfg.Cache.MaxBytes, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Start recovers interrupted jobs and begins dispatching the queue.
func (a *App) Start(ctx context.Context) error {
	return a.queue.Start(ctx)
}

// Service returns the request-level operations.
func (a *App) Service() *service.Service {
	return a.service
}

// Server returns the HTTP server.
func (a *App) Server() *api.Server {
	return a.server
}

// VectorStore returns the underlying vector store.
func (a *App) VectorStore() storage.VectorStore {
	return a.store
}

// Embedder returns the embedding service.
func (a *App) Embedder() ai.Embedder {
	return a.provider.Embedder()
}

// Close shuts the components down in dependency order: the queue first so no
// job touches a closed store, then the worker pools, cache, index and provider.
// The HTTP server is shut down by the caller before Close.
func (a *App) Close() error {
	var errs []error
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Error("error closing queue", "err", err)
			errs = append(errs, err)
		}
	}
	if a.worker != nil {
		a.worker.Release()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("error closing cache", "err", err)
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
