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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docrag"
	"github.com/poiesic/docrag/ai/openai"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/reindex"
	"github.com/poiesic/docrag/search"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newCLI(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLI(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "docrag",
		Usage:     "Answer questions about documents with retrieval-augmented generation",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"DOCRAG_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a dotenv file; ignored when missing",
				Value: ".env",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and ingestion workers",
				Action: serveCommand,
			},
			{
				Name:      "ask",
				Usage:     "Ingest a document and answer questions without the HTTP API",
				ArgsUsage: " ",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "url",
						Aliases:  []string{"u"},
						Usage:    "Document URL",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "question",
						Aliases:  []string{"q"},
						Usage:    "Question to answer (repeatable)",
						Required: true,
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed a badger collection into a new collection",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Source collection",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "target",
						Usage:    "Target collection",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per call",
						Value: 64,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 256,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per embedding call",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := docrag.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Server().ListenAndServe(cfg.ListenAddr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Server().Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	return <-errCh
}

func askCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	req := &core.QueryRequest{
		DocumentURL: c.String("url"),
		Questions:   c.StringSlice("question"),
	}
	if err := core.ValidateQueryRequest(req); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := docrag.NewApp(ctx, cfg, docrag.WithQueryMonitor(search.NewLogMonitor(slog.Default())))
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Start(ctx); err != nil {
		return err
	}

	result, cached, err := app.Service().Query(ctx, req)
	if err != nil {
		return err
	}
	if cached {
		slog.Debug("answers served from cache")
	}
	printAnswers(c.App.Writer, req.Questions, result.Answers)
	return nil
}

func printAnswers(w io.Writer, questions, answers []string) {
	for i, q := range questions {
		fmt.Fprintf(w, "Q%d: %s\n", i+1, q)
		fmt.Fprintf(w, "A%d: %s\n\n", i+1, strings.TrimSpace(answers[i]))
	}
}

func reindexCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Index.Backend != "badger" {
		return errors.New("reindex requires the badger index backend")
	}

	reindexConfig := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reindexConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	store, err := badger.OpenVectorStore(cfg.Index.Dir, false)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer store.Close()

	embedder, err := openai.NewEmbedder(cfg.AIProviderConfig())
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	r, err := reindex.NewReindexer(store, store, embedder, reindexConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Index: %s\n", cfg.Index.Dir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", cfg.AI.EmbeddingModel)

	if _, err := r.Run(c.Context, c.String("collection"), c.String("target")); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}
