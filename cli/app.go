package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"contractlens/config"
	"contractlens/llm/providers"
	"contractlens/llm/reasoning"
	"contractlens/llm/vector"
	"contractlens/pubsub"
	"contractlens/storage/blob"
	"contractlens/storage/sqlite"
	"contractlens/worker"
)

// app holds everything a command needs, opened from the loaded config
type app struct {
	cfg     *config.Config
	store   *sqlite.Store
	index   vector.Index
	service *worker.Service
	broker  *pubsub.Broker[worker.TaskEvent]
	logger  *slog.Logger
	tracing func()
}

// openApp wires storage, index, embedder, backend and the task service
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, tracing: func() {}}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if a.tracing, err = providers.SetupTracing(ctx, cfg.Tracing.CozeloopToken, cfg.Tracing.CozeloopWorkspace); err != nil {
		return nil, err
	}

	if a.store, err = sqlite.Open(cfg.Storage.DataDir); err != nil {
		return nil, err
	}
	blobs, err := blob.NewFSStore(cfg.BlobDir())
	if err != nil {
		return nil, err
	}

	if a.index, err = openIndex(ctx, cfg); err != nil {
		return nil, err
	}
	embedder, err := openEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	retriever := vector.NewRetriever(a.index, vector.NewEmbeddingService(embedder, cfg.Index.Dim), cfg.Index.BatchSize, logger)

	backend, err := reasoning.Select(ctx, reasoning.Options{
		Provider:      cfg.ProviderConfig(),
		RatePerSecond: cfg.Reasoning.RatePerSecond,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	// progress views read every stage of every document in a batch
	a.broker = pubsub.NewBrokerWithBuffer[worker.TaskEvent](256)
	a.service, err = worker.NewService(worker.Deps{
		Documents: a.store,
		Findings:  a.store.Findings(),
		Blobs:     blobs,
		Retriever: retriever,
		Backend:   backend,
		Segmenter: cfg.ChunkConfig(),
		Events:    a.broker,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openIndex(ctx context.Context, cfg *config.Config) (vector.Index, error) {
	switch cfg.Index.Backend {
	case config.BackendRedis:
		return vector.NewRedisIndex(ctx, cfg.RedisConfig())
	default:
		idx, err := vector.NewMemoryIndex(cfg.SnapshotPath())
		if err != nil {
			return nil, err
		}
		if err := idx.Load(); err != nil {
			return nil, err
		}
		return idx, nil
	}
}

func openEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	if cfg.Embedding.Provider == config.EmbeddingOpenAI {
		e, err := providers.NewEmbeddingModel(ctx, cfg.EmbeddingModelConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding model: %w", err)
		}
		return e, nil
	}
	return vector.NewLocalEmbedder(cfg.Index.Dim), nil
}

// Close flushes the index snapshot and releases every resource
func (a *app) Close() error {
	var errs []error
	if a.broker != nil {
		a.broker.Shutdown()
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tracing != nil {
		a.tracing()
	}
	return errors.Join(errs...)
}

// newLogger builds the process logger from the configured level and format
func newLogger(w io.Writer, level, format string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
