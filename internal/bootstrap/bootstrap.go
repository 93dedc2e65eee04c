// Package bootstrap wires the adapters into the retrieval engine.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/hybrid-retrieval/internal/config"
	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
	"github.com/kirillkom/hybrid-retrieval/internal/core/usecase"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/embedding/ollama"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/scorer/tei"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/logging"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Retriever *usecase.HybridRetriever
	Metrics   *metrics.HTTPServerMetrics

	closeFn func()
}

func New(_ context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger("hybrid-retrieval", cfg.LogLevel)
	slog.SetDefault(logger)

	guard := resilience.NewGuard(resilience.DefaultConfig())

	embedder := ollama.New(cfg.EmbedURL, cfg.EmbedModel, guard)
	vectorStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, guard)

	lexicalIndex := bm25.New(cfg.IndexPath)
	if err := lexicalIndex.Load(); err != nil {
		logger.Warn("lexical index load failed, starting unbuilt", "error", err)
	}

	var scorer ports.PairScorer
	if cfg.RerankURL != "" {
		scorer = tei.New(cfg.RerankURL, guard)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Guard: guard})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	retriever := usecase.NewHybridRetriever(
		embedder,
		vectorStore,
		lexicalIndex,
		scorer,
		queue,
		logger,
		usecase.Defaults{
			TopK: domain.TopKConfig{
				Dense:  cfg.TopKDense,
				Sparse: cfg.TopKSparse,
				Fused:  cfg.TopKFused,
				Rerank: cfg.TopKRerank,
			},
			RRFK:     cfg.RRFK,
			MaxIters: cfg.MaxIters,
			Diversity: domain.DiversityConfig{
				MaxPerDoc: cfg.MaxPerDoc,
				MinDocs:   cfg.MinDocs,
			},
			MaxCharsPerChunk: cfg.MaxCharsPerChunk,
			ExpandFactor:     cfg.ExpandFactor,
		},
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Retriever: retriever,
		Metrics:   metrics.NewHTTPServerMetrics("hybrid-retrieval"),

		closeFn: func() {
			queue.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
