package ports

import (
	"context"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes chunk payloads and performs filtered dense search.
// A store failure is fatal for the request; dense recall is the dominant
// signal and there is no silent degradation.
type VectorStore interface {
	IndexChunks(ctx context.Context, payloads []domain.ChunkPayload, vectors [][]float32) (int, error)
	SearchDense(ctx context.Context, queryVector []float32, topK int, filters domain.RetrievalFilters) ([]domain.SearchHit, error)
	ScrollPayloads(ctx context.Context, filters domain.RetrievalFilters, limit int) ([]domain.ChunkPayload, error)
	Count(ctx context.Context) (int, error)
}

// LexicalIndex is the sparse (BM25-style) retrieval index. Search on an
// unbuilt index returns an empty list, not an error.
type LexicalIndex interface {
	Build(payloads []domain.ChunkPayload) error
	Search(sparseQuery string, topK int, filters domain.RetrievalFilters) []domain.SearchHit
	Count() int
	Ready() bool
	Save() error
}

// PairScorer scores (query, passage) relevance pairs in one batch. Absence
// or repeated failure triggers the reranker fallback chain.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)
}

// MessageQueue publishes/consumes lexical index rebuild events.
type MessageQueue interface {
	PublishIndexRebuild(ctx context.Context, reason string) error
	SubscribeIndexRebuild(ctx context.Context, handler func(context.Context, string) error) error
}
