package ports

import (
	"context"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// RetrieveRequest carries the tunables of one retrieval call. Zero values
// fall back to defaults when the request is resolved.
type RetrieveRequest struct {
	Query            string
	Filters          domain.RetrievalFilters
	TopK             *domain.TopKConfig
	RRFK             int
	MaxIters         int
	Diversity        *domain.DiversityConfig
	MaxCharsPerChunk int
}

// Retriever is the inbound contract for the hybrid retrieval pipeline.
type Retriever interface {
	RetrieveAndRerank(ctx context.Context, req RetrieveRequest) ([]domain.ContextChunk, *domain.DebugInfo, error)
}

// Indexer is the inbound contract for index maintenance.
type Indexer interface {
	UpsertChunks(ctx context.Context, chunks []domain.ChunkPayload) (int, error)
	RebuildLexicalIndex(ctx context.Context) (int, error)
}

// HealthReporter exposes backing-store counts for readiness checks.
type HealthReporter interface {
	Counts(ctx context.Context) (vectorCount, lexicalCount int, err error)
}
