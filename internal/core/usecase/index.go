package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// scrollPageLimit caps how many payloads a rebuild pulls from the vector
// store in one pass.
const scrollPageLimit = 10000

// embedBatchSize bounds one embedding call during upsert.
const embedBatchSize = 100

// UpsertChunks embeds a batch of chunk payloads and writes them to the
// vector store. Repeated upserts of the same (tenant, doc, chunk) overwrite
// rather than duplicate; the store derives a deterministic point id. On
// success a rebuild event is published so the worker refreshes the lexical
// index.
func (r *HybridRetriever) UpsertChunks(ctx context.Context, chunks []domain.ChunkPayload) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i, c := range chunks {
		if c.DocID == "" || c.Text == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, "upsert", fmt.Errorf("chunk %d: doc_id and text are required", i))
		}
	}

	total := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return total, domain.WrapError(domain.ErrStoreUnavailable, "embed chunks", err)
		}
		if len(vectors) != len(batch) {
			return total, domain.WrapError(domain.ErrTemporary, "embed chunks", errScoreCountMismatch)
		}

		n, err := r.vector.IndexChunks(ctx, batch, vectors)
		if err != nil {
			return total, domain.WrapError(domain.ErrStoreUnavailable, "index chunks", err)
		}
		total += n
	}

	if r.queue != nil {
		if err := r.queue.PublishIndexRebuild(ctx, fmt.Sprintf("upserted %d chunks", total)); err != nil {
			r.logger.Warn("rebuild event publish failed", "error", err)
		}
	}
	return total, nil
}

// RebuildLexicalIndex scrolls every payload out of the vector store and
// rebuilds the sparse index from scratch, persisting the new snapshot.
// Finding zero payloads leaves the index empty; that is not an error.
func (r *HybridRetriever) RebuildLexicalIndex(ctx context.Context) (int, error) {
	payloads, err := r.vector.ScrollPayloads(ctx, domain.RetrievalFilters{}, scrollPageLimit)
	if err != nil {
		return 0, domain.WrapError(domain.ErrStoreUnavailable, "scroll payloads", err)
	}

	if err := r.lexical.Build(payloads); err != nil {
		return 0, fmt.Errorf("build lexical index: %w", err)
	}
	if err := r.lexical.Save(); err != nil {
		r.logger.Warn("lexical index save failed", "error", err)
	}

	r.logger.Info("lexical index rebuilt", "documents", len(payloads))
	return len(payloads), nil
}
