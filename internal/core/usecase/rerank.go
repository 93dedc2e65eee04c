package usecase

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync/atomic"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
)

var errScoreCountMismatch = errors.New("result count does not match input count")

// Rerank method names recorded in telemetry.
const (
	rerankMethodPairScorer = "pair-scorer"
	rerankMethodEmbedding  = "embedding-fallback"
	rerankMethodNone       = "score-order"
)

// scorerFailureLimit disables the pairwise strategy for the chain's lifetime
// after this many consecutive failures.
const scorerFailureLimit = 3

// rerankChain reorders a fused shortlist. The pairwise scorer is preferred;
// it degrades to embedding cosine similarity, and finally to keeping the
// fused ordering. A degradation never fails the request; the method actually
// used is reported so the orchestrator can note it.
type rerankChain struct {
	scorer   ports.PairScorer
	embedder ports.Embedder

	scorerFailures atomic.Int32
}

// newRerankChain probes availability once at construction: strategies whose
// handles are absent are simply never tried.
func newRerankChain(scorer ports.PairScorer, embedder ports.Embedder) *rerankChain {
	return &rerankChain{scorer: scorer, embedder: embedder}
}

func (rc *rerankChain) rerank(ctx context.Context, query string, hits []domain.SearchHit, topK int) ([]domain.SearchHit, string) {
	if len(hits) == 0 {
		return hits, rerankMethodNone
	}
	if topK <= 0 || topK > len(hits) {
		topK = len(hits)
	}

	if rc.scorerAvailable() {
		reranked, err := rc.rerankWithScorer(ctx, query, hits, topK)
		if err == nil {
			rc.scorerFailures.Store(0)
			return reranked, rerankMethodPairScorer
		}
		rc.scorerFailures.Add(1)
	}

	if rc.embedder != nil {
		reranked, err := rc.rerankWithEmbeddings(ctx, query, hits, topK)
		if err == nil {
			return reranked, rerankMethodEmbedding
		}
	}

	// Last resort: trust the fused ordering.
	sorted := make([]domain.SearchHit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted[:topK], rerankMethodNone
}

func (rc *rerankChain) scorerAvailable() bool {
	return rc.scorer != nil && rc.scorerFailures.Load() < scorerFailureLimit
}

func (rc *rerankChain) rerankWithScorer(ctx context.Context, query string, hits []domain.SearchHit, topK int) ([]domain.SearchHit, error) {
	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Text
	}

	scores, err := rc.scorer.ScorePairs(ctx, query, passages)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(hits) {
		return nil, domain.WrapError(domain.ErrTemporary, "rerank", errScoreCountMismatch)
	}

	normalized := minMaxNormalize(scores)
	return rebuildReranked(hits, normalized, topK, rerankMethodPairScorer), nil
}

func (rc *rerankChain) rerankWithEmbeddings(ctx context.Context, query string, hits []domain.SearchHit, topK int) ([]domain.SearchHit, error) {
	queryVector, err := rc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Text
	}
	vectors, err := rc.embedder.Embed(ctx, passages)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(hits) {
		return nil, domain.WrapError(domain.ErrTemporary, "rerank embed", errScoreCountMismatch)
	}

	scores := make([]float64, len(hits))
	for i, v := range vectors {
		scores[i] = cosineSimilarity(queryVector, v)
	}
	return rebuildReranked(hits, scores, topK, rerankMethodEmbedding), nil
}

// rebuildReranked replaces scores, preserves the prior score in attributes,
// sorts descending and truncates.
func rebuildReranked(hits []domain.SearchHit, scores []float64, topK int, method string) []domain.SearchHit {
	out := make([]domain.SearchHit, len(hits))
	for i, hit := range hits {
		reranked := hit
		reranked.Origin = domain.OriginReranked
		reranked.Score = scores[i]
		reranked.Attributes = cloneAttrs(hit.Attributes)
		reranked.SetAttr(domain.AttrPreRerankScore, hit.Score)
		reranked.SetAttr(domain.AttrRerankMethod, method)
		out[i] = reranked
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}

// minMaxNormalize maps a score batch to [0,1]. A flat batch maps positives
// to 1 and the rest to 0.
func minMaxNormalize(scores []float64) []float64 {
	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float64, len(scores))
	span := maxScore - minScore
	for i, s := range scores {
		if span <= 0 {
			if s > 0 {
				out[i] = 1
			}
			continue
		}
		out[i] = (s - minScore) / span
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
