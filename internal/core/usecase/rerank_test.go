package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

type fakeScorer struct {
	scores []float64
	err    error
	calls  int
}

func (f *fakeScorer) ScorePairs(_ context.Context, _ string, passages []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.scores) != len(passages) {
		return f.scores[:len(passages)], nil
	}
	return f.scores, nil
}

type fakeEmbedder struct {
	queryVector []float32
	vectors     [][]float32
	err         error
	queryCalls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vectors[i%len(f.vectors)]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.queryVector, nil
}

func fusedHits(n int) []domain.SearchHit {
	hits := make([]domain.SearchHit, n)
	for i := range hits {
		hits[i] = domain.SearchHit{
			DocID:   "doc",
			ChunkID: i,
			Text:    "text",
			Score:   float64(n-i) * 0.1,
			Origin:  domain.OriginFused,
		}
	}
	return hits
}

func TestRerankWithScorerNormalizesAndSorts(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{-2, 8, 3}}
	chain := newRerankChain(scorer, nil)

	reranked, method := chain.rerank(context.Background(), "q", fusedHits(3), 3)
	if method != rerankMethodPairScorer {
		t.Fatalf("expected pair-scorer method, got %s", method)
	}
	if reranked[0].ChunkID != 1 {
		t.Fatalf("expected highest scored chunk first, got %d", reranked[0].ChunkID)
	}
	if reranked[0].Score != 1 {
		t.Fatalf("expected min-max normalized top score 1, got %v", reranked[0].Score)
	}
	if reranked[len(reranked)-1].Score != 0 {
		t.Fatalf("expected min score 0, got %v", reranked[len(reranked)-1].Score)
	}
}

func TestRerankPreservesPreRerankScore(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{1, 2}}
	chain := newRerankChain(scorer, nil)

	hits := fusedHits(2)
	reranked, _ := chain.rerank(context.Background(), "q", hits, 2)
	for _, hit := range reranked {
		if hit.Origin != domain.OriginReranked {
			t.Fatalf("expected reranked origin, got %s", hit.Origin)
		}
		if _, ok := hit.Attributes[domain.AttrPreRerankScore]; !ok {
			t.Fatalf("expected pre-rerank score attribute")
		}
		if hit.Attributes[domain.AttrRerankMethod] != rerankMethodPairScorer {
			t.Fatalf("expected method attribute, got %v", hit.Attributes[domain.AttrRerankMethod])
		}
	}
}

func TestRerankTruncatesToTopK(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{5, 4, 3, 2, 1}}
	chain := newRerankChain(scorer, nil)

	reranked, _ := chain.rerank(context.Background(), "q", fusedHits(5), 2)
	if len(reranked) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(reranked))
	}
}

func TestRerankFallsBackToEmbeddings(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("scorer down")}
	embedder := &fakeEmbedder{
		queryVector: []float32{1, 0},
		vectors:     [][]float32{{1, 0}},
	}
	chain := newRerankChain(scorer, embedder)

	_, method := chain.rerank(context.Background(), "q", fusedHits(2), 2)
	if method != rerankMethodEmbedding {
		t.Fatalf("expected embedding fallback, got %s", method)
	}
}

func TestRerankFallsBackToScoreOrder(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("scorer down")}
	chain := newRerankChain(scorer, nil)

	hits := []domain.SearchHit{
		{DocID: "a", ChunkID: 0, Score: 0.2, Origin: domain.OriginFused},
		{DocID: "b", ChunkID: 0, Score: 0.9, Origin: domain.OriginFused},
	}
	reranked, method := chain.rerank(context.Background(), "q", hits, 2)
	if method != rerankMethodNone {
		t.Fatalf("expected score-order fallback, got %s", method)
	}
	if reranked[0].DocID != "b" {
		t.Fatalf("expected highest fused score first, got %s", reranked[0].DocID)
	}
}

func TestRerankDisablesScorerAfterConsecutiveFailures(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("scorer down")}
	chain := newRerankChain(scorer, nil)

	for i := 0; i < scorerFailureLimit; i++ {
		chain.rerank(context.Background(), "q", fusedHits(1), 1)
	}
	if scorer.calls != scorerFailureLimit {
		t.Fatalf("expected %d scorer calls, got %d", scorerFailureLimit, scorer.calls)
	}

	chain.rerank(context.Background(), "q", fusedHits(1), 1)
	if scorer.calls != scorerFailureLimit {
		t.Fatalf("expected scorer to be skipped after %d failures, got %d calls", scorerFailureLimit, scorer.calls)
	}
}

func TestRerankSuccessResetsFailureCount(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("scorer down")}
	chain := newRerankChain(scorer, nil)

	chain.rerank(context.Background(), "q", fusedHits(1), 1)
	chain.rerank(context.Background(), "q", fusedHits(1), 1)

	scorer.err = nil
	scorer.scores = []float64{1}
	_, method := chain.rerank(context.Background(), "q", fusedHits(1), 1)
	if method != rerankMethodPairScorer {
		t.Fatalf("expected scorer to recover, got %s", method)
	}
	if chain.scorerFailures.Load() != 0 {
		t.Fatalf("expected failure count reset, got %d", chain.scorerFailures.Load())
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("expected similarity 1, got %v", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got > 0.001 {
		t.Fatalf("expected similarity 0, got %v", got)
	}
	if got := cosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("expected 0 for mismatched vectors, got %v", got)
	}
}

func TestMinMaxNormalizeFlatBatch(t *testing.T) {
	got := minMaxNormalize([]float64{2, 2, 2})
	for _, v := range got {
		if v != 1 {
			t.Fatalf("expected flat positive batch to map to 1, got %v", got)
		}
	}
	got = minMaxNormalize([]float64{-1, -1})
	for _, v := range got {
		if v != 0 {
			t.Fatalf("expected flat non-positive batch to map to 0, got %v", got)
		}
	}
}
