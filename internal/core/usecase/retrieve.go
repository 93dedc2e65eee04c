package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
	"github.com/kirillkom/hybrid-retrieval/internal/textproc"
)

// coverage check parameters: examine the top window of reranked hits and
// expand the candidate pools when fewer than the threshold ratio contain any
// must-have term.
const (
	coverageWindow    = 5
	coverageThreshold = 0.4
)

// Defaults are the per-instance fallbacks for request tunables.
type Defaults struct {
	TopK             domain.TopKConfig
	RRFK             int
	MaxIters         int
	Diversity        domain.DiversityConfig
	MaxCharsPerChunk int
	ExpandFactor     float64
}

func (d Defaults) normalize() Defaults {
	out := d
	if out.TopK.Dense <= 0 || out.TopK.Sparse <= 0 || out.TopK.Fused <= 0 || out.TopK.Rerank <= 0 {
		out.TopK = domain.DefaultTopK()
	}
	if out.RRFK <= 0 {
		out.RRFK = 60
	}
	if out.MaxIters <= 0 {
		out.MaxIters = 2
	}
	if out.Diversity.MaxPerDoc <= 0 || out.Diversity.MinDocs <= 0 {
		out.Diversity = domain.DefaultDiversity()
	}
	if out.MaxCharsPerChunk <= 0 {
		out.MaxCharsPerChunk = 1600
	}
	if out.ExpandFactor <= 1.0 {
		out.ExpandFactor = 1.2
	}
	return out
}

// HybridRetriever composes query analysis, dense and sparse search, RRF
// fusion, reranking, the coverage-driven adaptive loop and diversity
// selection into one request/response cycle. Safe for concurrent use; all
// per-request state is local.
type HybridRetriever struct {
	embedder ports.Embedder
	vector   ports.VectorStore
	lexical  ports.LexicalIndex
	reranker *rerankChain
	queue    ports.MessageQueue
	logger   *slog.Logger
	defaults Defaults

	buildGroup singleflight.Group
}

func NewHybridRetriever(
	embedder ports.Embedder,
	vector ports.VectorStore,
	lexical ports.LexicalIndex,
	scorer ports.PairScorer,
	queue ports.MessageQueue,
	logger *slog.Logger,
	defaults Defaults,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		reranker: newRerankChain(scorer, embedder),
		queue:    queue,
		logger:   logger,
		defaults: defaults.normalize(),
	}
}

// RetrieveAndRerank runs the full pipeline for one query.
func (r *HybridRetriever) RetrieveAndRerank(ctx context.Context, req ports.RetrieveRequest) ([]domain.ContextChunk, *domain.DebugInfo, error) {
	start := time.Now()
	debug := domain.NewDebugInfo()

	if strings.TrimSpace(req.Query) == "" {
		return nil, debug, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is empty"))
	}

	topk, rrfK, maxIters, diversity, maxChars := r.resolve(req)
	debug.Params = domain.ResolvedParams{
		TopK:         topk,
		RRFK:         rrfK,
		MaxIters:     maxIters,
		Diversity:    diversity,
		MaxCharsPer:  maxChars,
		Filters:      req.Filters,
		ExpandFactor: r.defaults.ExpandFactor,
	}

	if note := r.ensureLexical(ctx); note != "" {
		debug.AddNote("%s", note)
	}

	analyzed := AnalyzeQuery(req.Query)
	if len(analyzed.MustHave) > 0 {
		debug.AddNote("must-have terms: %s", strings.Join(analyzed.MustHave, ", "))
	}

	// The dense query text never changes between iterations, so one embedding
	// serves every pass of the adaptive loop.
	t0 := time.Now()
	queryVector, err := r.embedder.EmbedQuery(ctx, analyzed.Dense)
	debug.Timings["embed_ms"] = millisSince(t0)
	if err != nil {
		return nil, debug, domain.WrapError(domain.ErrStoreUnavailable, "embed query", err)
	}

	var (
		reranked     []domain.SearchHit
		rerankMethod string
	)

	iters := 0
	for iters < maxIters {
		iters++

		denseHits, sparseHits, err := r.searchBoth(ctx, queryVector, analyzed.Sparse, topk, req.Filters, debug)
		if err != nil {
			return nil, debug, err
		}
		debug.Counts["dense_n"] = len(denseHits)
		debug.Counts["sparse_n"] = len(sparseHits)

		t0 = time.Now()
		fused := fuseRRF(denseHits, sparseHits, rrfK, topk.Fused)
		debug.Timings["fuse_ms"] = millisSince(t0)
		debug.Counts["fused_n"] = len(fused)

		t0 = time.Now()
		reranked, rerankMethod = r.reranker.rerank(ctx, req.Query, fused, topk.Rerank)
		debug.Timings["rerank_ms"] = millisSince(t0)
		debug.Counts["reranked_n"] = len(reranked)

		if len(analyzed.MustHave) > 0 && len(reranked) > 0 {
			ratio := coverageRatio(reranked, analyzed.MustHave)
			if ratio < coverageThreshold && iters < maxIters {
				if ctx.Err() != nil {
					debug.AddNote("iteration %d: deadline reached, keeping current results", iters)
					break
				}
				debug.AddNote("iteration %d: weak coverage (%.0f%%), expanding search", iters, ratio*100)
				topk.Dense = expandPool(topk.Dense, r.defaults.ExpandFactor)
				topk.Sparse = expandPool(topk.Sparse, r.defaults.ExpandFactor)
				debug.Params.TopK = topk
				continue
			}
		}
		break
	}

	if iters > 1 {
		debug.AddNote("used %d iterations", iters)
	}
	if rerankMethod != rerankMethodPairScorer {
		debug.AddNote("rerank method: %s", rerankMethod)
	}

	chunks := selectDiverse(reranked, diversity, maxChars)
	debug.Counts["final_n"] = len(chunks)
	debug.Timings["total_ms"] = millisSince(start)

	r.logger.Info("retrieve",
		"dense_n", debug.Counts["dense_n"],
		"sparse_n", debug.Counts["sparse_n"],
		"fused_n", debug.Counts["fused_n"],
		"final_n", len(chunks),
		"iterations", iters,
		"rerank_method", rerankMethod,
		"total_ms", debug.Timings["total_ms"],
	)
	return chunks, debug, nil
}

// searchBoth runs dense and sparse search concurrently; they have no data
// dependency on each other. A vector store failure is fatal, a sparse miss
// only degrades.
func (r *HybridRetriever) searchBoth(
	ctx context.Context,
	queryVector []float32,
	sparseQuery string,
	topk domain.TopKConfig,
	filters domain.RetrievalFilters,
	debug *domain.DebugInfo,
) ([]domain.SearchHit, []domain.SearchHit, error) {
	var (
		denseHits, sparseHits []domain.SearchHit
		denseMS, sparseMS     float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t0 := time.Now()
		hits, err := r.vector.SearchDense(gctx, queryVector, topk.Dense, filters)
		denseMS = millisSince(t0)
		if err != nil {
			return domain.WrapError(domain.ErrStoreUnavailable, "dense search", err)
		}
		denseHits = hits
		return nil
	})
	g.Go(func() error {
		t0 := time.Now()
		sparseHits = r.lexical.Search(sparseQuery, topk.Sparse, filters)
		sparseMS = millisSince(t0)
		return nil
	})
	err := g.Wait()
	debug.Timings["dense_ms"] = denseMS
	debug.Timings["sparse_ms"] = sparseMS
	if err != nil {
		return nil, nil, err
	}
	return denseHits, sparseHits, nil
}

// expandPool widens a candidate pool, always growing by at least one so a
// small pool never repeats an identical search on the next iteration.
func expandPool(n int, factor float64) int {
	next := int(math.Ceil(float64(n) * factor))
	if next <= n {
		next = n + 1
	}
	return next
}

// coverageRatio counts, over the top window, hits containing at least one
// must-have term as a case-insensitive substring.
func coverageRatio(hits []domain.SearchHit, mustHave []string) float64 {
	window := coverageWindow
	if len(hits) < window {
		window = len(hits)
	}
	covered := 0
	for _, hit := range hits[:window] {
		if textproc.CountCoveredTerms(hit.Text, mustHave) > 0 {
			covered++
		}
	}
	return float64(covered) / float64(window)
}

// ensureLexical lazily builds the sparse index from the vector store's
// payloads on first use. Construction is single-flight so concurrent first
// requests share one build. Any failure degrades to dense-only and is
// reported as a note, never as an error.
func (r *HybridRetriever) ensureLexical(ctx context.Context) string {
	if r.lexical.Ready() {
		return ""
	}
	_, err, _ := r.buildGroup.Do("build", func() (any, error) {
		if r.lexical.Ready() {
			return nil, nil
		}
		payloads, err := r.vector.ScrollPayloads(ctx, domain.RetrievalFilters{}, scrollPageLimit)
		if err != nil {
			return nil, fmt.Errorf("scroll payloads: %w", err)
		}
		if len(payloads) == 0 {
			return nil, nil
		}
		if err := r.lexical.Build(payloads); err != nil {
			return nil, fmt.Errorf("build lexical index: %w", err)
		}
		if err := r.lexical.Save(); err != nil {
			r.logger.Warn("lexical index save failed", "error", err)
		}
		return nil, nil
	})
	if err != nil {
		r.logger.Warn("lexical index unavailable, proceeding dense-only", "error", err)
		return fmt.Sprintf("lexical index unavailable (%v), proceeding dense-only", err)
	}
	if !r.lexical.Ready() {
		return "lexical index empty, proceeding dense-only"
	}
	return ""
}

func (r *HybridRetriever) resolve(req ports.RetrieveRequest) (domain.TopKConfig, int, int, domain.DiversityConfig, int) {
	topk := r.defaults.TopK
	if req.TopK != nil {
		topk = *req.TopK
		def := r.defaults.TopK
		if topk.Dense <= 0 {
			topk.Dense = def.Dense
		}
		if topk.Sparse <= 0 {
			topk.Sparse = def.Sparse
		}
		if topk.Fused <= 0 {
			topk.Fused = def.Fused
		}
		if topk.Rerank <= 0 {
			topk.Rerank = def.Rerank
		}
	}

	rrfK := req.RRFK
	if rrfK <= 0 {
		rrfK = r.defaults.RRFK
	}
	maxIters := req.MaxIters
	if maxIters <= 0 {
		maxIters = r.defaults.MaxIters
	}
	diversity := r.defaults.Diversity
	if req.Diversity != nil {
		diversity = *req.Diversity
		if diversity.MaxPerDoc <= 0 {
			diversity.MaxPerDoc = r.defaults.Diversity.MaxPerDoc
		}
		if diversity.MinDocs <= 0 {
			diversity.MinDocs = r.defaults.Diversity.MinDocs
		}
	}
	maxChars := req.MaxCharsPerChunk
	if maxChars <= 0 {
		maxChars = r.defaults.MaxCharsPerChunk
	}
	return topk, rrfK, maxIters, diversity, maxChars
}

// Counts reports backing-store sizes for readiness checks.
func (r *HybridRetriever) Counts(ctx context.Context) (int, int, error) {
	vectorCount, err := r.vector.Count(ctx)
	if err != nil {
		return 0, 0, domain.WrapError(domain.ErrStoreUnavailable, "count", err)
	}
	return vectorCount, r.lexical.Count(), nil
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
