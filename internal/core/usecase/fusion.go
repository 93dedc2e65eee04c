package usecase

import (
	"sort"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// fuseRRF merges the dense and sparse candidate lists with Reciprocal Rank
// Fusion: each hit contributes 1/(k+rank) per list it appears in, accumulated
// by (doc, chunk) identity so agreement between methods is rewarded. Fusion
// is rank-based on purpose; dense and sparse scores live on incomparable
// scales. Input lists must already be sorted by their own score.
func fuseRRF(denseHits, sparseHits []domain.SearchHit, rrfK, topKFused int) []domain.SearchHit {
	if rrfK <= 0 {
		rrfK = 60
	}

	type fusedCandidate struct {
		hit   domain.SearchHit
		score float64
	}
	acc := make(map[string]*fusedCandidate, len(denseHits)+len(sparseHits))

	addList := func(hits []domain.SearchHit, rankAttr, scoreAttr string) {
		for i, hit := range hits {
			rank := i + 1
			contribution := 1.0 / float64(rrfK+rank)

			key := hit.Key()
			candidate, ok := acc[key]
			if !ok {
				fused := hit
				fused.Origin = domain.OriginFused
				fused.Score = 0
				fused.Attributes = cloneAttrs(hit.Attributes)
				candidate = &fusedCandidate{hit: fused}
				acc[key] = candidate
			}
			candidate.score += contribution
			candidate.hit.SetAttr(rankAttr, rank)
			candidate.hit.SetAttr(scoreAttr, hit.Score)
		}
	}

	addList(denseHits, domain.AttrDenseRank, domain.AttrDenseScore)
	addList(sparseHits, domain.AttrSparseRank, domain.AttrSparseScore)

	out := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		c.hit.Score = c.score
		c.hit.SetAttr(domain.AttrRRFScore, c.score)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].hit.Score != out[j].hit.Score {
			return out[i].hit.Score > out[j].hit.Score
		}
		if out[i].hit.DocID != out[j].hit.DocID {
			return out[i].hit.DocID < out[j].hit.DocID
		}
		return out[i].hit.ChunkID < out[j].hit.ChunkID
	})

	if topKFused > 0 && len(out) > topKFused {
		out = out[:topKFused]
	}
	hits := make([]domain.SearchHit, 0, len(out))
	for _, c := range out {
		hits = append(hits, c.hit)
	}
	return hits
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
