// Package bm25 is an in-memory BM25 index over chunk payloads with two-file
// persistence.
package bm25

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/textproc"
)

// Okapi BM25 parameters.
const (
	k1 = 1.5
	b  = 0.75
)

// snapshot is one immutable built index. Build swaps the whole snapshot so
// readers never observe a partial state.
type snapshot struct {
	payloads []domain.ChunkPayload
	tokens   [][]string
	lengths  []int
	avgdl    float64
	df       map[string]int
	builtAt  string
}

// Index answers sparse queries against the latest snapshot. Search on an
// index that was never built returns nothing.
type Index struct {
	path string
	snap atomic.Pointer[snapshot]
}

// New creates an index persisted under path. Empty path disables
// persistence.
func New(path string) *Index {
	return &Index{path: path}
}

// Build tokenizes every payload and installs a fresh snapshot. An empty
// corpus installs an empty snapshot, which reads as not ready.
func (idx *Index) Build(payloads []domain.ChunkPayload) error {
	snap := &snapshot{
		payloads: payloads,
		tokens:   make([][]string, len(payloads)),
		lengths:  make([]int, len(payloads)),
		df:       make(map[string]int),
	}

	totalLen := 0
	for i, p := range payloads {
		toks := textproc.Tokenize(p.Text, true)
		snap.tokens[i] = toks
		snap.lengths[i] = len(toks)
		totalLen += len(toks)

		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			snap.df[t]++
		}
	}
	if len(payloads) > 0 {
		snap.avgdl = float64(totalLen) / float64(len(payloads))
	}

	idx.snap.Store(snap)
	return nil
}

// Search scores filter-surviving chunks against the query tokens and returns
// the topK positive-scoring hits, best first.
func (idx *Index) Search(sparseQuery string, topK int, filters domain.RetrievalFilters) []domain.SearchHit {
	snap := idx.snap.Load()
	if snap == nil || len(snap.payloads) == 0 || topK <= 0 {
		return nil
	}

	queryTokens := textproc.Tokenize(sparseQuery, true)
	if len(queryTokens) == 0 {
		return nil
	}

	n := float64(len(snap.payloads))
	hits := make([]domain.SearchHit, 0, topK)

	for i, p := range snap.payloads {
		if !filters.Matches(p) {
			continue
		}
		score := snap.score(i, queryTokens, n)
		if score <= 0 {
			continue
		}
		hits = append(hits, domain.SearchHit{
			ID:      fmt.Sprintf("%s::%d", p.DocID, p.ChunkID),
			DocID:   p.DocID,
			ChunkID: p.ChunkID,
			Text:    p.Text,
			Score:   score,
			Origin:  domain.OriginSparse,
			Payload: p,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocID != hits[j].DocID {
			return hits[i].DocID < hits[j].DocID
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

func (s *snapshot) score(doc int, queryTokens []string, n float64) float64 {
	tf := make(map[string]int, len(queryTokens))
	for _, t := range s.tokens[doc] {
		tf[t]++
	}

	dl := float64(s.lengths[doc])
	norm := k1 * (1 - b + b*dl/s.avgdl)

	score := 0.0
	for _, q := range queryTokens {
		freq := tf[q]
		if freq == 0 {
			continue
		}
		df := float64(s.df[q])
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		score += idf * float64(freq) * (k1 + 1) / (float64(freq) + norm)
	}
	return score
}

// Count reports the number of indexed chunks.
func (idx *Index) Count() int {
	snap := idx.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.payloads)
}

// Ready reports whether a non-empty snapshot is installed.
func (idx *Index) Ready() bool {
	return idx.Count() > 0
}
