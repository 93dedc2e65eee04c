package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/textproc"
)

// whyPickedDiversity tags hits force-admitted by the minimum-documents pass.
const whyPickedDiversity = "added for diversity"

// selectDiverse walks the ranked list and admits hits while each document
// stays under maxPerDoc. If fewer than minDocs distinct documents survive the
// primary pass, a second pass force-admits one remaining hit per missing
// document, exceeding maxPerDoc for that single admission. Rank is the
// admission order, 1-based and contiguous.
func selectDiverse(hits []domain.SearchHit, diversity domain.DiversityConfig, maxCharsPerChunk int) []domain.ContextChunk {
	docCounts := make(map[string]int, len(hits))
	admitted := make(map[string]struct{}, len(hits))
	result := make([]domain.ContextChunk, 0, len(hits))

	for _, hit := range hits {
		if docCounts[hit.DocID] >= diversity.MaxPerDoc {
			continue
		}
		docCounts[hit.DocID]++
		admitted[hit.Key()] = struct{}{}
		result = append(result, toContextChunk(hit, len(result)+1, whyPicked(hit), maxCharsPerChunk))
	}

	if len(docCounts) >= diversity.MinDocs {
		return result
	}

	// Not enough distinct documents; force-admit one hit per still-missing
	// document from the not-yet-admitted remainder.
	for _, hit := range hits {
		if _, ok := admitted[hit.Key()]; ok {
			continue
		}
		if docCounts[hit.DocID] > 0 {
			continue
		}
		docCounts[hit.DocID] = 1
		admitted[hit.Key()] = struct{}{}
		result = append(result, toContextChunk(hit, len(result)+1, whyPickedDiversity, maxCharsPerChunk))
		if len(docCounts) >= diversity.MinDocs {
			break
		}
	}

	return result
}

func toContextChunk(hit domain.SearchHit, rank int, why string, maxChars int) domain.ContextChunk {
	return domain.ContextChunk{
		DocID:     hit.DocID,
		ChunkID:   hit.ChunkID,
		Text:      textproc.TruncateAtWhitespace(hit.Text, maxChars),
		Title:     hit.Payload.Title,
		URL:       hit.Payload.URL,
		SourceID:  hit.Payload.SourceID,
		Score:     hit.Score,
		Rank:      rank,
		WhyPicked: why,
	}
}

// whyPicked builds the provenance line from fusion and rerank attributes,
// e.g. "dense #3, sparse #7, rerank score 0.820".
func whyPicked(hit domain.SearchHit) string {
	parts := make([]string, 0, 3)
	if rank, ok := intAttr(hit, domain.AttrDenseRank); ok {
		parts = append(parts, fmt.Sprintf("dense #%d", rank))
	}
	if rank, ok := intAttr(hit, domain.AttrSparseRank); ok {
		parts = append(parts, fmt.Sprintf("sparse #%d", rank))
	}
	parts = append(parts, fmt.Sprintf("rerank score %.3f", hit.Score))
	return strings.Join(parts, ", ")
}

func intAttr(hit domain.SearchHit, key string) (int, bool) {
	v, ok := hit.Attributes[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// FormatContext renders the final chunks as a prompt-ready context block.
func FormatContext(chunks []domain.ContextChunk) string {
	if len(chunks) == 0 {
		return "(no context found)"
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		header := fmt.Sprintf("[%d] %s", c.Rank, headerLabel(c))
		if c.URL != "" {
			header += fmt.Sprintf(" (%s)", c.URL)
		}
		parts = append(parts, header+"\n"+c.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func headerLabel(c domain.ContextChunk) string {
	if c.Title != "" {
		return c.Title
	}
	return c.SourceID
}
