package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func rankedHit(docID string, chunkID int, score float64) domain.SearchHit {
	return domain.SearchHit{
		DocID:   docID,
		ChunkID: chunkID,
		Text:    "chunk text",
		Score:   score,
		Origin:  domain.OriginReranked,
	}
}

func TestSelectDiverseCapsChunksPerDocument(t *testing.T) {
	hits := []domain.SearchHit{
		rankedHit("doc-a", 0, 0.9),
		rankedHit("doc-a", 1, 0.8),
		rankedHit("doc-a", 2, 0.7),
		rankedHit("doc-b", 0, 0.6),
	}
	chunks := selectDiverse(hits, domain.DiversityConfig{MaxPerDoc: 2, MinDocs: 2}, 0)

	countA := 0
	for _, c := range chunks {
		if c.DocID == "doc-a" {
			countA++
		}
	}
	if countA != 2 {
		t.Fatalf("expected 2 chunks from doc-a, got %d", countA)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks total, got %d", len(chunks))
	}
}

func TestSelectDiverseForceAdmitsForMinDocs(t *testing.T) {
	hits := []domain.SearchHit{
		rankedHit("doc-a", 0, 0.9),
		rankedHit("doc-a", 1, 0.8),
		rankedHit("doc-a", 2, 0.7),
		rankedHit("doc-b", 0, 0.1),
	}
	chunks := selectDiverse(hits, domain.DiversityConfig{MaxPerDoc: 3, MinDocs: 2}, 0)

	last := chunks[len(chunks)-1]
	if last.DocID != "doc-b" {
		t.Fatalf("expected doc-b force-admitted last, got %s", last.DocID)
	}
	if last.WhyPicked != whyPickedDiversity {
		t.Fatalf("expected diversity provenance, got %q", last.WhyPicked)
	}
}

func TestSelectDiverseSingleDocumentDoesNotCrash(t *testing.T) {
	hits := []domain.SearchHit{
		rankedHit("doc-a", 0, 0.9),
		rankedHit("doc-a", 1, 0.8),
		rankedHit("doc-a", 2, 0.7),
	}
	chunks := selectDiverse(hits, domain.DiversityConfig{MaxPerDoc: 1, MinDocs: 2}, 0)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk when only one document exists, got %d", len(chunks))
	}
}

func TestSelectDiverseRanksAreContiguous(t *testing.T) {
	hits := []domain.SearchHit{
		rankedHit("doc-a", 0, 0.9),
		rankedHit("doc-a", 1, 0.8),
		rankedHit("doc-b", 0, 0.7),
		rankedHit("doc-c", 0, 0.6),
	}
	chunks := selectDiverse(hits, domain.DiversityConfig{MaxPerDoc: 1, MinDocs: 3}, 0)
	for i, c := range chunks {
		if c.Rank != i+1 {
			t.Fatalf("expected rank %d at position %d, got %d", i+1, i, c.Rank)
		}
	}
}

func TestSelectDiverseTruncatesChunkText(t *testing.T) {
	hit := rankedHit("doc-a", 0, 0.9)
	hit.Text = strings.Repeat("word ", 100)
	chunks := selectDiverse([]domain.SearchHit{hit}, domain.DiversityConfig{MaxPerDoc: 1, MinDocs: 1}, 50)
	if len(chunks[0].Text) > 50+len("...") {
		t.Fatalf("expected truncated text, got %d chars", len(chunks[0].Text))
	}
}

func TestWhyPickedIncludesBothRanksAndScore(t *testing.T) {
	hit := rankedHit("doc-a", 0, 0.82)
	hit.SetAttr(domain.AttrDenseRank, 3)
	hit.SetAttr(domain.AttrSparseRank, 7)

	got := whyPicked(hit)
	if got != "dense #3, sparse #7, rerank score 0.820" {
		t.Fatalf("unexpected provenance %q", got)
	}
}

func TestWhyPickedDenseOnly(t *testing.T) {
	hit := rankedHit("doc-a", 0, 0.5)
	hit.SetAttr(domain.AttrDenseRank, 1)

	got := whyPicked(hit)
	if got != "dense #1, rerank score 0.500" {
		t.Fatalf("unexpected provenance %q", got)
	}
}

func TestFormatContextEmpty(t *testing.T) {
	if got := FormatContext(nil); got != "(no context found)" {
		t.Fatalf("unexpected empty context %q", got)
	}
}

func TestFormatContextRendersHeadersAndSeparators(t *testing.T) {
	chunks := []domain.ContextChunk{
		{Rank: 1, Title: "Guide", URL: "http://x", Text: "first"},
		{Rank: 2, SourceID: "src-2", Text: "second"},
	}
	got := FormatContext(chunks)
	if !strings.Contains(got, "[1] Guide (http://x)\nfirst") {
		t.Fatalf("missing titled header in %q", got)
	}
	if !strings.Contains(got, "[2] src-2\nsecond") {
		t.Fatalf("missing source header in %q", got)
	}
	if !strings.Contains(got, "\n\n---\n\n") {
		t.Fatalf("missing separator in %q", got)
	}
}
