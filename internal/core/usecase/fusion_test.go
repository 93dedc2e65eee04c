package usecase

import (
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func denseHit(docID string, chunkID int, score float64) domain.SearchHit {
	return domain.SearchHit{
		DocID:   docID,
		ChunkID: chunkID,
		Text:    docID,
		Score:   score,
		Origin:  domain.OriginDense,
	}
}

func sparseHit(docID string, chunkID int, score float64) domain.SearchHit {
	return domain.SearchHit{
		DocID:   docID,
		ChunkID: chunkID,
		Text:    docID,
		Score:   score,
		Origin:  domain.OriginSparse,
	}
}

func TestFuseRRFDeduplicatesByChunkIdentity(t *testing.T) {
	dense := []domain.SearchHit{
		denseHit("doc-1", 0, 0.9),
		denseHit("doc-2", 0, 0.8),
	}
	sparse := []domain.SearchHit{
		sparseHit("doc-2", 0, 12.0),
		sparseHit("doc-3", 1, 7.5),
	}

	fused := fuseRRF(dense, sparse, 60, 0)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(fused))
	}
	if fused[0].DocID != "doc-2" {
		t.Fatalf("expected doc-2 first after agreement boost, got %s", fused[0].DocID)
	}
	for _, hit := range fused {
		if hit.Origin != domain.OriginFused {
			t.Fatalf("expected fused origin, got %s", hit.Origin)
		}
	}
}

func TestFuseRRFSparseOnlyHitSurvives(t *testing.T) {
	dense := []domain.SearchHit{denseHit("doc-1", 0, 0.99)}
	sparse := []domain.SearchHit{sparseHit("doc-9", 4, 3.0)}

	fused := fuseRRF(dense, sparse, 60, 0)
	found := false
	for _, hit := range fused {
		if hit.DocID == "doc-9" && hit.ChunkID == 4 {
			found = true
		}
	}
	if !found {
		t.Fatalf("sparse-only candidate missing from %v", fused)
	}
}

func TestFuseRRFRecordsProvenanceAttributes(t *testing.T) {
	dense := []domain.SearchHit{denseHit("doc-1", 0, 0.9)}
	sparse := []domain.SearchHit{
		sparseHit("doc-2", 0, 9.0),
		sparseHit("doc-1", 0, 5.0),
	}

	fused := fuseRRF(dense, sparse, 60, 0)
	var both domain.SearchHit
	for _, hit := range fused {
		if hit.DocID == "doc-1" {
			both = hit
		}
	}
	if both.Attributes[domain.AttrDenseRank] != 1 {
		t.Fatalf("expected dense rank 1, got %v", both.Attributes[domain.AttrDenseRank])
	}
	if both.Attributes[domain.AttrSparseRank] != 2 {
		t.Fatalf("expected sparse rank 2, got %v", both.Attributes[domain.AttrSparseRank])
	}
	if both.Attributes[domain.AttrDenseScore] != 0.9 {
		t.Fatalf("expected original dense score, got %v", both.Attributes[domain.AttrDenseScore])
	}
	if _, ok := both.Attributes[domain.AttrRRFScore].(float64); !ok {
		t.Fatalf("expected rrf score attribute, got %v", both.Attributes[domain.AttrRRFScore])
	}
}

func TestFuseRRFScoreIsSumOfRankContributions(t *testing.T) {
	dense := []domain.SearchHit{denseHit("doc-1", 0, 0.5)}
	sparse := []domain.SearchHit{sparseHit("doc-1", 0, 8.0)}

	fused := fuseRRF(dense, sparse, 60, 0)
	want := 2.0 / 61.0
	if diff := fused[0].Score - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("expected score %v, got %v", want, fused[0].Score)
	}
}

func TestFuseRRFTruncatesToTopK(t *testing.T) {
	dense := []domain.SearchHit{
		denseHit("doc-1", 0, 0.9),
		denseHit("doc-2", 0, 0.8),
		denseHit("doc-3", 0, 0.7),
	}
	fused := fuseRRF(dense, nil, 60, 2)
	if len(fused) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(fused))
	}
}

func TestFuseRRFTieBreakIsDeterministic(t *testing.T) {
	dense := []domain.SearchHit{denseHit("doc-b", 0, 0.5)}
	sparse := []domain.SearchHit{sparseHit("doc-a", 0, 5.0)}

	fused := fuseRRF(dense, sparse, 60, 0)
	if fused[0].DocID != "doc-a" {
		t.Fatalf("expected tie-break by doc id, got %s first", fused[0].DocID)
	}
}
