package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
)

func noRetryGuard() *resilience.Guard {
	return resilience.NewGuard(resilience.Config{MaxAttempts: 1, BreakerEnabled: false})
}

func TestIndexChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	payloads := []domain.ChunkPayload{
		{DocID: "doc-1", ChunkID: 0, Text: "a"},
		{DocID: "doc-1", ChunkID: 1, Text: "b"},
	}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if n, err := client.IndexChunks(context.Background(), payloads, vectors); err != nil || n != 2 {
		t.Fatalf("first IndexChunks() = %d, %v", n, err)
	}
	if _, err := client.IndexChunks(context.Background(), payloads, vectors); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/chunks" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	_, err := client.IndexChunks(context.Background(), []domain.ChunkPayload{{DocID: "doc-1", Text: "a"}}, [][]float32{{0.1, 0.2}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchDenseDecodesHitsAndPushesFilters(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.92,"payload":{"doc_id":"doc-1","chunk_id":3,"text":"hello","tenant_id":"t1"}},
			{"id":"p2","score":0.81,"payload":{"doc_id":"doc-2","chunk_id":0,"text":"world"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	hits, err := client.SearchDense(context.Background(), []float32{0.1}, 5, domain.RetrievalFilters{
		TenantID: "t1",
		DocIDs:   []string{"doc-1", "doc-2"},
	})
	if err != nil {
		t.Fatalf("SearchDense() error = %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].DocID != "doc-1" || hits[0].ChunkID != 3 || hits[0].Score != 0.92 {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
	if hits[0].Origin != domain.OriginDense {
		t.Fatalf("expected dense origin, got %s", hits[0].Origin)
	}
	if hits[0].Payload.TenantID != "t1" {
		t.Fatalf("expected payload decoded, got %+v", hits[0].Payload)
	}

	if gotBody["limit"] != float64(5) {
		t.Fatalf("expected limit 5, got %v", gotBody["limit"])
	}
	if _, ok := gotBody["filter"]; !ok {
		t.Fatalf("expected filter clause in request body: %v", gotBody)
	}
}

func TestSearchDenseOmitsEmptyFilter(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	if _, err := client.SearchDense(context.Background(), []float32{0.1}, 5, domain.RetrievalFilters{}); err != nil {
		t.Fatalf("SearchDense() error = %v", err)
	}
	if _, ok := gotBody["filter"]; ok {
		t.Fatalf("expected no filter clause for empty filters: %v", gotBody)
	}
}

func TestScrollPayloadsFollowsCursor(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/scroll" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"result":{"points":[{"payload":{"doc_id":"doc-1","chunk_id":0,"text":"a"}}],"next_page_offset":"cursor-1"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"payload":{"doc_id":"doc-2","chunk_id":0,"text":"b"}}],"next_page_offset":null}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	payloads, err := client.ScrollPayloads(context.Background(), domain.RetrievalFilters{}, 0)
	if err != nil {
		t.Fatalf("ScrollPayloads() error = %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}
	if payloads[1].DocID != "doc-2" {
		t.Fatalf("unexpected payloads %+v", payloads)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 scroll pages, got %d", calls)
	}
}

func TestScrollPayloadsMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	payloads, err := client.ScrollPayloads(context.Background(), domain.RetrievalFilters{}, 0)
	if err != nil {
		t.Fatalf("ScrollPayloads() error = %v", err)
	}
	if len(payloads) != 0 {
		t.Fatalf("expected no payloads, got %d", len(payloads))
	}
}

func TestCountMissingCollectionIsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	n, err := client.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestCountDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"count":1234}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", noRetryGuard())
	n, err := client.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1234 {
		t.Fatalf("expected 1234, got %d", n)
	}
}

func TestSearchDenseRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.9,"payload":{"doc_id":"doc-1","chunk_id":0,"text":"a"}}]}`))
	}))
	defer server.Close()

	guard := resilience.NewGuard(resilience.Config{MaxAttempts: 2, InitialBackoff: 1, BreakerEnabled: false})
	client := New(server.URL, "chunks", guard)
	hits, err := client.SearchDense(context.Background(), []float32{0.1}, 5, domain.RetrievalFilters{})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestCountMissingCollectionIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	guard := resilience.NewGuard(resilience.Config{MaxAttempts: 3, InitialBackoff: 1, BreakerEnabled: false})
	client := New(server.URL, "chunks", guard)
	n, err := client.Count(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected empty count, got %d, %v", n, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected single attempt for missing collection, got %d", calls)
	}
}

func TestPointIDIsDeterministicPerChunkIdentity(t *testing.T) {
	a := domain.ChunkPayload{TenantID: "t1", DocID: "doc-1", ChunkID: 2}
	b := domain.ChunkPayload{TenantID: "t1", DocID: "doc-1", ChunkID: 2, Text: "content differs"}
	c := domain.ChunkPayload{TenantID: "t1", DocID: "doc-1", ChunkID: 3}

	if PointID(a) != PointID(b) {
		t.Fatalf("same identity must produce same point id")
	}
	if PointID(a) == PointID(c) {
		t.Fatalf("different chunks must produce different point ids")
	}
}
