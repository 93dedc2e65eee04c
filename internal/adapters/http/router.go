// Package httpadapter exposes the retrieval engine over a small REST
// surface.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
	"github.com/kirillkom/hybrid-retrieval/internal/core/usecase"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/metrics"
)

const serviceName = "hybrid-retrieval"

type Router struct {
	retriever ports.Retriever
	indexer   ports.Indexer
	health    ports.HealthReporter
	metrics   *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

func NewRouter(
	retriever ports.Retriever,
	indexer ports.Indexer,
	health ports.HealthReporter,
	m *metrics.HTTPServerMetrics,
	options Options,
) *Router {
	return &Router{
		retriever:      retriever,
		indexer:        indexer,
		health:         health,
		metrics:        m,
		rateLimitRPS:   options.RateLimitRPS,
		rateLimitBurst: options.RateLimitBurst,
		maxInFlight:    options.MaxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", rt.healthCheck)
	mux.HandleFunc("/retrieve", rt.retrieve)
	mux.HandleFunc("/index/documents", rt.indexDocuments)
	mux.HandleFunc("/index/rebuild", rt.rebuildIndex)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = accessLogMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	if rt.maxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.maxInFlight, 50*time.Millisecond)
	}
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	}
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	vectorCount, lexicalCount, err := rt.health.Counts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"qdrant_count": vectorCount,
		"bm25_count":   lexicalCount,
	})
}

type retrieveRequestBody struct {
	Query            string                  `json:"query"`
	Filters          domain.RetrievalFilters `json:"filters"`
	TopK             *domain.TopKConfig      `json:"topk,omitempty"`
	RRFK             int                     `json:"rrf_k,omitempty"`
	MaxIters         int                     `json:"max_iters,omitempty"`
	Diversity        *domain.DiversityConfig `json:"diversity,omitempty"`
	MaxCharsPerChunk int                     `json:"max_chars_per_chunk,omitempty"`
	Debug            bool                    `json:"debug,omitempty"`
	WithContext      bool                    `json:"with_context,omitempty"`
}

type retrieveResponseBody struct {
	Chunks  []domain.ContextChunk `json:"chunks"`
	Context string                `json:"context,omitempty"`
	Debug   *domain.DebugInfo     `json:"debug,omitempty"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var body retrieveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	chunks, debug, err := rt.retriever.RetrieveAndRerank(r.Context(), ports.RetrieveRequest{
		Query:            body.Query,
		Filters:          body.Filters,
		TopK:             body.TopK,
		RRFK:             body.RRFK,
		MaxIters:         body.MaxIters,
		Diversity:        body.Diversity,
		MaxCharsPerChunk: body.MaxCharsPerChunk,
	})
	if err != nil {
		rt.recordRetrieval("error", debug)
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	rt.recordRetrieval("ok", debug)

	resp := retrieveResponseBody{Chunks: chunks}
	if body.WithContext {
		resp.Context = usecase.FormatContext(chunks)
	}
	if body.Debug {
		resp.Debug = debug
	}
	writeJSON(w, http.StatusOK, resp)
}

type indexDocumentsRequestBody struct {
	Chunks []domain.ChunkPayload `json:"chunks"`
}

func (rt *Router) indexDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var body indexDocumentsRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(body.Chunks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chunks are required"})
		return
	}

	indexed, err := rt.indexer.UpsertChunks(r.Context(), body.Chunks)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordIndexedChunks(serviceName, indexed)
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": indexed})
}

func (rt *Router) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	indexed, err := rt.indexer.RebuildLexicalIndex(r.Context())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": indexed})
}

func (rt *Router) recordRetrieval(status string, debug *domain.DebugInfo) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordRetrieval(serviceName, status, debug)
	if debug == nil {
		return
	}
	for _, note := range debug.Notes {
		switch {
		case strings.Contains(note, "expanding search"):
			rt.metrics.RecordExpansion(serviceName)
		case strings.HasPrefix(note, "rerank method: "):
			rt.metrics.RecordRerankFallback(serviceName, strings.TrimPrefix(note, "rerank method: "))
		case strings.Contains(note, "dense-only"):
			rt.metrics.RecordLexicalDegraded(serviceName)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
