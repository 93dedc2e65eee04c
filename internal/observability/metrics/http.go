package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// HTTPServerMetrics owns a private registry so tests can construct several
// instances without collisions.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalRequestsTotal *prometheus.CounterVec
	retrievalStageDuration *prometheus.HistogramVec
	retrievalCandidates    *prometheus.HistogramVec
	retrievalFinalChunks   *prometheus.HistogramVec
	expansionsTotal        *prometheus.CounterVec
	rerankFallbackTotal    *prometheus.CounterVec
	lexicalDegradedTotal   *prometheus.CounterVec
	indexedChunksTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hr",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hr",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests by outcome.",
		},
		[]string{"service", "status"},
	)
	retrievalStageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hr",
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	retrievalCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hr",
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Candidate pool size after each pipeline stage.",
			Buckets:   []float64{0, 5, 10, 20, 40, 60, 80, 120, 200},
		},
		[]string{"service", "stage"},
	)
	retrievalFinalChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hr",
			Subsystem: "retrieval",
			Name:      "final_chunks",
			Help:      "Distribution of finally selected chunks per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	expansionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr",
			Subsystem: "retrieval",
			Name:      "expansions_total",
			Help:      "Total adaptive pool expansions triggered by weak coverage.",
		},
		[]string{"service"},
	)
	rerankFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr",
			Subsystem: "retrieval",
			Name:      "rerank_fallback_total",
			Help:      "Total requests answered without the pairwise scorer.",
		},
		[]string{"service", "method"},
	)
	lexicalDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr",
			Subsystem: "retrieval",
			Name:      "lexical_degraded_total",
			Help:      "Total requests served dense-only because the lexical index was unavailable.",
		},
		[]string{"service"},
	)
	indexedChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hr",
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Total chunks written to the vector store.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalRequestsTotal,
		retrievalStageDuration,
		retrievalCandidates,
		retrievalFinalChunks,
		expansionsTotal,
		rerankFallbackTotal,
		lexicalDegradedTotal,
		indexedChunksTotal,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		retrievalRequestsTotal: retrievalRequestsTotal,
		retrievalStageDuration: retrievalStageDuration,
		retrievalCandidates:    retrievalCandidates,
		retrievalFinalChunks:   retrievalFinalChunks,
		expansionsTotal:        expansionsTotal,
		rerankFallbackTotal:    rerankFallbackTotal,
		lexicalDegradedTotal:   lexicalDegradedTotal,
		indexedChunksTotal:     indexedChunksTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := NewResponseRecorder(w)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordRetrieval translates one request's debug record into metric
// observations.
func (m *HTTPServerMetrics) RecordRetrieval(service, status string, debug *domain.DebugInfo) {
	m.retrievalRequestsTotal.WithLabelValues(service, status).Inc()
	if debug == nil {
		return
	}

	for stage, key := range map[string]string{
		"embed":  "embed_ms",
		"dense":  "dense_ms",
		"sparse": "sparse_ms",
		"fuse":   "fuse_ms",
		"rerank": "rerank_ms",
		"total":  "total_ms",
	} {
		m.retrievalStageDuration.WithLabelValues(service, stage).Observe(debug.Timings[key] / 1000.0)
	}
	for stage, key := range map[string]string{
		"dense":    "dense_n",
		"sparse":   "sparse_n",
		"fused":    "fused_n",
		"reranked": "reranked_n",
	} {
		m.retrievalCandidates.WithLabelValues(service, stage).Observe(float64(debug.Counts[key]))
	}
	m.retrievalFinalChunks.WithLabelValues(service).Observe(float64(debug.Counts["final_n"]))
}

func (m *HTTPServerMetrics) RecordExpansion(service string) {
	m.expansionsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordRerankFallback(service, method string) {
	if method == "" {
		method = "unknown"
	}
	m.rerankFallbackTotal.WithLabelValues(service, method).Inc()
}

func (m *HTTPServerMetrics) RecordLexicalDegraded(service string) {
	m.lexicalDegradedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordIndexedChunks(service string, count int) {
	if count <= 0 {
		return
	}
	m.indexedChunksTotal.WithLabelValues(service).Add(float64(count))
}
