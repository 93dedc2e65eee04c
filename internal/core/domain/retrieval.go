package domain

import "fmt"

// Origin identifies which retrieval stage produced a hit. Scores are only
// comparable between hits that share an origin.
type Origin string

const (
	OriginDense    Origin = "dense"
	OriginSparse   Origin = "sparse"
	OriginFused    Origin = "fused"
	OriginReranked Origin = "reranked"
)

// Attribute keys carried in SearchHit.Attributes for provenance.
const (
	AttrDenseRank      = "dense_rank"
	AttrDenseScore     = "dense_score"
	AttrSparseRank     = "sparse_rank"
	AttrSparseScore    = "sparse_score"
	AttrRRFScore       = "rrf_score"
	AttrPreRerankScore = "pre_rerank_score"
	AttrRerankMethod   = "rerank_method"
)

// SearchHit is one retrieval candidate from a single method. Two hits are the
// same logical candidate iff (DocID, ChunkID) match, regardless of origin.
type SearchHit struct {
	ID         string         `json:"id"`
	DocID      string         `json:"doc_id"`
	ChunkID    int            `json:"chunk_id"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Origin     Origin         `json:"origin"`
	Payload    ChunkPayload   `json:"payload"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Key returns the dedup identity used by fusion and diversity selection.
func (h SearchHit) Key() string {
	return fmt.Sprintf("%s::%d", h.DocID, h.ChunkID)
}

// SetAttr enriches the hit's attribute map, allocating it on first use.
func (h *SearchHit) SetAttr(key string, value any) {
	if h.Attributes == nil {
		h.Attributes = make(map[string]any, 4)
	}
	h.Attributes[key] = value
}

// ChunkPayload is the metadata stored alongside each indexed chunk. The core
// fields are typed; anything else rides in Extra.
type ChunkPayload struct {
	DocID     string         `json:"doc_id"`
	ChunkID   int            `json:"chunk_id"`
	Text      string         `json:"text"`
	Title     string         `json:"title,omitempty"`
	URL       string         `json:"url,omitempty"`
	SourceID  string         `json:"source_id,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// ContextChunk is one finally-selected passage, ready for downstream use.
// Immutable once produced.
type ContextChunk struct {
	DocID     string  `json:"doc_id"`
	ChunkID   int     `json:"chunk_id"`
	Text      string  `json:"text"`
	Title     string  `json:"title,omitempty"`
	URL       string  `json:"url,omitempty"`
	SourceID  string  `json:"source_id"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
	WhyPicked string  `json:"why_picked"`
}

// RetrievalFilters is a predicate over chunk metadata. The zero value matches
// everything. Both retrieval methods apply the same filter so they see the
// same logical candidate universe.
type RetrievalFilters struct {
	TenantID string   `json:"tenant_id,omitempty"`
	DocIDs   []string `json:"doc_ids,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	SourceID string   `json:"source_id,omitempty"`
	DateFrom string   `json:"date_from,omitempty"` // RFC 3339
	DateTo   string   `json:"date_to,omitempty"`   // RFC 3339
}

func (f RetrievalFilters) IsEmpty() bool {
	return f.TenantID == "" &&
		len(f.DocIDs) == 0 &&
		len(f.Tags) == 0 &&
		f.SourceID == "" &&
		f.DateFrom == "" &&
		f.DateTo == ""
}

// Matches reports whether a payload satisfies the filter. The lexical index
// applies this before scoring; the vector store pushes the same predicate
// down to the server.
func (f RetrievalFilters) Matches(p ChunkPayload) bool {
	if f.IsEmpty() {
		return true
	}
	if f.TenantID != "" && p.TenantID != f.TenantID {
		return false
	}
	if f.SourceID != "" && p.SourceID != f.SourceID {
		return false
	}
	if len(f.DocIDs) > 0 && !containsString(f.DocIDs, p.DocID) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, p.Tags) {
		return false
	}
	if f.DateFrom != "" && p.CreatedAt != "" && p.CreatedAt < f.DateFrom {
		return false
	}
	if f.DateTo != "" && p.CreatedAt != "" && p.CreatedAt > f.DateTo {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// TopKConfig holds candidate-pool sizes at each stage. Resolved once per
// request; the adaptive loop widens Dense and Sparse on its own copy.
type TopKConfig struct {
	Dense  int `json:"dense"`
	Sparse int `json:"sparse"`
	Fused  int `json:"fused"`
	Rerank int `json:"rerank"`
}

func DefaultTopK() TopKConfig {
	return TopKConfig{Dense: 60, Sparse: 60, Fused: 80, Rerank: 12}
}

// DiversityConfig bounds the final selection.
type DiversityConfig struct {
	MaxPerDoc int `json:"max_per_doc"`
	MinDocs   int `json:"min_docs"`
}

func DefaultDiversity() DiversityConfig {
	return DiversityConfig{MaxPerDoc: 3, MinDocs: 3}
}

// ResolvedParams records the configuration a request actually ran with.
type ResolvedParams struct {
	TopK         TopKConfig       `json:"topk"`
	RRFK         int              `json:"rrf_k"`
	MaxIters     int              `json:"max_iters"`
	Diversity    DiversityConfig  `json:"diversity"`
	MaxCharsPer  int              `json:"max_chars_per_chunk"`
	Filters      RetrievalFilters `json:"filters"`
	ExpandFactor float64          `json:"expand_factor"`
}

// DebugInfo is the per-request telemetry record: stage timings, candidate
// counts, resolved parameters and free-text notes. Request-local; read-only
// once the request completes.
type DebugInfo struct {
	Timings map[string]float64 `json:"timings"`
	Counts  map[string]int     `json:"counts"`
	Params  ResolvedParams     `json:"params"`
	Notes   []string           `json:"notes"`
}

func NewDebugInfo() *DebugInfo {
	return &DebugInfo{
		Timings: map[string]float64{
			"embed_ms":  0,
			"dense_ms":  0,
			"sparse_ms": 0,
			"fuse_ms":   0,
			"rerank_ms": 0,
			"total_ms":  0,
		},
		Counts: map[string]int{
			"dense_n":    0,
			"sparse_n":   0,
			"fused_n":    0,
			"reranked_n": 0,
			"final_n":    0,
		},
		Notes: []string{},
	}
}

func (d *DebugInfo) AddNote(format string, args ...any) {
	d.Notes = append(d.Notes, fmt.Sprintf(format, args...))
}
