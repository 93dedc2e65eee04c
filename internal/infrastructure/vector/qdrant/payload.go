package qdrant

import (
	"fmt"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// Payload field names as stored in Qdrant. Typed fields stay at the top
// level so server-side filters can match them; everything else rides under
// "extra".
const (
	fieldDocID     = "doc_id"
	fieldChunkID   = "chunk_id"
	fieldText      = "text"
	fieldTitle     = "title"
	fieldURL       = "url"
	fieldSourceID  = "source_id"
	fieldTenantID  = "tenant_id"
	fieldTags      = "tags"
	fieldCreatedAt = "created_at"
	fieldExtra     = "extra"
)

func encodePayload(p domain.ChunkPayload) map[string]any {
	out := map[string]any{
		fieldDocID:   p.DocID,
		fieldChunkID: p.ChunkID,
		fieldText:    p.Text,
	}
	if p.Title != "" {
		out[fieldTitle] = p.Title
	}
	if p.URL != "" {
		out[fieldURL] = p.URL
	}
	if p.SourceID != "" {
		out[fieldSourceID] = p.SourceID
	}
	if p.TenantID != "" {
		out[fieldTenantID] = p.TenantID
	}
	if len(p.Tags) > 0 {
		out[fieldTags] = p.Tags
	}
	if p.CreatedAt != "" {
		out[fieldCreatedAt] = p.CreatedAt
	}
	if len(p.Extra) > 0 {
		out[fieldExtra] = p.Extra
	}
	return out
}

func decodePayload(raw map[string]any) domain.ChunkPayload {
	p := domain.ChunkPayload{
		DocID:     getString(raw, fieldDocID),
		ChunkID:   getInt(raw, fieldChunkID),
		Text:      getString(raw, fieldText),
		Title:     getString(raw, fieldTitle),
		URL:       getString(raw, fieldURL),
		SourceID:  getString(raw, fieldSourceID),
		TenantID:  getString(raw, fieldTenantID),
		Tags:      getStrings(raw, fieldTags),
		CreatedAt: getString(raw, fieldCreatedAt),
	}
	if extra, ok := raw[fieldExtra].(map[string]any); ok && len(extra) > 0 {
		p.Extra = extra
	}
	return p
}

// buildFilter translates retrieval filters into a Qdrant filter clause.
// Returns nil when there is nothing to filter on.
func buildFilter(f domain.RetrievalFilters) map[string]any {
	if f.IsEmpty() {
		return nil
	}

	must := make([]map[string]any, 0, 4)
	if f.TenantID != "" {
		must = append(must, matchValue(fieldTenantID, f.TenantID))
	}
	if f.SourceID != "" {
		must = append(must, matchValue(fieldSourceID, f.SourceID))
	}
	if len(f.DocIDs) > 0 {
		must = append(must, matchAny(fieldDocID, f.DocIDs))
	}
	if len(f.Tags) > 0 {
		must = append(must, matchAny(fieldTags, f.Tags))
	}
	if f.DateFrom != "" || f.DateTo != "" {
		rangeClause := map[string]any{}
		if f.DateFrom != "" {
			rangeClause["gte"] = f.DateFrom
		}
		if f.DateTo != "" {
			rangeClause["lte"] = f.DateTo
		}
		must = append(must, map[string]any{
			"key":   fieldCreatedAt,
			"range": rangeClause,
		})
	}

	return map[string]any{"must": must}
}

func matchValue(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func matchAny(key string, values []string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"any": values},
	}
}

func getString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getInt(payload map[string]any, key string) int {
	switch n := payload[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func getStrings(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
