// Package qdrant talks to a Qdrant server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
)

// pointNamespace seeds deterministic point ids so re-upserting the same
// (tenant, doc, chunk) overwrites instead of duplicating.
var pointNamespace = uuid.MustParse("8f2b8f66-3b44-4f6e-9a51-6a1d2b3c4d5e")

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	guard      *resilience.Guard

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, guard *resilience.Guard) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		guard:      guard,
	}
}

// IndexChunks upserts one point per payload with wait=true so a following
// search sees the data.
func (c *Client) IndexChunks(ctx context.Context, payloads []domain.ChunkPayload, vectors [][]float32) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	if len(payloads) != len(vectors) {
		return 0, fmt.Errorf("payloads/vectors mismatch: %d vs %d", len(payloads), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return 0, err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(payloads))
	for i, p := range payloads {
		points = append(points, point{
			ID:      PointID(p),
			Vector:  vectors[i],
			Payload: encodePayload(p),
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.call(ctx, "upsert", http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
		return 0, err
	}
	return len(points), nil
}

// SearchDense runs a filtered cosine search and returns hits in server rank
// order.
func (c *Client) SearchDense(
	ctx context.Context,
	queryVector []float32,
	topK int,
	filters domain.RetrievalFilters,
) ([]domain.SearchHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        topK,
		"with_payload": true,
	}
	if filter := buildFilter(filters); filter != nil {
		reqBody["filter"] = filter
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.call(ctx, "search", http.MethodPost, url, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		payload := decodePayload(r.Payload)
		out = append(out, domain.SearchHit{
			ID:      fmt.Sprintf("%v", r.ID),
			DocID:   payload.DocID,
			ChunkID: payload.ChunkID,
			Text:    payload.Text,
			Score:   r.Score,
			Origin:  domain.OriginDense,
			Payload: payload,
		})
	}
	return out, nil
}

// ScrollPayloads pages through the collection with the points/scroll endpoint
// until limit payloads are collected or the cursor is exhausted.
func (c *Client) ScrollPayloads(ctx context.Context, filters domain.RetrievalFilters, limit int) ([]domain.ChunkPayload, error) {
	const pageSize = 256

	out := make([]domain.ChunkPayload, 0, pageSize)
	var offset any

	for limit <= 0 || len(out) < limit {
		reqBody := map[string]any{
			"limit":        pageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}
		if filter := buildFilter(filters); filter != nil {
			reqBody["filter"] = filter
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}

		url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
		err := c.call(ctx, "scroll", http.MethodPost, url, reqBody, &scrollResp)
		if statusCodeOf(err) == http.StatusNotFound {
			// Collection not created yet: nothing indexed, nothing to scroll.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		for _, p := range scrollResp.Result.Points {
			out = append(out, decodePayload(p.Payload))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}

		if scrollResp.Result.NextPageOffset == nil || len(scrollResp.Result.Points) == 0 {
			break
		}
		offset = scrollResp.Result.NextPageOffset
	}
	return out, nil
}

// Count returns the exact number of points in the collection. A missing
// collection counts as zero.
func (c *Client) Count(ctx context.Context) (int, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	err := c.call(ctx, "count", http.MethodPost, url, map[string]any{"exact": true}, &countResp)
	if statusCodeOf(err) == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.call(ctx, "ensure collection", http.MethodPut, url, reqBody, nil)
	// 200/201 for create, 409 if it already exists (depends on version/config).
	if statusCodeOf(err) == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if err != nil {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

// call runs one Qdrant request through the retry/breaker guard. Non-2xx
// responses surface as resilience.HTTPStatusError so the classifier can
// retry transient statuses; callers inspect the code for 404/409 semantics.
func (c *Client) call(ctx context.Context, operation, method, url string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	return c.guard.Do(ctx, "qdrant "+operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &resilience.HTTPStatusError{
				Operation:  "qdrant " + operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(raw),
			}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTP)
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func statusCodeOf(err error) int {
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// PointID derives a stable UUID from the chunk identity.
func PointID(p domain.ChunkPayload) string {
	name := fmt.Sprintf("%s:%s:%d", p.TenantID, p.DocID, p.ChunkID)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}
