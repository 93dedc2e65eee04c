// Package tei scores (query, passage) pairs through a text-embeddings
// inference style /rerank endpoint.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	guard      *resilience.Guard
}

func New(baseURL string, guard *resilience.Guard) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		guard:      guard,
	}
}

// ScorePairs returns one relevance score per passage, aligned with the input
// order regardless of the order the server answers in.
func (c *Client) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"query": query,
		"texts": passages,
	}
	var rerankResp []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	err := c.guard.Do(ctx, "rerank", func(ctx context.Context) error {
		return c.postJSON(ctx, "/rerank", reqBody, &rerankResp)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, err
	}
	if len(rerankResp) != len(passages) {
		return nil, fmt.Errorf("rerank returned %d scores for %d passages", len(rerankResp), len(passages))
	}

	sort.Slice(rerankResp, func(i, j int) bool { return rerankResp[i].Index < rerankResp[j].Index })
	scores := make([]float64, len(passages))
	for i, r := range rerankResp {
		if r.Index != i {
			return nil, fmt.Errorf("rerank response indexes are not a permutation of inputs")
		}
		scores[i] = r.Score
	}
	return scores, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.HTTPStatusError{
			Operation:  "rerank",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}
