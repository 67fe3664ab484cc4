package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// Reranker scores query/document pairs with a cross-encoder served over
// HTTP (text-embeddings-inference style /rerank endpoint). Reranking is
// best-effort: callers fall back to fused scores when it fails.
type Reranker struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewReranker creates a reranker client.
func NewReranker(baseURL, model string, timeout time.Duration) *Reranker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reranker{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores each candidate against the query and re-sorts the pool by
// the cross-encoder score, recency breaking ties. On any fault the input
// is returned unchanged along with the error so fused ordering survives.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	body, err := json.Marshal(rerankRequest{
		Query: query,
		Texts: texts,
		Model: r.model,
	})
	if err != nil {
		return candidates, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return candidates, fmt.Errorf("failed to create rerank request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return candidates, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return candidates, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return candidates, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scored := make([]Candidate, 0, len(candidates))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			logging.Memory("Reranker returned out-of-range index %d for pool of %d", res.Index, len(candidates))
			continue
		}
		c := candidates[res.Index]
		c.Final = res.Score
		scored = append(scored, c)
	}

	if len(scored) != len(candidates) {
		return candidates, fmt.Errorf("reranker scored %d of %d candidates", len(scored), len(candidates))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Final != scored[j].Final {
			return scored[i].Final > scored[j].Final
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	return scored, nil
}
