package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// SearXNG is the primary provider: a self-hosted metasearch instance
// queried over its JSON API. No API key, no rate limits.
type SearXNG struct {
	baseURL    string
	maxResults int
	client     *http.Client
}

// NewSearXNG returns a client for the instance at baseURL.
func NewSearXNG(baseURL string, maxResults int, timeout time.Duration) *SearXNG {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SearXNG) Name() string { return "searxng" }

type searxngResponse struct {
	Results []Result `json:"results"`
}

func (s *SearXNG) Search(ctx context.Context, query string, timeRange TimeRange) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("language", "en-US")
	if timeRange != TimeAll {
		params.Set("time_range", string(timeRange))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("searxng returned HTTP %d", resp.StatusCode)
	}

	var parsed searxngResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	results := parsed.Results
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}

	logging.Search("SearXNG: %d results for %q (range=%s) in %v",
		len(results), truncateQuery(query), timeRange, time.Since(start).Round(time.Millisecond))
	return results, nil
}

func truncateQuery(q string) string {
	if len(q) <= 50 {
		return q
	}
	n := 50
	for n > 0 && !utf8.RuneStart(q[n]) {
		n--
	}
	return q[:n] + "..."
}
