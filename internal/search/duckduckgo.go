package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// DuckDuckGo scrapes the html.duckduckgo.com interface. It is the fallback
// when no SearXNG instance is configured: keyless but rate-limited, and it
// cannot restrict by time range.
type DuckDuckGo struct {
	baseURL    string
	maxResults int
	client     *http.Client
}

// NewDuckDuckGo returns the fallback provider. baseURL is overridable for
// tests; pass "" for the live endpoint.
func NewDuckDuckGo(baseURL string, maxResults int, timeout time.Duration) *DuckDuckGo {
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DuckDuckGo{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, timeRange TimeRange) ([]Result, error) {
	if timeRange != TimeAll {
		logging.Get(logging.CategorySearch).Debug("DuckDuckGo ignores time_range=%s", timeRange)
	}

	searchURL := d.baseURL + "/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read duckduckgo response: %w", err)
	}

	results, err := parseDuckDuckGoHTML(string(body), d.maxResults)
	if err != nil {
		return nil, err
	}
	logging.Search("DuckDuckGo: %d results for %q", len(results), truncateQuery(query))
	return results, nil
}

func parseDuckDuckGoHTML(htmlContent string, maxResults int) ([]Result, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "results_links") {
					r := extractDDGResult(n)
					if r.URL != "" && r.Title != "" {
						results = append(results, r)
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extractDDGResult(n *html.Node) Result {
	var r Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "class" {
					continue
				}
				if strings.Contains(attr.Val, "result__a") {
					r.URL = attrValue(n, "href")
					r.Title = textContent(n)
				} else if strings.Contains(attr.Val, "result__snippet") {
					r.Snippet = textContent(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	// Unwrap the redirect DuckDuckGo puts around result links.
	if strings.HasPrefix(r.URL, "//duckduckgo.com/l/?uddg=") {
		if decoded, err := url.QueryUnescape(strings.TrimPrefix(r.URL, "//duckduckgo.com/l/?uddg=")); err == nil {
			if idx := strings.Index(decoded, "&"); idx > 0 {
				decoded = decoded[:idx]
			}
			r.URL = decoded
		}
	}
	return r
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
