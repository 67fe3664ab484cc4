package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		input string
		want  TimeRange
	}{
		{"day", TimeDay},
		{"Week", TimeWeek},
		{"month", TimeMonth},
		{"year", TimeYear},
		{"null", TimeAll},
		{"", TimeAll},
		{"fortnight", TimeAll},
	}
	for _, tt := range tests {
		if got := ParseTimeRange(tt.input); got != tt.want {
			t.Errorf("ParseTimeRange(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSearXNG_Search(t *testing.T) {
	var gotQuery, gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotRange = r.URL.Query().Get("time_range")
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format = %q, want json", r.URL.Query().Get("format"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "Seattle forecast", "url": "https://a", "content": "Rain through Friday"},
				{"title": "Weather radar", "url": "https://b", "content": "Live map"},
			},
		})
	}))
	defer server.Close()

	provider := NewSearXNG(server.URL, 5, time.Second)
	results, err := provider.Search(context.Background(), "Seattle weather", TimeDay)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery != "Seattle weather" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotRange != "day" {
		t.Errorf("time_range = %q, want day", gotRange)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	// Provider ranking preserved.
	if results[0].Title != "Seattle forecast" {
		t.Errorf("first result = %q", results[0].Title)
	}
}

func TestSearXNG_CapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var results []map[string]string
		for i := 0; i < 10; i++ {
			results = append(results, map[string]string{"title": "t", "url": "u", "content": "c"})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer server.Close()

	provider := NewSearXNG(server.URL, 3, time.Second)
	results, err := provider.Search(context.Background(), "q", TimeAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearXNG_NoTimeRangeParamForAllTime(t *testing.T) {
	var hasParam bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasParam = r.URL.Query().Has("time_range")
		json.NewEncoder(w).Encode(map[string]any{"results": []map[string]string{}})
	}))
	defer server.Close()

	provider := NewSearXNG(server.URL, 5, time.Second)
	if _, err := provider.Search(context.Background(), "q", TimeAll); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hasParam {
		t.Error("time_range param sent for all-time search")
	}
}

func TestSearXNG_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	provider := NewSearXNG(server.URL, 5, time.Second)
	if _, err := provider.Search(context.Background(), "q", TimeAll); err == nil {
		t.Error("expected error on HTTP 403")
	}
}

const ddgFixture = `<html><body>
<div class="links_main links_deep result__body results_links">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage&amp;rut=abc">Example Title</a>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=x">A useful snippet of text.</a>
</div>
<div class="links_main results_links">
  <a class="result__a" href="https://direct.example.org">Second Result</a>
  <a class="result__snippet">Another snippet.</a>
</div>
</body></html>`

func TestDuckDuckGo_ParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ddgFixture))
	}))
	defer server.Close()

	provider := NewDuckDuckGo(server.URL, 5, time.Second)
	results, err := provider.Search(context.Background(), "example", TimeAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	if results[0].Title != "Example Title" {
		t.Errorf("title = %q", results[0].Title)
	}
	if results[0].URL != "https://example.com/page" {
		t.Errorf("redirect not unwrapped: %q", results[0].URL)
	}
	if results[0].Snippet != "A useful snippet of text." {
		t.Errorf("snippet = %q", results[0].Snippet)
	}
	if results[1].URL != "https://direct.example.org" {
		t.Errorf("direct url = %q", results[1].URL)
	}
}

func TestDuckDuckGo_MaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ddgFixture))
	}))
	defer server.Close()

	provider := NewDuckDuckGo(server.URL, 1, time.Second)
	results, err := provider.Search(context.Background(), "example", TimeAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestFormatResults(t *testing.T) {
	if got := FormatResults(nil); got != "" {
		t.Errorf("empty input formatted as %q", got)
	}

	got := FormatResults([]Result{
		{Title: "A", Snippet: "alpha"},
		{Title: "B", URL: "https://b", Snippet: ""},
	})
	want := "- A: alpha\n- B: https://b"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
