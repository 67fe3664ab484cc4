package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReranker_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "cat name" {
			t.Errorf("query = %q", req.Query)
		}
		if len(req.Texts) != 3 {
			t.Errorf("texts = %d, want 3", len(req.Texts))
		}
		// Reverse the fused order.
		json.NewEncoder(w).Encode([]rerankResult{
			{Index: 2, Score: 0.95},
			{Index: 0, Score: 0.40},
			{Index: 1, Score: 0.10},
		})
	}))
	defer srv.Close()

	r := NewReranker(srv.URL, "test-model", 5*time.Second)
	candidates := []Candidate{
		{ID: 1, Text: "doc one", Fused: 0.9},
		{ID: 2, Text: "doc two", Fused: 0.8},
		{ID: 3, Text: "doc three", Fused: 0.7},
	}

	out, err := r.Rerank(context.Background(), "cat name", candidates)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}

	if out[0].ID != 3 {
		t.Errorf("reranked first = ID %d, want 3", out[0].ID)
	}
	if out[0].Final != 0.95 {
		t.Errorf("Final = %v, want rerank score 0.95", out[0].Final)
	}
	if out[2].ID != 2 {
		t.Errorf("reranked last = ID %d, want 2", out[2].ID)
	}
}

func TestReranker_ErrorReturnsInputUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewReranker(srv.URL, "", time.Second)
	candidates := []Candidate{
		{ID: 1, Text: "a", Fused: 0.9, Final: 0.9},
		{ID: 2, Text: "b", Fused: 0.8, Final: 0.8},
	}

	out, err := r.Rerank(context.Background(), "q", candidates)
	if err == nil {
		t.Fatal("expected error from 503")
	}
	if len(out) != 2 || out[0].ID != 1 || out[0].Final != 0.9 {
		t.Errorf("input should be returned unchanged on error: %v", out)
	}
}

func TestReranker_PartialScoresRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 0.5}})
	}))
	defer srv.Close()

	r := NewReranker(srv.URL, "", time.Second)
	candidates := []Candidate{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}}

	_, err := r.Rerank(context.Background(), "q", candidates)
	if err == nil {
		t.Fatal("expected error when reranker scores only part of the pool")
	}
}

func TestReranker_EmptyPool(t *testing.T) {
	r := NewReranker("http://localhost:1", "", time.Second)
	out, err := r.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("empty pool should be a no-op, got %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty result")
	}
}
