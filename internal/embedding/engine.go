// Package embedding provides vector embedding generation for memory retrieval.
// Supports two backends: Google GenAI (cloud) and Ollama (local).
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// Engine generates vector embeddings for text. Documents and queries are
// embedded with different task types so asymmetric retrieval models score
// them correctly.
type Engine interface {
	// EmbedDocument embeds text that will be stored and later retrieved.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocumentBatch embeds multiple documents.
	EmbedDocumentBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// HealthChecker is an optional interface for engines that can verify the
// backing service is reachable before batch operations.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "gemini" or "ollama"
	Provider string

	// Gemini configuration
	APIKey string
	Model  string

	// Ollama configuration
	BaseURL string

	// Expected vector dimensionality. Vectors of any other size are
	// rejected at retrieval time.
	Dims int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "gemini",
		Model:    "text-embedding-004",
		BaseURL:  "http://localhost:11434",
		Dims:     768,
	}
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("Creating embedding engine with provider=%s model=%s dims=%d",
		cfg.Provider, cfg.Model, cfg.Dims)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "gemini":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.Dims)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.BaseURL, cfg.Model, cfg.Dims)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'gemini' or 'ollama')", cfg.Provider)
		logging.Get(logging.CategoryEmbedding).Error("Unsupported embedding provider: %s", cfg.Provider)
		return nil, err
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine ready: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// checkDims rejects a vector whose dimensionality doesn't match what the
// engine was configured for. A wrong-size vector would be stored and then
// skipped by every retrieval pass, so the mismatch fails here with the
// input details instead.
func checkDims(vec []float32, want int, text string) error {
	if len(vec) != want {
		return fmt.Errorf("embedding dimension mismatch: got %d-dim vector for %d-char text, configured for %d dims",
			len(vec), len(text), want)
	}
	return nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// SimilarityResult represents one scored corpus entry.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the top K most similar corpus vectors to the query,
// sorted by similarity descending. Vectors whose dimensionality doesn't
// match the query are skipped, not fatal.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	skipped := 0

	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: similarity})
	}

	if skipped > 0 {
		logging.Get(logging.CategoryEmbedding).Warn("FindTopK: skipped %d vectors due to dimension mismatch", skipped)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}
