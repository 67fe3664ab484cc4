package store

import (
	"context"
	"fmt"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/embedding"
	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// ReembedResult summarizes one re-embedding run.
type ReembedResult struct {
	Total    int
	Done     int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// ReembedProgressFn is an optional progress callback.
type ReembedProgressFn func(msg string)

// Batch size for re-embedding. Keeps request payloads small enough for
// the Gemini batch endpoint.
const reembedBatch = 16

// ReembedAll regenerates every fact embedding with the given engine. Used
// after switching embedding models or dimensionality. Facts whose text
// fails to embed are left untouched and counted as failures; onlyMissing
// restricts the run to facts whose stored vector is absent or has the
// wrong dimensionality.
func (s *Store) ReembedAll(ctx context.Context, engine embedding.Engine, onlyMissing bool, progress ReembedProgressFn) (ReembedResult, error) {
	start := time.Now()
	var result ReembedResult

	if engine == nil {
		return result, fmt.Errorf("no embedding engine configured")
	}

	facts, err := s.AllFacts()
	if err != nil {
		return result, fmt.Errorf("load facts: %w", err)
	}
	result.Total = len(facts)

	logging.Store("Starting re-embed of %d facts with engine=%s dims=%d (onlyMissing=%v)",
		len(facts), engine.Name(), engine.Dimensions(), onlyMissing)

	wantDims := engine.Dimensions()
	pending := make([]Fact, 0, len(facts))
	for _, f := range facts {
		if onlyMissing && len(f.Embedding) == wantDims {
			result.Skipped++
			continue
		}
		pending = append(pending, f)
	}

	for i := 0; i < len(pending); i += reembedBatch {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		end := i + reembedBatch
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		texts := make([]string, len(batch))
		for j, f := range batch {
			texts[j] = f.Content
		}

		vectors, err := engine.EmbedDocumentBatch(ctx, texts)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("Re-embed batch %d-%d failed: %v", i, end, err)
			result.Failed += len(batch)
			continue
		}

		for j, f := range batch {
			if err := s.UpdateFactEmbedding(f.ID, vectors[j]); err != nil {
				logging.Get(logging.CategoryStore).Warn("Re-embed update for fact %d failed: %v", f.ID, err)
				result.Failed++
				continue
			}
			result.Done++
		}

		if progress != nil {
			progress(fmt.Sprintf("Re-embedded %d/%d facts", result.Done, len(pending)))
		}
	}

	result.Duration = time.Since(start)
	logging.Store("Re-embed complete: %d done, %d skipped, %d failed in %v",
		result.Done, result.Skipped, result.Failed, result.Duration)
	return result, nil
}
