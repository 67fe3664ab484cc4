package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/config"
	"github.com/revisionhiep-create/Project-Astral/internal/embedding"
	"github.com/revisionhiep-create/Project-Astral/internal/logging"
	"github.com/revisionhiep-create/Project-Astral/internal/retrieval"
	"github.com/revisionhiep-create/Project-Astral/internal/store"
)

// Memory runs hybrid retrieval over the fact store: semantic candidates
// from the query embedding, a BM25 pass over the candidate pool, weighted
// fusion, an optional cross-encoder rerank, then the relevance cutoff.
type Memory struct {
	store    *store.Store
	engine   embedding.Engine
	reranker *retrieval.Reranker // nil when reranking is disabled

	candidates     int
	topK           int
	minScore       float64
	semanticWeight float64
	lexicalWeight  float64
}

// NewMemory wires the retrieval stack. reranker may be nil.
func NewMemory(st *store.Store, eng embedding.Engine, reranker *retrieval.Reranker, cfg config.MemoryConfig) *Memory {
	m := &Memory{
		store:          st,
		engine:         eng,
		reranker:       reranker,
		candidates:     cfg.Candidates,
		topK:           cfg.TopK,
		minScore:       cfg.MinScore,
		semanticWeight: cfg.SemanticWeight,
		lexicalWeight:  cfg.LexicalWeight,
	}
	if m.candidates <= 0 {
		m.candidates = 20
	}
	if m.topK <= 0 {
		m.topK = 5
	}
	if m.semanticWeight == 0 && m.lexicalWeight == 0 {
		m.semanticWeight, m.lexicalWeight = 0.7, 0.3
	}
	return m
}

// Recall returns the facts relevant to a query, best first. Never an
// error: every failure degrades to an empty (or fused-only) result so the
// turn proceeds with less context instead of dying.
func (m *Memory) Recall(ctx context.Context, channelID, query string) []retrieval.Candidate {
	start := time.Now()

	queryVec, err := m.engine.EmbedQuery(ctx, query)
	if err != nil {
		logging.Get(logging.CategoryMemory).Warn("%v",
			stageError(StageRetrieve, query, fmt.Errorf("%w: embed query: %v", ErrRetrievalDegraded, err)))
		return nil
	}

	candidates, err := m.store.SemanticCandidates(channelID, queryVec, m.candidates)
	if err != nil {
		logging.Get(logging.CategoryMemory).Warn("%v",
			stageError(StageRetrieve, query, fmt.Errorf("%w: candidate scan: %v", ErrRetrievalDegraded, err)))
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	docs := make([]retrieval.Document, len(candidates))
	for i, c := range candidates {
		docs[i] = retrieval.Document{ID: c.ID, Text: c.Text}
	}
	candidates = retrieval.ApplyLexical(candidates, retrieval.NewBM25Index(docs).Score(query))
	candidates = retrieval.FuseScores(candidates, m.semanticWeight, m.lexicalWeight)

	if m.reranker != nil {
		reranked, err := m.reranker.Rerank(ctx, query, candidates)
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("Reranker unavailable, keeping fused order: %v", err)
		} else {
			candidates = reranked
		}
	}

	out := retrieval.Cutoff(candidates, m.minScore, m.topK)
	logging.Memory("Recalled %d/%d facts for channel=%s in %s",
		len(out), len(candidates), channelID, time.Since(start).Round(time.Millisecond))
	logging.AuditWithChannel(channelID).MemoryOp(logging.AuditMemoryRecall, channelID, len(out), time.Since(start).Milliseconds())
	return out
}

// FormatFacts renders recalled facts as the bullet list the system block
// expects. Empty input yields an empty string so the section drops out.
func FormatFacts(facts []retrieval.Candidate) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(f.Text))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
