package retrieval

import (
	"sort"
	"time"
)

// Candidate is one memory fact flowing through the hybrid pipeline.
// Semantic comes from cosine similarity, Lexical from the BM25 pass;
// Fused and Final are filled in by FuseScores and the reranker.
type Candidate struct {
	ID        int64
	Text      string
	CreatedAt time.Time

	Semantic float64
	Lexical  float64
	Fused    float64

	// Final is the score used for cutoff: the rerank score when the
	// reranker ran, otherwise the fused score.
	Final float64
}

// FuseScores combines semantic and lexical scores with the configured
// weights and sorts candidates by the fused score descending. Ties break
// toward the more recent fact so fresh memories win.
func FuseScores(candidates []Candidate, semanticWeight, lexicalWeight float64) []Candidate {
	total := semanticWeight + lexicalWeight
	if total == 0 {
		semanticWeight, lexicalWeight, total = 1, 0, 1
	}
	sw := semanticWeight / total
	lw := lexicalWeight / total

	for i := range candidates {
		candidates[i].Fused = sw*candidates[i].Semantic + lw*candidates[i].Lexical
		candidates[i].Final = candidates[i].Fused
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Fused != candidates[j].Fused {
			return candidates[i].Fused > candidates[j].Fused
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates
}

// ApplyLexical merges BM25 scores into the candidate pool by ID.
// Candidates the lexical pass didn't score keep zero.
func ApplyLexical(candidates []Candidate, lexical []LexicalScore) []Candidate {
	byID := make(map[int64]float64, len(lexical))
	for _, ls := range lexical {
		byID[ls.ID] = ls.Score
	}
	for i := range candidates {
		candidates[i].Lexical = byID[candidates[i].ID]
	}
	return candidates
}

// Cutoff drops candidates scoring below minScore and truncates to topK,
// preserving order. Assumes candidates are already sorted by Final.
func Cutoff(candidates []Candidate, minScore float64, topK int) []Candidate {
	out := make([]Candidate, 0, topK)
	for _, c := range candidates {
		if c.Final < minScore {
			continue
		}
		out = append(out, c)
		if len(out) == topK {
			break
		}
	}
	return out
}
