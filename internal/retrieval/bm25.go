// Package retrieval provides lexical scoring, score fusion, and reranking
// for memory recall. The store produces a semantic candidate pool; this
// package scores the same pool lexically, fuses the two signals, and
// optionally reranks the fused list with a cross-encoder.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters. Standard Okapi values.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Document is one scorable memory candidate.
type Document struct {
	ID   int64
	Text string
}

// LexicalScore is a BM25 score for one document, normalized to [0,1]
// within the scored batch.
type LexicalScore struct {
	ID    int64
	Score float64
}

// BM25Index holds term statistics for a candidate pool. Built per query
// over the semantic candidate set, so it stays small and never needs
// persistence.
type BM25Index struct {
	docs      []Document
	docTokens [][]string
	docFreq   map[string]int
	avgDocLen float64
}

// NewBM25Index tokenizes the candidate pool and computes term statistics.
func NewBM25Index(docs []Document) *BM25Index {
	idx := &BM25Index{
		docs:    docs,
		docFreq: make(map[string]int),
	}

	var totalLen int
	idx.docTokens = make([][]string, len(docs))
	for i, doc := range docs {
		tokens := Tokenize(doc.Text)
		idx.docTokens[i] = tokens
		totalLen += len(tokens)

		seen := make(map[string]bool)
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				idx.docFreq[tok]++
			}
		}
	}

	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// Score ranks all documents against the query, normalized so the best
// match scores 1.0. An empty query or corpus yields no results.
func (idx *BM25Index) Score(query string) []LexicalScore {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || len(idx.docs) == 0 {
		return nil
	}

	n := float64(len(idx.docs))
	scores := make([]LexicalScore, 0, len(idx.docs))
	maxScore := 0.0

	for i, doc := range idx.docs {
		tokens := idx.docTokens[i]
		if len(tokens) == 0 {
			continue
		}

		tf := make(map[string]int)
		for _, tok := range tokens {
			tf[tok]++
		}

		docLen := float64(len(tokens))
		var score float64
		for _, q := range queryTokens {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			df := float64(idx.docFreq[q])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			score += idf * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*docLen/idx.avgDocLen))
		}

		if score > 0 {
			scores = append(scores, LexicalScore{ID: doc.ID, Score: score})
			if score > maxScore {
				maxScore = score
			}
		}
	}

	if maxScore > 0 {
		for i := range scores {
			scores[i].Score /= maxScore
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}

// Tokenize lowercases, splits on non-alphanumeric runs, and drops
// stopwords and single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// stopwords are too common in chat text to carry signal.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "at": true, "by": true, "from": true, "as": true,
	"into": true, "through": true, "during": true, "before": true, "after": true,
	"and": true, "but": true, "or": true, "nor": true, "so": true, "yet": true,
	"if": true, "then": true, "else": true, "when": true, "where": true,
	"why": true, "how": true, "all": true, "each": true, "every": true,
	"both": true, "few": true, "more": true, "most": true, "other": true,
	"some": true, "such": true, "no": true, "not": true, "only": true,
	"own": true, "same": true, "than": true, "too": true, "very": true,
	"can": true, "just": true, "now": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "you": true, "he": true, "she": true,
	"we": true, "they": true, "my": true, "your": true, "his": true, "her": true,
	"our": true, "their": true, "me": true, "him": true, "us": true, "them": true,
	"what": true, "who": true, "which": true, "about": true, "like": true,
}
