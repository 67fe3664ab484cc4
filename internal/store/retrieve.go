package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/embedding"
	"github.com/revisionhiep-create/Project-Astral/internal/logging"
	"github.com/revisionhiep-create/Project-Astral/internal/retrieval"
)

// When ANN search can't filter by channel inside the index, over-fetch by
// this factor and filter the join result.
const annOverfetch = 4

// SemanticCandidates returns the channel's facts most similar to the query
// vector, scored by cosine similarity. Rows whose stored vector does not
// match the query dimensionality are skipped individually.
func (s *Store) SemanticCandidates(channelID string, queryVec []float32, limit int) ([]retrieval.Candidate, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SemanticCandidates")
	defer timer.Stop()

	if limit <= 0 {
		limit = 20
	}

	if s.vectorExt && len(queryVec) == s.dims {
		candidates, err := s.annCandidates(channelID, queryVec, limit)
		if err == nil {
			return candidates, nil
		}
		logging.Get(logging.CategoryStore).Warn("ANN search failed, falling back to full scan: %v", err)
	}

	return s.scanCandidates(channelID, queryVec, limit)
}

// annCandidates queries the vec0 index and joins back to facts. The KNN
// pass can't see channel_id, so it over-fetches and filters the join.
func (s *Store) annCandidates(channelID string, queryVec []float32, limit int) ([]retrieval.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT f.id, f.channel_id, f.content, f.created_at, v.distance
		FROM facts_vec v
		JOIN facts f ON f.id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		vectorBlob(queryVec), limit*annOverfetch,
	)
	if err != nil {
		return nil, fmt.Errorf("ann query: %w", err)
	}
	defer rows.Close()

	candidates := make([]retrieval.Candidate, 0, limit)
	for rows.Next() {
		var id int64
		var channel, content string
		var createdAt time.Time
		var distance float64
		if err := rows.Scan(&id, &channel, &content, &createdAt, &distance); err != nil {
			return nil, fmt.Errorf("scan ann row: %w", err)
		}
		if channel != channelID {
			continue
		}

		candidates = append(candidates, retrieval.Candidate{
			ID:        id,
			Text:      content,
			CreatedAt: createdAt,
			Semantic:  1 - distance, // facts_vec uses cosine distance

		})
		if len(candidates) == limit {
			break
		}
	}
	return candidates, rows.Err()
}

// scanCandidates computes cosine similarity over every fact in the channel.
func (s *Store) scanCandidates(channelID string, queryVec []float32, limit int) ([]retrieval.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, content, embedding, created_at FROM facts WHERE channel_id = ?", channelID)
	if err != nil {
		return nil, fmt.Errorf("scan query: %w", err)
	}
	defer rows.Close()

	var pool []retrieval.Candidate
	var vecBuf []float32
	skipped := 0

	for rows.Next() {
		var id int64
		var content string
		var embJSON sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&id, &content, &embJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}

		if !embJSON.Valid || embJSON.String == "" {
			skipped++
			continue
		}

		vecBuf, err = fastParseVectorJSON([]byte(embJSON.String), vecBuf)
		if err != nil || len(vecBuf) != len(queryVec) {
			skipped++
			continue
		}

		sim, err := embedding.CosineSimilarity(queryVec, vecBuf)
		if err != nil {
			skipped++
			continue
		}

		pool = append(pool, retrieval.Candidate{
			ID:        id,
			Text:      content,
			CreatedAt: createdAt,
			Semantic:  sim,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if skipped > 0 {
		logging.MemoryDebug("SemanticCandidates: skipped %d facts (missing or mismatched embeddings)", skipped)
	}

	sort.Slice(pool, func(i, j int) bool {
		return pool[i].Semantic > pool[j].Semantic
	})
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}
