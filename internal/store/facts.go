package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// Fact is one extracted long-term memory.
type Fact struct {
	ID        int64
	ChannelID string
	UserID    string
	UserName  string
	Content   string
	Embedding []float32
	Source    string
	CreatedAt time.Time
}

// StoreFact inserts a fact and its embedding in one transaction. The vec0
// mirror row is written in the same transaction, so the ANN index can
// never reference a fact that failed to commit.
func (s *Store) StoreFact(fact Fact) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "StoreFact")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin fact tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO facts (channel_id, user_id, user_name, content, embedding, dims, source) VALUES (?, ?, ?, ?, ?, ?, ?)",
		fact.ChannelID, fact.UserID, fact.UserName, fact.Content,
		string(encodeVectorJSON(fact.Embedding)), len(fact.Embedding), fact.Source,
	)
	if err != nil {
		return 0, fmt.Errorf("insert fact: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("fact id: %w", err)
	}

	if s.vectorExt && len(fact.Embedding) == s.dims {
		if _, err := tx.Exec(
			"INSERT INTO facts_vec (rowid, embedding) VALUES (?, ?)",
			id, vectorBlob(fact.Embedding),
		); err != nil {
			return 0, fmt.Errorf("insert fact vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit fact: %w", err)
	}

	logging.StoreDebug("Stored fact %d for channel=%s user=%s (%d chars)", id, fact.ChannelID, fact.UserID, len(fact.Content))
	return id, nil
}

// UpdateFactEmbedding replaces a fact's embedding, keeping the vec0 mirror
// in sync. Used by re-embedding migrations.
func (s *Store) UpdateFactEmbedding(id int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reembed tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE facts SET embedding = ?, dims = ? WHERE id = ?",
		string(encodeVectorJSON(embedding)), len(embedding), id,
	); err != nil {
		return fmt.Errorf("update fact %d: %w", id, err)
	}

	if s.vectorExt {
		if _, err := tx.Exec("DELETE FROM facts_vec WHERE rowid = ?", id); err != nil {
			return fmt.Errorf("clear fact vector %d: %w", id, err)
		}
		if len(embedding) == s.dims {
			if _, err := tx.Exec(
				"INSERT INTO facts_vec (rowid, embedding) VALUES (?, ?)",
				id, vectorBlob(embedding),
			); err != nil {
				return fmt.Errorf("insert fact vector %d: %w", id, err)
			}
		}
	}

	return tx.Commit()
}

// FactsByChannel returns all facts for a channel, newest first. Embeddings
// are decoded; rows with corrupt embeddings keep a nil vector.
func (s *Store) FactsByChannel(channelID string, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, channel_id, user_id, user_name, content, embedding, source, created_at FROM facts WHERE channel_id = ? ORDER BY id DESC"
	args := []interface{}{channelID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

// AllFacts returns every stored fact, oldest first. Used by migrations and
// the facts dump command.
func (s *Store) AllFacts() ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, channel_id, user_id, user_name, content, embedding, source, created_at FROM facts ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		var f Fact
		var embJSON sql.NullString
		var userName sql.NullString
		if err := rows.Scan(&f.ID, &f.ChannelID, &f.UserID, &userName, &f.Content, &embJSON, &f.Source, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.UserName = userName.String
		if embJSON.Valid && embJSON.String != "" {
			vec, err := fastParseVectorJSON([]byte(embJSON.String), nil)
			if err != nil {
				logging.Get(logging.CategoryStore).Warn("Fact %d has corrupt embedding, skipping vector: %v", f.ID, err)
			} else {
				f.Embedding = vec
			}
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// DeleteFact removes a fact and its ANN mirror row.
func (s *Store) DeleteFact(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM facts WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete fact %d: %w", id, err)
	}
	if s.vectorExt {
		if _, err := tx.Exec("DELETE FROM facts_vec WHERE rowid = ?", id); err != nil {
			return fmt.Errorf("delete fact vector %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// PurgeStats reports what a maintenance purge removed.
type PurgeStats struct {
	FactsDeleted int64
	Vacuumed     bool
}

// PurgeOlderThan deletes facts created before the cutoff and optionally
// vacuums the database to reclaim space.
func (s *Store) PurgeOlderThan(cutoff time.Time, vacuum bool) (PurgeStats, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PurgeOlderThan")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var stats PurgeStats

	tx, err := s.db.Begin()
	if err != nil {
		return stats, fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback()

	if s.vectorExt {
		if _, err := tx.Exec(
			"DELETE FROM facts_vec WHERE rowid IN (SELECT id FROM facts WHERE created_at < ?)", cutoff,
		); err != nil {
			return stats, fmt.Errorf("purge fact vectors: %w", err)
		}
	}

	res, err := tx.Exec("DELETE FROM facts WHERE created_at < ?", cutoff)
	if err != nil {
		return stats, fmt.Errorf("purge facts: %w", err)
	}
	stats.FactsDeleted, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit purge: %w", err)
	}

	if vacuum {
		if _, err := s.db.Exec("VACUUM"); err != nil {
			logging.Get(logging.CategoryStore).Warn("VACUUM failed after purge: %v", err)
		} else {
			stats.Vacuumed = true
		}
	}

	logging.Store("Purged %d facts older than %s", stats.FactsDeleted, cutoff.Format(time.RFC3339))
	return stats, nil
}

// FactCount returns the number of stored facts.
func (s *Store) FactCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM facts").Scan(&count)
	return count, err
}
