// Package store persists long-term memory facts and channel history in
// SQLite, and serves the semantic half of hybrid retrieval. When the
// sqlite-vec extension is compiled in (build tag sqlite_vec), similarity
// search runs through a vec0 ANN table; otherwise it falls back to a full
// scan over JSON-encoded embeddings.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database holding facts and turns.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	// Expected embedding dimensionality. Rows with a different size are
	// skipped at retrieval, never fatal.
	dims int

	// sqlite-vec vec0 available
	vectorExt bool
}

// New initializes the SQLite database at the given path.
func New(path string, dims int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Initializing store at path: %s (dims=%d)", path, dims)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, dbPath: path, dims: dims}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.vectorExt {
		if err := s.ensureVecTable(); err != nil {
			logging.Get(logging.CategoryStore).Warn("vec0 table setup failed, falling back to full scan: %v", err)
			s.vectorExt = false
		} else {
			logging.Store("sqlite-vec extension detected; ANN search enabled")
		}
	} else {
		logging.Store("sqlite-vec extension not available; using full-scan similarity")
	}

	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	factsTable := `
	CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT,
		content TEXT NOT NULL,
		embedding TEXT,
		dims INTEGER DEFAULT 0,
		source TEXT DEFAULT 'summary',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_facts_channel ON facts(channel_id);
	CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
	CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at);
	`

	// message_id is unique so redelivered platform events stay idempotent.
	turnsTable := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		message_id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		user_name TEXT,
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_turns_channel ON turns(channel_id, id);
	`

	for _, table := range []string{factsTable, turnsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available.
func (s *Store) detectVecExtension() {
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// ensureVecTable creates the ANN mirror of the facts table. Its rowid is
// the fact id.
func (s *Store) ensureVecTable() error {
	_, err := s.db.Exec(fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS facts_vec USING vec0(embedding float[%d] distance_metric=cosine)", s.dims))
	return err
}

// VectorSearchEnabled reports whether ANN search is active.
func (s *Store) VectorSearchEnabled() bool {
	return s.vectorExt
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("Closing store database connection")
	return s.db.Close()
}

// DB returns the underlying SQL database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Stats returns row counts per table.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"facts", "turns"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}
