// Package memory provides the durable interaction store: a log of past
// (query, worker, response, outcome) tuples backed by SQLite, with
// similarity retrieval and per-worker aggregate metrics.
package memory

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Interaction is one completed worker execution.
type Interaction struct {
	// ID is deterministic from (worker, query, timestamp) so duplicate
	// appends of the same execution collapse into one row.
	ID string
	// Worker is the canonical worker name.
	Worker string
	// Query is the input query text.
	Query string
	// Response is the worker's output.
	Response string
	// Metadata carries run-level annotations (mode, quality score, ...).
	Metadata map[string]string
	// Timestamp is when the execution completed.
	Timestamp time.Time
	// Success records whether the execution succeeded.
	Success bool
	// Duration is the execution time including retries.
	Duration time.Duration
	// Tokens is the approximate output token count.
	Tokens int
}

// FillID computes the deterministic ID if it is not already set.
func (e *Interaction) FillID() {
	if e.ID != "" {
		return
	}
	content := fmt.Sprintf("%s:%s:%s", e.Worker, e.Query, e.Timestamp.UTC().Format(time.RFC3339Nano))
	sum := md5.Sum([]byte(content))
	e.ID = hex.EncodeToString(sum[:])
}

// Store provides SQLite-backed storage for interactions.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// DefaultDBPath returns the interaction database path under XDG data home.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "localmind", "memory.db")
}

// NewStore opens (creating if necessary) the interaction database at dbPath
// and bootstraps the schema.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: conn, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the tables and indexes if they don't exist.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			worker TEXT NOT NULL,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			metadata TEXT,
			timestamp TEXT NOT NULL,
			success INTEGER NOT NULL,
			execution_seconds REAL NOT NULL DEFAULT 0,
			tokens INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_worker ON interactions(worker)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_success ON interactions(success)`,
		`CREATE TABLE IF NOT EXISTS worker_metrics (
			worker TEXT PRIMARY KEY,
			total_queries INTEGER NOT NULL DEFAULT 0,
			successful_queries INTEGER NOT NULL DEFAULT 0,
			total_seconds REAL NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			last_updated TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// Append stores an interaction and folds it into the worker's aggregate row.
func (s *Store) Append(entry *Interaction) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.FillID()

	metadata := ""
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO interactions
			(id, worker, query, response, metadata, timestamp, success, execution_seconds, tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Worker, entry.Query, entry.Response, nullString(metadata),
		formatTime(entry.Timestamp), boolToInt(entry.Success), entry.Duration.Seconds(), entry.Tokens)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert interaction: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO worker_metrics (worker, total_queries, successful_queries, total_seconds, total_tokens, last_updated)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT(worker) DO UPDATE SET
			total_queries = total_queries + 1,
			successful_queries = successful_queries + excluded.successful_queries,
			total_seconds = total_seconds + excluded.total_seconds,
			total_tokens = total_tokens + excluded.total_tokens,
			last_updated = excluded.last_updated
	`, entry.Worker, boolToInt(entry.Success), entry.Duration.Seconds(), entry.Tokens, formatTime(time.Now()))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("update worker metrics: %w", err)
	}

	return tx.Commit()
}

// Prune deletes interactions older than the cutoff, except successful
// interactions newer than the grace window, which are always preserved.
// Returns the number of deleted rows.
func (s *Store) Prune(olderThan, successGrace time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := formatTime(now.Add(-olderThan))
	grace := formatTime(now.Add(-successGrace))

	res, err := s.db.Exec(`
		DELETE FROM interactions
		WHERE timestamp < ?
		AND (success = 0 OR timestamp < ?)
	`, cutoff, grace)
	if err != nil {
		return 0, fmt.Errorf("prune interactions: %w", err)
	}
	return res.RowsAffected()
}

// Export returns all interactions, optionally filtered by worker, as JSON.
func (s *Store) Export(worker string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, worker, query, response, metadata, timestamp, success, execution_seconds, tokens
		FROM interactions`
	var args []interface{}
	if worker != "" {
		query += ` WHERE worker = ?`
		args = append(args, worker)
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return "", fmt.Errorf("export interactions: %w", err)
	}
	defer rows.Close()

	entries, err := scanInteractions(rows)
	if err != nil {
		return "", err
	}

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	return string(raw), nil
}

// Workers returns the distinct worker names with recorded interactions.
func (s *Store) Workers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT DISTINCT worker FROM interactions ORDER BY worker`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan worker name: %w", err)
		}
		workers = append(workers, name)
	}
	return workers, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanInteractions converts result rows into Interaction values.
func scanInteractions(rows *sql.Rows) ([]*Interaction, error) {
	var entries []*Interaction
	for rows.Next() {
		var (
			e        Interaction
			metadata sql.NullString
			ts       string
			success  int
			seconds  float64
		)
		if err := rows.Scan(&e.ID, &e.Worker, &e.Query, &e.Response, &metadata,
			&ts, &success, &seconds, &e.Tokens); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		parsed, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		e.Timestamp = parsed
		e.Success = success == 1
		e.Duration = time.Duration(seconds * float64(time.Second))
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
