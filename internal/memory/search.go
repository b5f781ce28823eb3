package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/textsim"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

// recentScanLimit bounds similarity retrieval to the most recent stored
// queries so retrieval cost does not grow with corpus size.
const recentScanLimit = 100

// trendWindow is the number of interactions in each trend comparison window.
const trendWindow = 5

// Scored pairs an interaction with its similarity to the probe query.
type Scored struct {
	Entry      *Interaction
	Similarity float64
}

// RetrieveSimilar returns up to limit successful past interactions whose
// queries score at or above minSimilarity against the probe query, ranked by
// similarity. Pass an empty worker to search across all workers; only the
// most recent stored queries are scanned.
func (s *Store) RetrieveSimilar(query, worker string, limit int, minSimilarity float64) ([]Scored, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sqlQuery := `SELECT id, worker, query, response, metadata, timestamp, success, execution_seconds, tokens
		FROM interactions
		WHERE success = 1`
	var args []interface{}
	if worker != "" {
		sqlQuery += ` AND worker = ?`
		args = append(args, worker)
	}
	sqlQuery += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, recentScanLimit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieve similar: %w", err)
	}
	defer rows.Close()

	entries, err := scanInteractions(rows)
	if err != nil {
		return nil, err
	}

	probe := textsim.Tokens(query)
	var scored []Scored
	for _, e := range entries {
		sim := textsim.JaccardSets(probe, textsim.Tokens(e.Query))
		if sim >= minSimilarity {
			scored = append(scored, Scored{Entry: e, Similarity: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Metrics returns the worker's aggregate metrics. A worker with no recorded
// interactions reports a success rate of 1.0 and an insufficient-data trend.
func (s *Store) Metrics(worker string) (models.WorkerMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := models.WorkerMetrics{SuccessRate: 1.0, Trend: models.TrendInsufficientData}

	row := s.db.QueryRow(`
		SELECT total_queries, successful_queries, total_seconds, total_tokens
		FROM worker_metrics WHERE worker = ?
	`, worker)

	var total, successful, tokens int
	var seconds float64
	if err := row.Scan(&total, &successful, &seconds, &tokens); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, nil
		}
		return m, fmt.Errorf("read worker metrics: %w", err)
	}

	if total > 0 {
		m.Count = total
		m.SuccessRate = float64(successful) / float64(total)
		m.AvgTimeSeconds = seconds / float64(total)
		m.AvgTokens = float64(tokens) / float64(total)
	}

	trend, err := s.trendLocked(worker)
	if err != nil {
		return m, err
	}
	m.Trend = trend
	return m, nil
}

// trendLocked classifies the worker's recent success trajectory by comparing
// the most recent five interactions against the preceding five (or fewer when
// history is short). Caller must hold s.mu.
func (s *Store) trendLocked(worker string) (models.Trend, error) {
	rows, err := s.db.Query(`
		SELECT success FROM interactions
		WHERE worker = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, worker, 2*trendWindow)
	if err != nil {
		return models.TrendInsufficientData, fmt.Errorf("read trend rows: %w", err)
	}
	defer rows.Close()

	var outcomes []bool
	for rows.Next() {
		var success int
		if err := rows.Scan(&success); err != nil {
			return models.TrendInsufficientData, fmt.Errorf("scan trend row: %w", err)
		}
		outcomes = append(outcomes, success == 1)
	}
	if err := rows.Err(); err != nil {
		return models.TrendInsufficientData, err
	}

	if len(outcomes) < trendWindow {
		return models.TrendInsufficientData, nil
	}

	// With short history the windows overlap, which reads as stable.
	recent := successRate(outcomes[:trendWindow])
	prior := successRate(outcomes[len(outcomes)-trendWindow:])

	switch {
	case recent > prior+0.1:
		return models.TrendImproving, nil
	case recent < prior-0.1:
		return models.TrendDegrading, nil
	default:
		return models.TrendStable, nil
	}
}

func successRate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	n := 0
	for _, ok := range outcomes {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(outcomes))
}
