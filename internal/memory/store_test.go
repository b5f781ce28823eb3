package memory

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendDeterministicID(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := &Interaction{Worker: "w", Query: "q", Timestamp: ts}
	b := &Interaction{Worker: "w", Query: "q", Timestamp: ts}
	a.FillID()
	b.FillID()
	if a.ID != b.ID {
		t.Errorf("identical (worker, query, timestamp) should produce the same ID: %s vs %s", a.ID, b.ID)
	}

	c := &Interaction{Worker: "w", Query: "other", Timestamp: ts}
	c.FillID()
	if c.ID == a.ID {
		t.Error("different queries should produce different IDs")
	}
}

func TestAppendDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	entry := &Interaction{Worker: "w", Query: "q", Response: "r", Success: true, Timestamp: ts}
	if err := s.Append(entry); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	dup := &Interaction{Worker: "w", Query: "q", Response: "r2", Success: true, Timestamp: ts}
	if err := s.Append(dup); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	out, err := s.Export("w")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if got := strings.Count(out, dup.ID); got != 1 {
		t.Errorf("expected 1 row for duplicate append, found ID %d times", got)
	}
}

func TestRetrieveSimilar(t *testing.T) {
	s := newTestStore(t)

	entries := []*Interaction{
		{Worker: "w", Query: "compare electric and hydrogen vehicles", Response: "a", Success: true},
		{Worker: "w", Query: "chocolate chip cookie recipe", Response: "b", Success: true},
		{Worker: "w", Query: "compare electric and hydrogen cars", Response: "c", Success: false},
	}
	for i, e := range entries {
		e.Timestamp = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.Append(e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := s.RetrieveSimilar("compare electric and hydrogen vehicles", "w", 5, 0.5)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 similar successful entry, got %d", len(got))
	}
	if got[0].Entry.Response != "a" {
		t.Errorf("unexpected entry %q", got[0].Entry.Response)
	}
	if got[0].Similarity != 1.0 {
		t.Errorf("expected similarity 1.0 for identical query, got %f", got[0].Similarity)
	}
}

func TestRetrieveSimilarWorkerFilter(t *testing.T) {
	s := newTestStore(t)
	if err := s.Append(&Interaction{Worker: "other", Query: "same exact query", Response: "x", Success: true}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	got, err := s.RetrieveSimilar("same exact query", "w", 5, 0.5)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches for a different worker, got %d", len(got))
	}
}

func TestMetricsEmpty(t *testing.T) {
	s := newTestStore(t)

	m, err := s.Metrics("unknown")
	if err != nil {
		t.Fatalf("metrics failed: %v", err)
	}
	if m.Count != 0 || m.SuccessRate != 1.0 {
		t.Errorf("expected pristine metrics, got %+v", m)
	}
	if m.Trend != models.TrendInsufficientData {
		t.Errorf("expected insufficient_data trend, got %s", m.Trend)
	}
}

func TestMetricsAggregates(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 4; i++ {
		err := s.Append(&Interaction{
			Worker:    "w",
			Query:     fmt.Sprintf("query %d", i),
			Response:  "r",
			Success:   i != 0, // one failure
			Duration:  2 * time.Second,
			Tokens:    100,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	m, err := s.Metrics("w")
	if err != nil {
		t.Fatalf("metrics failed: %v", err)
	}
	if m.Count != 4 {
		t.Errorf("expected count 4, got %d", m.Count)
	}
	if m.SuccessRate != 0.75 {
		t.Errorf("expected success rate 0.75, got %f", m.SuccessRate)
	}
	if m.AvgTimeSeconds != 2.0 {
		t.Errorf("expected avg time 2.0s, got %f", m.AvgTimeSeconds)
	}
	if m.AvgTokens != 100 {
		t.Errorf("expected avg tokens 100, got %f", m.AvgTokens)
	}
	if m.Trend != models.TrendInsufficientData {
		t.Errorf("expected insufficient_data below 5 entries, got %s", m.Trend)
	}
}

func TestMetricsTrendImproving(t *testing.T) {
	s := newTestStore(t)

	// Five failures then five successes, oldest first.
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		err := s.Append(&Interaction{
			Worker:    "w",
			Query:     fmt.Sprintf("query %d", i),
			Response:  "r",
			Success:   i >= 5,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	m, err := s.Metrics("w")
	if err != nil {
		t.Fatalf("metrics failed: %v", err)
	}
	if m.Trend != models.TrendImproving {
		t.Errorf("expected improving trend, got %s", m.Trend)
	}
}

func TestMetricsTrendStable(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		err := s.Append(&Interaction{
			Worker:    "w",
			Query:     fmt.Sprintf("query %d", i),
			Response:  "r",
			Success:   true,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	m, err := s.Metrics("w")
	if err != nil {
		t.Fatalf("metrics failed: %v", err)
	}
	if m.Trend != models.TrendStable {
		t.Errorf("expected stable trend, got %s", m.Trend)
	}
}

func TestPrunePreservesRecentSuccesses(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	entries := []*Interaction{
		// Ancient success and failure: both pruned.
		{Worker: "w", Query: "ancient success", Response: "r", Success: true, Timestamp: now.Add(-40 * 24 * time.Hour)},
		{Worker: "w", Query: "ancient failure", Response: "r", Success: false, Timestamp: now.Add(-40 * 24 * time.Hour)},
		// Past the prune cutoff but inside the success grace window.
		{Worker: "w", Query: "graced success", Response: "r", Success: true, Timestamp: now.Add(-5 * 24 * time.Hour)},
		{Worker: "w", Query: "recent failure", Response: "r", Success: false, Timestamp: now.Add(-5 * 24 * time.Hour)},
	}
	for _, e := range entries {
		if err := s.Append(e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	deleted, err := s.Prune(3*24*time.Hour, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deletions, got %d", deleted)
	}

	out, err := s.Export("")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(out, "graced success") {
		t.Error("recent success should survive pruning via the grace window")
	}
	if strings.Contains(out, "ancient success") || strings.Contains(out, "recent failure") {
		t.Error("expected ancient rows and recent failures to be pruned")
	}
}
