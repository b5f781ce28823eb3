package orchestrator

import (
	"errors"
	"testing"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/hub"
)

func TestPlanLevelsRespectDependencies(t *testing.T) {
	deps := map[string][]string{
		"c": {"a", "b"},
	}
	levels, err := Plan([]string{"a", "b", "c"}, deps)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %v", levels)
	}
	if len(levels[0]) != 2 || len(levels[1]) != 1 || levels[1][0] != "c" {
		t.Errorf("unexpected levels %v", levels)
	}

	// Every worker appears exactly once.
	seen := make(map[string]int)
	for _, level := range levels {
		for _, name := range level {
			seen[name]++
		}
	}
	for _, name := range []string{"a", "b", "c"} {
		if seen[name] != 1 {
			t.Errorf("worker %s appears %d times", name, seen[name])
		}
	}
}

func TestPlanDependenciesStrictlyEarlier(t *testing.T) {
	deps := map[string][]string{
		"b": {"a"},
		"c": {"b"},
		"d": {"a", "c"},
	}
	levels, err := Plan([]string{"a", "b", "c", "d"}, deps)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	levelOf := make(map[string]int)
	for i, level := range levels {
		for _, name := range level {
			levelOf[name] = i
		}
	}
	for name, ds := range deps {
		for _, dep := range ds {
			if levelOf[dep] >= levelOf[name] {
				t.Errorf("dependency %s of %s not strictly earlier (%d vs %d)",
					dep, name, levelOf[dep], levelOf[name])
			}
		}
	}
}

func TestPlanSkipIfAbsent(t *testing.T) {
	deps := map[string][]string{
		"c": {"a", "b"},
	}
	levels, err := Plan([]string{"c"}, deps)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(levels) != 1 || len(levels[0]) != 1 || levels[0][0] != "c" {
		t.Errorf("absent dependencies should be treated as satisfied, got %v", levels)
	}
}

func TestPlanCycleReturnsError(t *testing.T) {
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := Plan([]string{"a", "b"}, deps)
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestShouldSkip(t *testing.T) {
	if ShouldSkip(nil) {
		t.Error("nil handoff should not skip")
	}

	h := &hub.Handoff{From: "a", To: "b", Warnings: []string{"validation is not needed for this query"}}
	if !ShouldSkip(h) {
		t.Error("expected skip for 'not needed' warning")
	}
	// Idempotent for an unchanged handoff.
	if !ShouldSkip(h) {
		t.Error("repeated evaluation should return the same result")
	}

	plain := &hub.Handoff{From: "a", To: "b", Recommendations: []string{"focus on recent data"}}
	if ShouldSkip(plain) {
		t.Error("ordinary recommendations should not skip")
	}
}
