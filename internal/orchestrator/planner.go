// Package orchestrator coordinates a research run: it plans dependency-aware
// execution levels, runs each level's workers concurrently behind resilience
// wrappers, threads handoff context between levels, and assembles the final
// result. Cache and memory are consulted before execution and updated after.
package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/hub"
)

// ErrCycleDetected indicates a circular dependency in the worker graph.
// This is a configuration fault surfaced to the operator, never retried.
var ErrCycleDetected = errors.New("circular dependency detected")

// Plan turns a requested worker set plus a dependency map into ordered
// execution levels. Every worker lands in the earliest level where all of
// its requested dependencies sit in strictly earlier levels; dependencies
// outside the requested set are treated as already satisfied. Workers within
// a level carry no ordering guarantee.
func Plan(requested []string, deps map[string][]string) ([][]string, error) {
	inRequest := make(map[string]bool, len(requested))
	for _, name := range requested {
		inRequest[name] = true
	}

	// Restrict edges to the requested set, skip-if-absent.
	edges := make(map[string][]string, len(requested))
	for _, name := range requested {
		for _, dep := range deps[name] {
			if inRequest[dep] {
				edges[name] = append(edges[name], dep)
			}
		}
	}

	// Depth-first topological order with cycle detection.
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(requested))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("worker %q: %w", name, ErrCycleDetected)
		}
		state[name] = visiting
		for _, dep := range edges[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	// Sorted for a deterministic visit order.
	sorted := append([]string(nil), requested...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	// Greedy bucketing: a worker enters the level after its deepest dependency.
	levelOf := make(map[string]int, len(order))
	maxLevel := 0
	for _, name := range order {
		level := 0
		for _, dep := range edges[name] {
			if levelOf[dep]+1 > level {
				level = levelOf[dep] + 1
			}
		}
		levelOf[name] = level
		if level > maxLevel {
			maxLevel = level
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, name := range order {
		l := levelOf[name]
		levels[l] = append(levels[l], name)
	}
	return levels, nil
}

// ShouldSkip reports whether a worker's latest handoff carries a textual
// skip signal. Skipped workers are excluded from their level without being
// marked failed. Deterministic for an unchanged handoff.
func ShouldSkip(h *hub.Handoff) bool {
	if h == nil {
		return false
	}
	for _, text := range append(append([]string(nil), h.Warnings...), h.Recommendations...) {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "skip") || strings.Contains(lower, "not needed") {
			return true
		}
	}
	return false
}
