// Package worker defines the unit-of-work abstraction the coordination core
// schedules: a named capability with declared dependencies that turns a query
// plus handoff context into streamed text. The builtin research roles live in
// roles.go; everything upstream treats them uniformly through the Worker
// interface.
package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/llm"
)

// DefaultTimeout is the base per-attempt timeout for a worker execution.
const DefaultTimeout = 120 * time.Second

// Input carries everything a worker needs for one execution.
type Input struct {
	// Query is the user's research query.
	Query string
	// Context is the rendered handoff context from earlier phases, may be empty.
	Context string
	// RetryNotice is appended to the prompt on retry attempts, empty on the first.
	RetryNotice string
	// Temperature overrides the worker's base temperature when > 0.
	Temperature float64
}

// Output is the result of one worker execution.
type Output struct {
	// Text is the worker's complete response.
	Text string
	// Tokens is the approximate output token count.
	Tokens int
}

// Worker is a single schedulable capability.
type Worker interface {
	// Name returns the unique canonical worker name.
	Name() string
	// Role returns the worker's role label, used for fallback selection.
	Role() string
	// DependsOn returns the names of workers whose output this worker needs.
	DependsOn() []string
	// Timeout returns the base per-attempt timeout.
	Timeout() time.Duration
	// Run executes the worker. onChunk, when non-nil, receives streamed output.
	Run(ctx context.Context, in Input, onChunk func(llm.Chunk)) (Output, error)
}

// Registry holds the known workers and their declared dependencies.
// Registration happens at startup; lookups are concurrency-safe.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Register adds a worker. Dependencies must reference other registered
// workers by the time planning happens, not at registration time.
func (r *Registry) Register(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := w.Name()
	if name == "" {
		return fmt.Errorf("worker has no name")
	}
	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("worker %q already registered", name)
	}
	r.workers[name] = w
	return nil
}

// Get returns the worker with the given name, or false if unknown.
func (r *Registry) Get(name string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// Names returns all registered worker names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependencies returns the declared dependency map for all registered
// workers, suitable for handing to the execution planner.
func (r *Registry) Dependencies() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deps := make(map[string][]string, len(r.workers))
	for name, w := range r.workers {
		deps[name] = append([]string(nil), w.DependsOn()...)
	}
	return deps
}

// Validate checks that every declared dependency references a registered
// worker. Called once after startup registration.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, w := range r.workers {
		for _, dep := range w.DependsOn() {
			if _, ok := r.workers[dep]; !ok {
				return fmt.Errorf("worker %q depends on unknown worker %q", name, dep)
			}
		}
	}
	return nil
}
