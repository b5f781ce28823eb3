package models

import "time"

// Analysis is the principal's structured assessment of a query. It decides
// which workers run in auto mode and seeds the handoff context for them.
type Analysis struct {
	Complexity   string            `json:"complexity"`
	Reasoning    string            `json:"reasoning,omitempty"`
	Domain       string            `json:"domain"`
	Subdomain    string            `json:"subdomain,omitempty"`
	AgentsNeeded []string          `json:"agents_needed"`
	Rationale    map[string]string `json:"agent_rationale,omitempty"`
	Strategy     string            `json:"strategy"`
	KeyAspects   []string          `json:"key_aspects"`
	// Fallback marks an analysis produced by the canned fallback path
	// rather than the model. Reason explains why.
	Fallback bool   `json:"fallback,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Finding is one worker's contribution to a research run.
type Finding struct {
	// Worker is the canonical worker name that produced this finding.
	Worker string
	// Role is the worker's declared role.
	Role string
	// Content is the worker's output text.
	Content string
	// Tokens is the approximate token count of the output.
	Tokens int
	// Duration is how long the execution took, including retries.
	Duration time.Duration
	// Degraded is true when the content is a fallback or salvaged response.
	// A worker that exhausts its retries still appears in the findings map
	// with this flag set; the wrapper always produces a result, so absence
	// only ever means the worker was skipped. Callers filter on the flag.
	Degraded bool
	// DegradedReason names the failure class behind a degraded finding.
	DegradedReason string
}

// CacheStats summarizes result cache activity for a run's report.
type CacheStats struct {
	Size          int
	TotalAccesses int
	Hits          int
	Misses        int
}

// ResearchResult is the caller-facing outcome of one research run. The
// coordinator always returns a well-formed result; partial failures show up
// as degraded or missing findings, never as an error.
type ResearchResult struct {
	// RunID uniquely identifies this research run.
	RunID string
	// Query is the original research query.
	Query string
	// Mode is the worker-selection mode the run executed under.
	Mode Mode
	// Analysis is the principal's query assessment (nil on cache hits).
	Analysis *Analysis
	// AgentsUsed lists workers that contributed findings, in no defined order.
	AgentsUsed []string
	// Findings maps worker name to its contribution. Workers that were
	// skipped or whose fallback was empty are absent.
	Findings map[string]Finding
	// Synthesis is the final report synthesized from the findings.
	Synthesis string
	// QualityScore is the auditor's 0-1 score, nil unless expert mode ran it.
	QualityScore *float64
	// ExecutionTime is the wall-clock duration of the run.
	ExecutionTime time.Duration
	// FromCache is true when the synthesis was served from the result cache.
	FromCache bool
	// Metrics holds per-worker aggregates from the interaction store.
	Metrics map[string]WorkerMetrics
	// Cache reports result cache activity.
	Cache CacheStats
	// Timestamp is when the run completed.
	Timestamp time.Time
}

// TotalTokens sums the token counts of all findings plus the synthesis.
func (r *ResearchResult) TotalTokens() int {
	total := 0
	for _, f := range r.Findings {
		total += f.Tokens
	}
	return total + len(r.Synthesis)/4
}
