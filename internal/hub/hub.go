// Package hub carries structured context between workers during a research
// run: per-recipient handoff packages, scalar global facts, and a bounded
// conversation log. A Hub is created for one run and discarded with it.
package hub

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// maxLogEvents bounds the conversation log to the most recent events.
	maxLogEvents = 100
	// contextLogEvents is how many recent events BuildContext renders.
	contextLogEvents = 5
)

// Handoff is a structured context package passed from one worker (or phase)
// to the next. The receiving worker reads it once when its input is built;
// the hub retains it afterwards for auditing.
type Handoff struct {
	// From is the sending worker or phase name.
	From string
	// To is the receiving worker name.
	To string
	// Timestamp is when the handoff was created.
	Timestamp time.Time
	// Query is the research query the handoff relates to.
	Query string
	// KeyFindings carries named facts for the receiver.
	KeyFindings map[string]string
	// Recommendations lists suggested actions for the receiver.
	Recommendations []string
	// Warnings lists caveats; "skip" or "not needed" phrasing here causes
	// the receiver to be skipped by the planner.
	Warnings []string
	// Confidence is the sender's confidence in its findings, in [0,1].
	Confidence float64
	// PriorityAspects lists aspects the receiver should investigate first.
	PriorityAspects []string
}

// PromptContext renders the handoff as text for inclusion in a worker prompt.
func (h *Handoff) PromptContext() string {
	parts := []string{
		fmt.Sprintf("Previous agent: %s", h.From),
		fmt.Sprintf("Confidence level: %.2f", h.Confidence),
	}

	if len(h.KeyFindings) > 0 {
		keys := make([]string, 0, len(h.KeyFindings))
		for k := range h.KeyFindings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("Key findings:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %s", k, h.KeyFindings[k])
		}
		parts = append(parts, b.String())
	}

	if len(h.Recommendations) > 0 {
		parts = append(parts, "Recommendations:\n- "+strings.Join(h.Recommendations, "\n- "))
	}
	if len(h.Warnings) > 0 {
		parts = append(parts, "Warnings:\n- "+strings.Join(h.Warnings, "\n- "))
	}
	if len(h.PriorityAspects) > 0 {
		parts = append(parts, "Priority aspects to investigate: "+strings.Join(h.PriorityAspects, ", "))
	}

	return strings.Join(parts, "\n\n")
}

// LogEvent is one entry in the bounded conversation log.
type LogEvent struct {
	Type       string
	Timestamp  time.Time
	From       string
	To         string
	Findings   int
	Confidence float64
}

// Hub stores the most recent handoff per recipient (last-write-wins), a
// bounded conversation log, and a scalar global fact store. All methods are
// safe for concurrent use by workers in the same execution level.
type Hub struct {
	mu        sync.RWMutex
	handoffs  map[string]*Handoff
	logEvents []LogEvent
	globals   map[string]string
}

// New creates an empty Hub scoped to a single research run.
func New() *Hub {
	return &Hub{
		handoffs: make(map[string]*Handoff),
		globals:  make(map[string]string),
	}
}

// Handoff records a handoff for its recipient, replacing any earlier handoff
// addressed to the same worker, and appends an audit event to the log.
// Handoffs missing a sender or recipient are dropped.
func (h *Hub) Handoff(record *Handoff) {
	if record == nil || record.From == "" || record.To == "" {
		log.Printf("[hub] dropping invalid handoff: missing agent names")
		return
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.handoffs[record.To] = record
	h.appendEventLocked(LogEvent{
		Type:       "handoff",
		Timestamp:  record.Timestamp,
		From:       record.From,
		To:         record.To,
		Findings:   len(record.KeyFindings),
		Confidence: record.Confidence,
	})
}

// Latest returns the most recent handoff addressed to the named worker,
// or nil if none exists.
func (h *Hub) Latest(worker string) *Handoff {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handoffs[worker]
}

// SetGlobal stores a scalar fact visible to all workers in this run.
func (h *Hub) SetGlobal(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globals[key] = value
}

// GetGlobal returns the value for a global fact and whether it was set.
func (h *Hub) GetGlobal(key string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.globals[key]
	return v, ok
}

// Reset clears all handoffs, globals, and log events.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handoffs = make(map[string]*Handoff)
	h.globals = make(map[string]string)
	h.logEvents = nil
}

// BuildContext renders everything the named worker should see: its latest
// handoff, the scalar globals, and the tail of the conversation log. Returns
// an empty string when there is nothing to show.
func (h *Hub) BuildContext(worker string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var parts []string

	if handoff, ok := h.handoffs[worker]; ok {
		parts = append(parts, "=== Previous Agent Context ===\n"+handoff.PromptContext())
	}

	if len(h.globals) > 0 {
		keys := make([]string, 0, len(h.globals))
		for k := range h.globals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("=== Global Context ===")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s", k, h.globals[k])
		}
		parts = append(parts, b.String())
	}

	if len(h.logEvents) > 0 {
		start := len(h.logEvents) - contextLogEvents
		if start < 0 {
			start = 0
		}
		var b strings.Builder
		b.WriteString("=== Recent Activity ===")
		for _, ev := range h.logEvents[start:] {
			fmt.Fprintf(&b, "\n- %s -> %s (confidence: %.2f)", ev.From, ev.To, ev.Confidence)
		}
		parts = append(parts, b.String())
	}

	return strings.Join(parts, "\n\n")
}

// Summary aggregates the conversation log for the run report.
type Summary struct {
	Handoffs      int
	Agents        []string
	AvgConfidence float64
	LogLength     int
}

// Summarize returns a summary of the conversation so far.
func (h *Hub) Summarize() Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Summary{LogLength: len(h.logEvents)}
	seen := make(map[string]bool)
	total := 0.0
	for _, ev := range h.logEvents {
		if ev.Type != "handoff" {
			continue
		}
		s.Handoffs++
		total += ev.Confidence
		for _, name := range []string{ev.From, ev.To} {
			if !seen[name] {
				seen[name] = true
				s.Agents = append(s.Agents, name)
			}
		}
	}
	if s.Handoffs > 0 {
		s.AvgConfidence = total / float64(s.Handoffs)
	}
	sort.Strings(s.Agents)
	return s
}

// appendEventLocked appends to the conversation log, trimming to the bound.
// Caller must hold h.mu.
func (h *Hub) appendEventLocked(ev LogEvent) {
	h.logEvents = append(h.logEvents, ev)
	if len(h.logEvents) > maxLogEvents {
		h.logEvents = h.logEvents[len(h.logEvents)-maxLogEvents:]
	}
}
