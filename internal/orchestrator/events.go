package orchestrator

// EventType identifies a streaming event kind.
type EventType string

const (
	// EventAgentStart fires when a worker begins executing.
	EventAgentStart EventType = "agent_start"
	// EventAgentStream carries an incremental output chunk.
	EventAgentStream EventType = "agent_stream"
	// EventAgentComplete fires when a worker produces a first-class result.
	EventAgentComplete EventType = "agent_complete"
	// EventAgentError fires when a worker's result is degraded or fell back.
	EventAgentError EventType = "agent_error"
	// EventCacheHit fires when the run is served from the result cache.
	EventCacheHit EventType = "cache_hit"
)

// Event is one structured streaming notification. Every executed worker
// produces an agent_start followed by agent_complete or agent_error;
// workers skipped by dependency logic are silent.
type Event struct {
	// Type is the event kind.
	Type EventType
	// Worker is the canonical worker name, empty for run-level events.
	Worker string
	// Content is the chunk text for agent_stream, the full text for
	// agent_complete, and the degradation reason for agent_error.
	Content string
	// Tokens is the running token count for agent_stream events.
	Tokens int
}

// StreamFunc receives events during a run. May be nil.
type StreamFunc func(Event)

// emit invokes the stream callback when one is set.
func emit(fn StreamFunc, ev Event) {
	if fn != nil {
		fn(ev)
	}
}
