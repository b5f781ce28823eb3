package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/cache"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/hub"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/llm"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/memory"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/resilience"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/worker"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

// ErrBusy is returned when a research request arrives while another is in
// flight. The coordinator processes one top-level request at a time.
var ErrBusy = errors.New("a research request is already in progress")

// ErrUnknownWorker is returned when a mode requires a worker that is not in
// the registered roster. Like a dependency cycle, this is a configuration
// fault surfaced to the operator, never retried.
var ErrUnknownWorker = errors.New("worker not in roster")

// Quality values recorded for cache admission when no auditor score exists.
const (
	defaultQuality  = 0.9
	degradedQuality = 0.3
)

// handoffExcerptLen bounds the finding excerpt carried in a handoff.
const handoffExcerptLen = 400

// Coordinator runs research requests end to end. Worker wrappers and their
// circuit breakers persist across requests; the communication hub is created
// fresh for each request.
type Coordinator struct {
	registry *worker.Registry
	wrappers map[string]*resilience.Wrapper
	synth    *worker.Synthesizer
	cache    *cache.Cache
	store    *memory.Store

	isProcessing atomic.Bool
}

// New creates a coordinator over a validated worker registry. The memory
// store may be nil, in which case durable logging and metrics are disabled.
func New(registry *worker.Registry, synth *worker.Synthesizer, c *cache.Cache, store *memory.Store) *Coordinator {
	wrappers := make(map[string]*resilience.Wrapper)
	for _, name := range registry.Names() {
		w, _ := registry.Get(name)
		wrappers[name] = resilience.Wrap(w)
	}
	return &Coordinator{
		registry: registry,
		wrappers: wrappers,
		synth:    synth,
		cache:    c,
		store:    store,
	}
}

// ApplyResilience retunes every worker wrapper's retry budget and breaker
// settings. Safe to call while a run is in flight; new values take effect
// from the next execution. Non-positive values leave a setting unchanged.
func (c *Coordinator) ApplyResilience(retries, breakerThreshold int, breakerReset time.Duration) {
	for _, w := range c.wrappers {
		w.SetRetries(retries)
		w.Breaker().Configure(breakerThreshold, breakerReset)
	}
}

// Research executes one research request. It always returns a well-formed
// result when it returns nil error; partial worker failures surface as
// degraded findings, never as an error. Errors are limited to a busy
// coordinator, an invalid mode, a malformed dependency graph, and a roster
// missing a worker the mode requires.
func (c *Coordinator) Research(ctx context.Context, query string, mode models.Mode, stream StreamFunc) (*models.ResearchResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if !c.isProcessing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.isProcessing.Store(false)

	start := time.Now()
	result := &models.ResearchResult{
		RunID:    uuid.NewString(),
		Query:    query,
		Mode:     mode,
		Findings: make(map[string]models.Finding),
	}

	// Cached synthesis short-circuits the whole run.
	if entry, ok := c.cache.Lookup(models.WorkerPrincipal, query); ok {
		log.Printf("[orchestrator] cache hit for query, skipping execution")
		emit(stream, Event{Type: EventCacheHit, Worker: models.WorkerPrincipal, Content: entry.Artifact})
		result.Synthesis = entry.Artifact
		result.FromCache = true
		result.ExecutionTime = time.Since(start)
		result.Cache = c.cache.Stats()
		result.Timestamp = time.Now()
		return result, nil
	}

	h := hub.New()
	c.seedFromMemory(h, query)

	agents, audit, analysis, err := c.selectWorkers(ctx, query, mode, h, stream, result)
	if err != nil {
		return nil, err
	}
	result.Analysis = analysis

	levels, err := Plan(agents, c.registry.Dependencies())
	if err != nil {
		return nil, fmt.Errorf("plan execution levels: %w", err)
	}

	for _, level := range levels {
		c.runLevel(ctx, level, agents, query, h, stream, result)
	}

	synthesized := c.synthesize(ctx, query, h, stream, result)

	if audit {
		c.runAudit(ctx, query, h, stream, result)
	}

	c.persistRun(query, mode, result, time.Since(start), synthesized)
	c.collectMetrics(result)

	result.AgentsUsed = sortedKeys(result.Findings)
	result.ExecutionTime = time.Since(start)
	result.Cache = c.cache.Stats()
	result.Timestamp = time.Now()
	return result, nil
}

// selectWorkers resolves the requested worker set for the mode and validates
// it against the registered roster; a custom roster missing a worker the mode
// hardcodes is a configuration fault, not a crash. In auto mode the principal
// analyzes the query first; its analysis also seeds handoffs for the selected
// workers.
func (c *Coordinator) selectWorkers(ctx context.Context, query string, mode models.Mode, h *hub.Hub, stream StreamFunc, result *models.ResearchResult) (agents []string, audit bool, analysis *models.Analysis, err error) {
	switch mode {
	case models.ModeSimple:
		agents = []string{models.WorkerSpecialist}
	case models.ModeExpert:
		agents = []string{models.WorkerSpecialist, models.WorkerHarvester, models.WorkerValidator}
		audit = true
	case models.ModeAuto:
		// The analysis phase itself runs the principal.
		if _, ok := c.registry.Get(models.WorkerPrincipal); !ok {
			return nil, false, nil, fmt.Errorf("%s mode needs %q: %w", mode, models.WorkerPrincipal, ErrUnknownWorker)
		}
		analysis = c.analyze(ctx, query, stream, result)
		agents = c.filterAgents(analysis.AgentsNeeded)
		if len(agents) == 0 {
			agents = []string{models.WorkerSpecialist}
		}
	}

	required := append([]string(nil), agents...)
	if audit {
		required = append(required, models.WorkerAuditor)
	}
	for _, name := range required {
		if _, ok := c.registry.Get(name); !ok {
			return nil, false, nil, fmt.Errorf("%s mode needs %q: %w", mode, name, ErrUnknownWorker)
		}
	}

	if analysis != nil {
		for _, name := range agents {
			c.handoffFromAnalysis(h, query, name, analysis)
		}
	}
	return agents, audit, analysis, nil
}

// analyze runs the principal's query analysis. Fallback responses are JSON
// by construction, so parsing only fails on salvaged garbage; a conservative
// default plan covers that case.
func (c *Coordinator) analyze(ctx context.Context, query string, stream StreamFunc, result *models.ResearchResult) *models.Analysis {
	name := models.WorkerPrincipal
	emit(stream, Event{Type: EventAgentStart, Worker: name})

	res := c.wrappers[name].Execute(ctx, worker.Input{Query: query}, worker.ValidJSONObject, func(ch llm.Chunk) {
		emit(stream, Event{Type: EventAgentStream, Worker: name, Content: ch.Text, Tokens: ch.Tokens})
	})
	c.emitOutcome(stream, name, res)

	analysis, err := worker.ParseAnalysis(res.Text)
	if err != nil {
		log.Printf("[orchestrator] unusable analysis, using default plan: %v", err)
		return &models.Analysis{
			Complexity:   "moderate",
			Domain:       "general",
			AgentsNeeded: []string{models.WorkerSpecialist, models.WorkerHarvester},
			Strategy:     "parallel",
			Fallback:     true,
			Reason:       "analysis unusable",
		}
	}
	return analysis
}

// filterAgents keeps only registered research workers. The principal and the
// auditor run in their own phases, never inside execution levels.
func (c *Coordinator) filterAgents(names []string) []string {
	var agents []string
	seen := make(map[string]bool)
	for _, name := range names {
		if name == models.WorkerPrincipal || name == models.WorkerAuditor || seen[name] {
			continue
		}
		if _, ok := c.registry.Get(name); !ok {
			log.Printf("[orchestrator] analysis requested unknown worker %q, ignoring", name)
			continue
		}
		seen[name] = true
		agents = append(agents, name)
	}
	return agents
}

func (c *Coordinator) handoffFromAnalysis(h *hub.Hub, query, to string, analysis *models.Analysis) {
	findings := map[string]string{
		"complexity": analysis.Complexity,
		"domain":     analysis.Domain,
	}
	if analysis.Subdomain != "" {
		findings["subdomain"] = analysis.Subdomain
	}
	var recs []string
	if r, ok := analysis.Rationale[to]; ok {
		recs = append(recs, r)
	}
	confidence := 0.9
	if analysis.Fallback {
		confidence = 0.5
	}
	h.Handoff(&hub.Handoff{
		From:            models.WorkerPrincipal,
		To:              to,
		Query:           query,
		KeyFindings:     findings,
		Recommendations: recs,
		Confidence:      confidence,
		PriorityAspects: analysis.KeyAspects,
	})
}

// runLevel executes one level's workers concurrently. Failures are isolated:
// a degraded sibling never cancels the rest of the level.
func (c *Coordinator) runLevel(ctx context.Context, level, requested []string, query string, h *hub.Hub, stream StreamFunc, result *models.ResearchResult) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, name := range level {
		if ShouldSkip(h.Latest(name)) {
			log.Printf("[orchestrator] skipping %s per handoff signal", name)
			continue
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			w, _ := c.registry.Get(name)
			emit(stream, Event{Type: EventAgentStart, Worker: name})

			workerStart := time.Now()
			in := worker.Input{Query: query, Context: h.BuildContext(name)}
			res := c.wrappers[name].Execute(ctx, in, nil, func(ch llm.Chunk) {
				emit(stream, Event{Type: EventAgentStream, Worker: name, Content: ch.Text, Tokens: ch.Tokens})
			})
			elapsed := time.Since(workerStart)
			c.emitOutcome(stream, name, res)

			finding := models.Finding{
				Worker:         name,
				Role:           w.Role(),
				Content:        res.Text,
				Tokens:         res.Tokens,
				Duration:       elapsed,
				Degraded:       res.Degraded,
				DegradedReason: res.DegradedReason,
			}
			mu.Lock()
			result.Findings[name] = finding
			mu.Unlock()

			c.handoffToDependents(h, name, requested, query, res)
			c.recordExecution(name, query, res, elapsed)
		}(name)
	}
	wg.Wait()
}

// handoffToDependents passes a finding excerpt to every requested worker
// that declared a dependency on the sender.
func (c *Coordinator) handoffToDependents(h *hub.Hub, from string, requested []string, query string, res resilience.Result) {
	confidence := defaultQuality
	var warnings []string
	if res.Degraded {
		confidence = degradedQuality
		warnings = append(warnings, "upstream finding is degraded ("+res.DegradedReason+")")
	}
	deps := c.registry.Dependencies()
	for _, name := range requested {
		if name == from {
			continue
		}
		for _, dep := range deps[name] {
			if dep != from {
				continue
			}
			h.Handoff(&hub.Handoff{
				From:        from,
				To:          name,
				Query:       query,
				KeyFindings: map[string]string{"finding": excerpt(res.Text, handoffExcerptLen)},
				Warnings:    warnings,
				Confidence:  confidence,
			})
		}
	}
}

// recordExecution updates the durable store and the per-worker cache entry.
// Both are best-effort accelerators; failures are logged and swallowed.
func (c *Coordinator) recordExecution(name, query string, res resilience.Result, elapsed time.Duration) {
	quality := defaultQuality
	if res.Degraded {
		quality = degradedQuality
	}
	c.cache.Store(name, query, res.Text, !res.Degraded, quality)

	if c.store == nil {
		return
	}
	err := c.store.Append(&memory.Interaction{
		Worker:   name,
		Query:    query,
		Response: res.Text,
		Success:  !res.Degraded,
		Duration: elapsed,
		Tokens:   res.Tokens,
	})
	if err != nil {
		log.Printf("[orchestrator] memory append failed for %s: %v", name, err)
	}
}

// synthesize produces the final report from the collected findings. When the
// model call fails the findings are concatenated instead; the run still
// returns a usable synthesis. The return value reports whether the synthesis
// came from the model rather than a fallback.
func (c *Coordinator) synthesize(ctx context.Context, query string, h *hub.Hub, stream StreamFunc, result *models.ResearchResult) bool {
	name := models.WorkerPrincipal

	findings := make(map[string]string, len(result.Findings))
	for wname, f := range result.Findings {
		findings[wname] = f.Content
	}
	if len(findings) == 0 {
		result.Synthesis = "No findings were produced for this query."
		return false
	}

	emit(stream, Event{Type: EventAgentStart, Worker: name})
	text, _, err := c.synth.Synthesize(ctx, query, findings, func(ch llm.Chunk) {
		emit(stream, Event{Type: EventAgentStream, Worker: name, Content: ch.Text, Tokens: ch.Tokens})
	})
	if err != nil {
		log.Printf("[orchestrator] synthesis failed, concatenating findings: %v", err)
		emit(stream, Event{Type: EventAgentError, Worker: name, Content: resilience.ReasonError})
		result.Synthesis = concatFindings(findings)
		return false
	}
	emit(stream, Event{Type: EventAgentComplete, Worker: name, Content: text})
	result.Synthesis = text

	summary := h.Summarize()
	log.Printf("[orchestrator] synthesis complete: %d handoffs across %d agents", summary.Handoffs, len(summary.Agents))
	return true
}

// runAudit scores the synthesis with the quality auditor. Only expert mode
// reaches here.
func (c *Coordinator) runAudit(ctx context.Context, query string, h *hub.Hub, stream StreamFunc, result *models.ResearchResult) {
	name := models.WorkerAuditor

	h.Handoff(&hub.Handoff{
		From:        models.WorkerPrincipal,
		To:          name,
		Query:       query,
		KeyFindings: map[string]string{"synthesis": result.Synthesis},
		Confidence:  defaultQuality,
	})

	emit(stream, Event{Type: EventAgentStart, Worker: name})
	workerStart := time.Now()
	in := worker.Input{Query: query, Context: h.BuildContext(name)}
	res := c.wrappers[name].Execute(ctx, in, func(s string) bool {
		_, ok := worker.ParseScore(s)
		return ok
	}, func(ch llm.Chunk) {
		emit(stream, Event{Type: EventAgentStream, Worker: name, Content: ch.Text, Tokens: ch.Tokens})
	})
	elapsed := time.Since(workerStart)
	c.emitOutcome(stream, name, res)

	w, _ := c.registry.Get(name)
	result.Findings[name] = models.Finding{
		Worker:         name,
		Role:           w.Role(),
		Content:        res.Text,
		Tokens:         res.Tokens,
		Duration:       elapsed,
		Degraded:       res.Degraded,
		DegradedReason: res.DegradedReason,
	}

	if score, ok := worker.ParseScore(res.Text); ok {
		result.QualityScore = &score
	}
	c.recordExecution(name, query, res, elapsed)
}

// persistRun records the synthesis in the durable store and the result
// cache, using the auditor's score for cache admission when one exists. A run
// counts as a success only when the synthesis came from the model and at
// least one finding is first-class; a run reduced to fallbacks end to end is
// recorded as a failure so it never clears the cache admission bar.
func (c *Coordinator) persistRun(query string, mode models.Mode, result *models.ResearchResult, elapsed time.Duration, synthesized bool) {
	healthy := false
	for _, f := range result.Findings {
		if !f.Degraded {
			healthy = true
			break
		}
	}
	success := synthesized && healthy && result.Synthesis != ""

	quality := degradedQuality
	if success {
		quality = defaultQuality
		if result.QualityScore != nil {
			quality = *result.QualityScore
		}
	}
	c.cache.Store(models.WorkerPrincipal, query, result.Synthesis, success, quality)

	if c.store == nil {
		return
	}
	err := c.store.Append(&memory.Interaction{
		Worker:   models.WorkerPrincipal,
		Query:    query,
		Response: result.Synthesis,
		Metadata: map[string]string{"mode": string(mode), "run_id": result.RunID},
		Success:  success,
		Duration: elapsed,
		Tokens:   len(result.Synthesis) / 4,
	})
	if err != nil {
		log.Printf("[orchestrator] memory append failed for synthesis: %v", err)
	}
}

// seedFromMemory surfaces closely related past research as a global fact so
// every worker sees it. Best-effort.
func (c *Coordinator) seedFromMemory(h *hub.Hub, query string) {
	if c.store == nil {
		return
	}
	scored, err := c.store.RetrieveSimilar(query, "", 1, 0.9)
	if err != nil {
		log.Printf("[orchestrator] memory retrieval failed: %v", err)
		return
	}
	if len(scored) > 0 {
		h.SetGlobal("related past research", excerpt(scored[0].Entry.Response, handoffExcerptLen))
	}
}

func (c *Coordinator) collectMetrics(result *models.ResearchResult) {
	if c.store == nil {
		return
	}
	result.Metrics = make(map[string]models.WorkerMetrics, len(result.Findings))
	for name := range result.Findings {
		m, err := c.store.Metrics(name)
		if err != nil {
			log.Printf("[orchestrator] metrics read failed for %s: %v", name, err)
			continue
		}
		result.Metrics[name] = m
	}
}

func (c *Coordinator) emitOutcome(stream StreamFunc, name string, res resilience.Result) {
	if res.Degraded {
		emit(stream, Event{Type: EventAgentError, Worker: name, Content: res.DegradedReason})
		return
	}
	emit(stream, Event{Type: EventAgentComplete, Worker: name, Content: res.Text, Tokens: res.Tokens})
}

func concatFindings(findings map[string]string) string {
	var b strings.Builder
	for _, name := range sortedKeysOf(findings) {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", name, findings[name])
	}
	return strings.TrimSpace(b.String())
}

func excerpt(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

func sortedKeys(m map[string]models.Finding) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
