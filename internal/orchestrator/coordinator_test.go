package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/cache"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/llm"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/worker"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

// scriptedGen answers by prompt shape: the analysis prompt gets JSON, the
// auditor gets a score line, synthesis gets a report, everything else gets a
// finding. Roles named in failFor fail every attempt.
type scriptedGen struct {
	mu      sync.Mutex
	failFor []string
	calls   []string
}

func (g *scriptedGen) Generate(ctx context.Context, req llm.GenerateRequest, onChunk func(llm.Chunk)) (llm.GenerateResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.Prompt)
	g.mu.Unlock()

	for _, marker := range g.failFor {
		if strings.Contains(req.Prompt, marker) {
			return llm.GenerateResult{}, errors.New("model unavailable")
		}
	}

	var text string
	switch {
	case strings.Contains(req.Prompt, "optimal processing strategy"):
		text = `{"complexity": "moderate", "domain": "technology", "agents_needed": ["domain-specialist", "web-harvester"], "strategy": "parallel", "key_aspects": ["scope"]}`
	case strings.Contains(req.Prompt, "Quality Auditor"):
		text = "The answer is complete and accurate.\nSCORE: 0.8"
	case strings.Contains(req.Prompt, "Synthesize the findings"):
		text = "synthesized report"
	default:
		text = "finding text"
	}
	if onChunk != nil {
		onChunk(llm.Chunk{Text: text, Tokens: 3})
	}
	return llm.GenerateResult{Text: text, Tokens: 3}, nil
}

func newTestCoordinator(t *testing.T, gen llm.Generator) *Coordinator {
	t.Helper()
	reg, err := worker.NewRoster(worker.DefaultSpecs(), gen)
	if err != nil {
		t.Fatalf("roster failed: %v", err)
	}
	return New(reg, worker.NewSynthesizer(gen, ""), cache.New(), nil)
}

func TestResearchSimpleMode(t *testing.T) {
	gen := &scriptedGen{}
	c := newTestCoordinator(t, gen)

	var events []Event
	res, err := c.Research(context.Background(), "what is a b-tree", models.ModeSimple, func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("research failed: %v", err)
	}

	if _, ok := res.Findings[models.WorkerSpecialist]; !ok {
		t.Error("simple mode should produce a specialist finding")
	}
	if res.Synthesis != "synthesized report" {
		t.Errorf("unexpected synthesis %q", res.Synthesis)
	}
	if res.FromCache {
		t.Error("first run should not be served from cache")
	}
	if res.QualityScore != nil {
		t.Error("simple mode should not run the auditor")
	}

	assertEventPair(t, events, models.WorkerSpecialist)
}

func TestResearchExpertModeRunsAuditor(t *testing.T) {
	gen := &scriptedGen{}
	c := newTestCoordinator(t, gen)

	res, err := c.Research(context.Background(), "impact of rate hikes", models.ModeExpert, nil)
	if err != nil {
		t.Fatalf("research failed: %v", err)
	}

	for _, name := range []string{models.WorkerSpecialist, models.WorkerHarvester, models.WorkerValidator, models.WorkerAuditor} {
		if _, ok := res.Findings[name]; !ok {
			t.Errorf("expert mode missing finding for %s", name)
		}
	}
	if res.QualityScore == nil {
		t.Fatal("expert mode should produce a quality score")
	}
	if *res.QualityScore != 0.8 {
		t.Errorf("expected score 0.8, got %f", *res.QualityScore)
	}
}

func TestResearchAutoModeUsesAnalysis(t *testing.T) {
	gen := &scriptedGen{}
	c := newTestCoordinator(t, gen)

	res, err := c.Research(context.Background(), "latest battery tech", models.ModeAuto, nil)
	if err != nil {
		t.Fatalf("research failed: %v", err)
	}

	if res.Analysis == nil {
		t.Fatal("auto mode should carry the analysis")
	}
	if res.Analysis.Domain != "technology" {
		t.Errorf("unexpected analysis domain %q", res.Analysis.Domain)
	}
	for _, name := range []string{models.WorkerSpecialist, models.WorkerHarvester} {
		if _, ok := res.Findings[name]; !ok {
			t.Errorf("analysis-selected worker %s missing from findings", name)
		}
	}
	if _, ok := res.Findings[models.WorkerValidator]; ok {
		t.Error("validator was not selected by the analysis")
	}
}

func TestResearchSecondIdenticalQueryHitsCache(t *testing.T) {
	gen := &scriptedGen{}
	c := newTestCoordinator(t, gen)

	query := "what is a b-tree"
	if _, err := c.Research(context.Background(), query, models.ModeSimple, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	var events []Event
	res, err := c.Research(context.Background(), query, models.ModeSimple, func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !res.FromCache {
		t.Fatal("second identical query should be served from cache")
	}
	if res.Synthesis != "synthesized report" {
		t.Errorf("cached synthesis mismatch: %q", res.Synthesis)
	}
	if len(events) != 1 || events[0].Type != EventCacheHit {
		t.Errorf("expected a single cache_hit event, got %v", events)
	}
	if len(res.Findings) != 0 {
		t.Error("cache hits should carry no fresh findings")
	}
}

func TestResearchFailureIsolation(t *testing.T) {
	// The harvester fails every attempt; its siblings and the dependent
	// validator still run.
	gen := &scriptedGen{failFor: []string{"Web Harvester"}}
	c := newTestCoordinator(t, gen)

	res, err := c.Research(context.Background(), "mixed outcome query", models.ModeExpert, nil)
	if err != nil {
		t.Fatalf("research failed: %v", err)
	}

	harvester, ok := res.Findings[models.WorkerHarvester]
	if !ok {
		t.Fatal("degraded worker should still contribute a fallback finding")
	}
	if !harvester.Degraded {
		t.Error("harvester finding should be marked degraded")
	}
	if harvester.Content == "" {
		t.Error("fallback content must not be empty")
	}

	specialist := res.Findings[models.WorkerSpecialist]
	if specialist.Degraded {
		t.Error("sibling failure should not degrade the specialist")
	}
	if _, ok := res.Findings[models.WorkerValidator]; !ok {
		t.Error("validator should still run after a degraded dependency")
	}
	if res.Synthesis == "" {
		t.Error("run must still produce a synthesis")
	}
}

func TestResearchFallbackOnlyRunNotCached(t *testing.T) {
	// An empty marker matches every prompt: every worker call and the
	// synthesis fail, so the whole run is fallback text end to end.
	gen := &scriptedGen{failFor: []string{""}}
	c := newTestCoordinator(t, gen)

	query := "query the model never answers"
	first, err := c.Research(context.Background(), query, models.ModeSimple, nil)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if f := first.Findings[models.WorkerSpecialist]; !f.Degraded {
		t.Fatal("specialist finding should be degraded")
	}
	if first.Synthesis == "" {
		t.Error("fallback synthesis must not be empty")
	}

	var events []Event
	second, err := c.Research(context.Background(), query, models.ModeSimple, func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.FromCache {
		t.Error("a fallback-only run must not be served from cache")
	}
	for _, ev := range events {
		if ev.Type == EventCacheHit {
			t.Error("no cache_hit event expected after a fallback-only run")
		}
	}
}

func TestResearchRejectsRosterWithoutModeWorkers(t *testing.T) {
	specs := []models.WorkerSpec{{Name: "my-researcher", Role: models.RoleSpecialist}}
	reg, err := worker.NewRoster(specs, &scriptedGen{})
	if err != nil {
		t.Fatalf("roster failed: %v", err)
	}
	c := New(reg, worker.NewSynthesizer(&scriptedGen{}, ""), cache.New(), nil)

	if _, err := c.Research(context.Background(), "q", models.ModeSimple, nil); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("simple mode without the specialist should be rejected, got %v", err)
	}
	if _, err := c.Research(context.Background(), "q", models.ModeAuto, nil); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("auto mode without the principal should be rejected, got %v", err)
	}
}

func TestApplyResilienceLimitsRetries(t *testing.T) {
	// The expertise line only appears in the specialist's own prompt, so
	// counting it counts attempts.
	marker := "deep analytical knowledge"
	gen := &scriptedGen{failFor: []string{marker}}
	c := newTestCoordinator(t, gen)
	c.ApplyResilience(1, 0, 0)

	if _, err := c.Research(context.Background(), "single attempt query", models.ModeSimple, nil); err != nil {
		t.Fatalf("research failed: %v", err)
	}

	gen.mu.Lock()
	attempts := 0
	for _, prompt := range gen.calls {
		if strings.Contains(prompt, marker) {
			attempts++
		}
	}
	gen.mu.Unlock()
	if attempts != 1 {
		t.Errorf("expected a single specialist attempt after retuning, got %d", attempts)
	}
}

func TestResearchRejectsConcurrentRequests(t *testing.T) {
	c := newTestCoordinator(t, &scriptedGen{})
	c.isProcessing.Store(true)

	_, err := c.Research(context.Background(), "q", models.ModeSimple, nil)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestResearchRejectsUnknownMode(t *testing.T) {
	c := newTestCoordinator(t, &scriptedGen{})
	if _, err := c.Research(context.Background(), "q", models.Mode("bogus"), nil); err == nil {
		t.Error("unknown mode should be rejected")
	}
}

// assertEventPair verifies the worker produced an agent_start followed by a
// terminal agent_complete or agent_error.
func assertEventPair(t *testing.T, events []Event, name string) {
	t.Helper()
	started := false
	for _, ev := range events {
		if ev.Worker != name {
			continue
		}
		switch ev.Type {
		case EventAgentStart:
			started = true
		case EventAgentComplete, EventAgentError:
			if !started {
				t.Errorf("%s completed before starting", name)
			}
			return
		}
	}
	t.Errorf("no terminal event for %s", name)
}
