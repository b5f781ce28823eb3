package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/llm"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

// analysisOutputFormat pins the JSON shape the principal's analysis must
// produce. Worker names here are the canonical registry names.
const analysisOutputFormat = `{
    "complexity": "simple|moderate|complex",
    "reasoning": "brief explanation of the complexity assessment",
    "domain": "primary domain (technology|science|business|health|general)",
    "subdomain": "specific area if applicable",
    "agents_needed": ["domain-specialist", "web-harvester"],
    "agent_rationale": {"domain-specialist": "why this worker is needed"},
    "strategy": "parallel|sequential|hybrid",
    "key_aspects": ["aspect 1", "aspect 2"]
}`

// analysisExamples is the few-shot pool for the principal's analysis step.
var analysisExamples = []Example{
	{
		Query:    "What is photosynthesis?",
		Response: `{"complexity": "simple", "reasoning": "Single well-understood concept", "domain": "science", "agents_needed": ["domain-specialist"], "strategy": "parallel", "key_aspects": ["definition", "mechanism"]}`,
	},
	{
		Query:    "Compare the economic impact of remote work on commercial real estate in major US cities",
		Response: `{"complexity": "complex", "reasoning": "Multi-factor comparison needing current data", "domain": "business", "subdomain": "real estate", "agents_needed": ["domain-specialist", "web-harvester", "fact-validator"], "strategy": "sequential", "key_aspects": ["vacancy rates", "remote work trends", "city comparison"]}`,
	},
	{
		Query:    "What are the latest developments in solid-state battery technology?",
		Response: `{"complexity": "moderate", "reasoning": "Current-events question in a technical domain", "domain": "technology", "subdomain": "energy storage", "agents_needed": ["web-harvester", "domain-specialist"], "strategy": "parallel", "key_aspects": ["recent announcements", "technical progress", "commercialization timeline"]}`,
	},
}

// DefaultSpecs returns the builtin worker roster with its dependency
// declarations: the validator consumes specialist and harvester findings,
// and the auditor reviews the principal's synthesis.
func DefaultSpecs() []models.WorkerSpec {
	return []models.WorkerSpec{
		{Name: models.WorkerPrincipal, Role: models.RolePrincipal},
		{Name: models.WorkerSpecialist, Role: models.RoleSpecialist},
		{Name: models.WorkerHarvester, Role: models.RoleHarvester},
		{Name: models.WorkerValidator, Role: models.RoleValidator, DependsOn: []string{models.WorkerSpecialist, models.WorkerHarvester}},
		{Name: models.WorkerAuditor, Role: models.RoleAuditor, DependsOn: []string{models.WorkerPrincipal}},
	}
}

// LLMWorker is a Worker backed by a text-generation model. The role decides
// the prompt shape and base sampling temperature.
type LLMWorker struct {
	spec    models.WorkerSpec
	gen     llm.Generator
	timeout time.Duration
}

// Option configures an LLMWorker beyond what its spec carries.
type Option func(*LLMWorker)

// WithTimeout overrides the base per-attempt timeout. Non-positive values
// are ignored.
func WithTimeout(d time.Duration) Option {
	return func(w *LLMWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// New creates a worker from its spec.
func New(spec models.WorkerSpec, gen llm.Generator, opts ...Option) (*LLMWorker, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("worker spec has no name")
	}
	if spec.Role == "" {
		return nil, fmt.Errorf("worker %q has no role", spec.Name)
	}
	w := &LLMWorker{spec: spec, gen: gen, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewRoster creates workers for every spec and registers them. Options apply
// to every worker in the roster.
func NewRoster(specs []models.WorkerSpec, gen llm.Generator, opts ...Option) (*Registry, error) {
	reg := NewRegistry()
	for _, spec := range specs {
		w, err := New(spec, gen, opts...)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(w); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (w *LLMWorker) Name() string           { return w.spec.Name }
func (w *LLMWorker) Role() string           { return w.spec.Role }
func (w *LLMWorker) DependsOn() []string    { return w.spec.DependsOn }
func (w *LLMWorker) Timeout() time.Duration { return w.timeout }

// Run builds the role-specific prompt and executes one generation call.
func (w *LLMWorker) Run(ctx context.Context, in Input, onChunk func(llm.Chunk)) (Output, error) {
	prompt := w.buildPrompt(in)

	temp := in.Temperature
	if temp <= 0 {
		temp = w.spec.Temperature
	}
	if temp <= 0 {
		temp = OptimalTemperature(w.spec.Role, 0, -1)
	}

	res, err := w.gen.Generate(ctx, llm.GenerateRequest{
		Model:       w.spec.Model,
		Prompt:      prompt,
		Temperature: temp,
	}, onChunk)
	if err != nil {
		return Output{}, err
	}

	return Output{Text: CleanResponse(res.Text), Tokens: res.Tokens}, nil
}

func (w *LLMWorker) buildPrompt(in Input) string {
	tmpl := w.template(in)
	prompt := tmpl.Render(in.Query)
	if in.RetryNotice != "" {
		prompt += "\n\n" + in.RetryNotice
	}
	return prompt
}

func (w *LLMWorker) template(in Input) PromptTemplate {
	ctx := map[string]string{}
	if in.Context != "" {
		ctx["prior findings"] = in.Context
	}

	switch w.spec.Role {
	case models.RolePrincipal:
		return PromptTemplate{
			Role:      "the Principal Synthesizer",
			Expertise: "query analysis and multi-agent orchestration",
			Context:   ctx,
			Task:      "Analyze the given query to determine the optimal processing strategy.",
			Constraints: []string{
				"respond with a single JSON object and nothing else",
				"select only the workers the query actually needs",
				"prefer parallel strategy unless findings must build on each other",
			},
			Examples:     SelectExamples(in.Query, analysisExamples, 2),
			OutputFormat: analysisOutputFormat,
		}
	case models.RoleSpecialist:
		return PromptTemplate{
			Role:      "the Domain Specialist",
			Expertise: "deep analytical knowledge across technical and scientific domains",
			Context:   ctx,
			Task:      "Provide a thorough, well-structured analysis of the query from your domain expertise.",
			Constraints: []string{
				"ground every claim in established knowledge",
				"state uncertainty explicitly rather than guessing",
				"keep the response focused, no filler",
			},
		}
	case models.RoleHarvester:
		return PromptTemplate{
			Role:      "the Web Harvester",
			Expertise: "current events, recent developments, and time-sensitive information",
			Context:   ctx,
			Task:      "Report what is currently known about the query, emphasizing recent developments and concrete facts.",
			Constraints: []string{
				"flag information that may be outdated",
				"prefer specific facts, figures, and dates over generalities",
			},
		}
	case models.RoleValidator:
		return PromptTemplate{
			Role:      "the Fact Validator",
			Expertise: "claim verification and consistency checking",
			Context:   ctx,
			Task:      "Review the prior findings for the query. Identify claims that are well-supported, contradictory, or dubious.",
			Constraints: []string{
				"address the findings, not the query itself",
				"list each verdict with a one-line justification",
			},
		}
	case models.RoleAuditor:
		return PromptTemplate{
			Role:      "the Quality Auditor",
			Expertise: "assessing completeness, accuracy, and clarity of research output",
			Context:   ctx,
			Task:      "Audit the synthesized answer for the query. Assess completeness, accuracy, and clarity.",
			Constraints: []string{
				"end your response with a line of the form SCORE: <0.0-1.0>",
				"justify the score in two or three sentences",
			},
		}
	}

	return PromptTemplate{
		Role:    w.spec.Name,
		Context: ctx,
		Task:    "Answer the query as well as you can.",
	}
}

// Synthesizer produces the final report from collected findings. It calls
// the model directly; the coordinator degrades to a plain concatenation of
// findings when synthesis fails.
type Synthesizer struct {
	gen     llm.Generator
	model   string
	timeout time.Duration
}

// NewSynthesizer creates a Synthesizer using the given model (empty for the
// generator's default).
func NewSynthesizer(gen llm.Generator, model string) *Synthesizer {
	return &Synthesizer{gen: gen, model: model, timeout: DefaultTimeout}
}

// Synthesize renders the findings into a synthesis prompt and streams the
// final report.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, findings map[string]string, onChunk func(llm.Chunk)) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tmpl := PromptTemplate{
		Role:      "the Principal Synthesizer",
		Expertise: "information synthesis and report generation",
		Context:   findings,
		Task:      "Synthesize the findings above into a single coherent answer to the query.",
		Constraints: []string{
			"integrate all findings, resolving contradictions explicitly",
			"do not introduce claims absent from the findings",
			"write for a reader who has not seen the findings",
		},
	}

	res, err := s.gen.Generate(ctx, llm.GenerateRequest{
		Model:       s.model,
		Prompt:      tmpl.Render(query),
		Temperature: OptimalTemperature(models.RolePrincipal, 0, -1),
	}, onChunk)
	if err != nil {
		return "", 0, err
	}
	return CleanResponse(res.Text), res.Tokens, nil
}

// ParseAnalysis extracts the principal's structured analysis from a raw
// response. Worker names are normalized to canonical registry names.
func ParseAnalysis(text string) (*models.Analysis, error) {
	frag := ExtractJSON(text)
	if frag == "" {
		return nil, fmt.Errorf("no JSON object in analysis response")
	}
	var a models.Analysis
	if err := json.Unmarshal([]byte(frag), &a); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	for i, name := range a.AgentsNeeded {
		a.AgentsNeeded[i] = CanonicalName(name)
	}
	return &a, nil
}

// displayNames maps human-readable worker titles, which models sometimes
// emit despite instructions, back to canonical names.
var displayNames = map[string]string{
	"principal synthesizer": models.WorkerPrincipal,
	"domain specialist":     models.WorkerSpecialist,
	"web harvester":         models.WorkerHarvester,
	"fact validator":        models.WorkerValidator,
	"quality auditor":       models.WorkerAuditor,
}

// CanonicalName normalizes a worker name emitted by a model.
func CanonicalName(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := displayNames[trimmed]; ok {
		return canonical
	}
	return strings.ReplaceAll(trimmed, " ", "-")
}

var scoreRe = regexp.MustCompile(`(?i)SCORE:\s*([0-9]*\.?[0-9]+)`)

// ParseScore extracts the auditor's quality score. Returns false when no
// score line is present; values are clamped to [0,1].
func ParseScore(text string) (float64, bool) {
	m := scoreRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if score > 1 {
		// Models occasionally score on a 0-10 scale.
		if score <= 10 {
			score /= 10
		} else {
			score = 1
		}
	}
	if score < 0 {
		score = 0
	}
	return score, true
}
