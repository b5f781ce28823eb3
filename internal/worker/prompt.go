package worker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/textsim"
)

// PromptTemplate renders a structured prompt with tagged sections. Models
// follow sectioned prompts far more reliably than free-form instructions,
// so every builtin worker builds its input through one of these.
type PromptTemplate struct {
	// Role describes who the model is acting as.
	Role string
	// Expertise is a one-line description of the role's specialty.
	Expertise string
	// Context holds key/value background facts rendered in the context section.
	Context map[string]string
	// Task is the instruction for this execution.
	Task string
	// Constraints lists requirements the response must honor.
	Constraints []string
	// Examples holds optional few-shot demonstrations.
	Examples []Example
	// OutputFormat, when set, pins the expected response shape.
	OutputFormat string
}

// Example is one few-shot demonstration.
type Example struct {
	Query    string
	Response string
}

// Render produces the final prompt text for a query.
func (t PromptTemplate) Render(query string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<role>\nYou are %s, part of the LocalMind Collective multi-agent system.\n", t.Role)
	if t.Expertise != "" {
		fmt.Fprintf(&b, "Your expertise: %s\n", t.Expertise)
	}
	fmt.Fprintf(&b, "Current date: %s\n</role>\n", time.Now().Format("January 2, 2006"))

	if len(t.Context) > 0 {
		b.WriteString("\n<context>\n")
		keys := make([]string, 0, len(t.Context))
		for k := range t.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, t.Context[k])
		}
		b.WriteString("</context>\n")
	}

	fmt.Fprintf(&b, "\n<task>\n%s\n</task>\n", t.Task)

	if len(t.Constraints) > 0 {
		b.WriteString("\n<constraints>\n")
		for _, c := range t.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("</constraints>\n")
	}

	if len(t.Examples) > 0 {
		b.WriteString("\n<examples>\n")
		for i, ex := range t.Examples {
			fmt.Fprintf(&b, "Example %d:\nQuery: %s\nResponse: %s\n\n", i+1, ex.Query, ex.Response)
		}
		b.WriteString("</examples>\n")
	}

	if query != "" {
		fmt.Fprintf(&b, "\n<query>\n%s\n</query>\n", query)
	}

	if t.OutputFormat != "" {
		fmt.Fprintf(&b, "\n<output_format>\n%s\n</output_format>\n", t.OutputFormat)
	}

	return b.String()
}

// SelectExamples ranks a pool of few-shot examples by token overlap with
// the query and returns the top max. Examples with no overlap are dropped.
func SelectExamples(query string, pool []Example, max int) []Example {
	if max <= 0 || len(pool) == 0 {
		return nil
	}

	probe := textsim.Tokens(query)
	type scored struct {
		ex    Example
		score float64
	}
	var ranked []scored
	for _, ex := range pool {
		score := textsim.JaccardSets(probe, textsim.Tokens(ex.Query))
		if score > 0 {
			ranked = append(ranked, scored{ex, score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]Example, len(ranked))
	for i, r := range ranked {
		out[i] = r.ex
	}
	return out
}
