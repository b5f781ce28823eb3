// Package llm provides the model execution collaborator: a narrow streaming
// text-generation contract and its Anthropic-backed implementation.
package llm

import "context"

// GenerateRequest describes one generation call.
type GenerateRequest struct {
	// Model overrides the client's configured model when non-empty.
	Model string
	// System is the system prompt, may be empty.
	System string
	// Prompt is the user-facing input text.
	Prompt string
	// Temperature is the sampling temperature in [0,1].
	Temperature float64
	// MaxTokens caps the output length. Zero means the client default.
	MaxTokens int64
}

// Chunk is one incremental piece of streamed output.
type Chunk struct {
	// Text is the incremental text delta.
	Text string
	// Tokens is the running approximate token count of the output so far.
	Tokens int
}

// GenerateResult is the completed output of a generation call.
type GenerateResult struct {
	// Text is the full generated output.
	Text string
	// Tokens is the approximate output token count.
	Tokens int
	// InputTokens and OutputTokens are the provider-reported usage.
	InputTokens  int64
	OutputTokens int64
}

// Generator is the contract the coordination core requires from a
// model-serving backend: accept free-form input with sampling options,
// stream incremental chunks, and signal completion by returning. Failures
// surface as error values; the resilience wrapper classifies them.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, onChunk func(Chunk)) (GenerateResult, error)
}
