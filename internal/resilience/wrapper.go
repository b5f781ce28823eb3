package resilience

import (
	"context"
	"errors"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/llm"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/worker"
)

const (
	// DefaultRetries is the number of execution attempts per call.
	DefaultRetries = 3
	// DefaultTimeoutMultiplier grows the attempt timeout on each retry.
	DefaultTimeoutMultiplier = 1.5
	// recentOutcomes bounds the outcome history used for temperature
	// adaptation on retries.
	recentOutcomes = 10
)

// retryNotices escalate across attempts. Index is attempt-1 for attempts
// past the first; attempts beyond the table reuse the last notice.
var retryNotices = []string{
	"(Note: the previous attempt may have failed. Please ensure your response follows the exact format specified.)",
	"(Important: this is a retry attempt. Carefully follow all instructions and format requirements.)",
	"(CRITICAL: final attempt. Provide a properly formatted response according to the specifications.)",
}

// Result is the outcome of a wrapped execution. A result is always produced;
// Degraded marks fallback or salvaged output and DegradedReason says why.
type Result struct {
	// Text is the worker output, a salvaged fragment, or a canned fallback.
	Text string
	// Tokens is the approximate output token count, zero for fallbacks.
	Tokens int
	// Attempts is the number of execution attempts made.
	Attempts int
	// Degraded is true when Text is not a validated first-class response.
	Degraded bool
	// DegradedReason is one of the Reason constants when Degraded is true.
	DegradedReason string
}

// Wrapper adds retry, validation, circuit breaking, and fallback behavior
// around one worker. One wrapper per worker; the breaker state persists
// across requests.
type Wrapper struct {
	unit       worker.Worker
	breaker    *Breaker
	multiplier float64

	mu       sync.Mutex
	retries  int
	outcomes []bool

	// sleep is replaceable for tests. It must respect ctx cancellation.
	sleep func(ctx context.Context, d time.Duration)
}

// Wrap creates a resilience wrapper around a worker with its own breaker.
func Wrap(unit worker.Worker) *Wrapper {
	return &Wrapper{
		unit:       unit,
		breaker:    NewBreaker(unit.Name()),
		retries:    DefaultRetries,
		multiplier: DefaultTimeoutMultiplier,
		sleep:      sleepCtx,
	}
}

// Breaker exposes the wrapper's circuit breaker, mainly for health reporting.
func (w *Wrapper) Breaker() *Breaker {
	return w.breaker
}

// SetRetries adjusts the attempt budget for subsequent executions.
// Non-positive values are ignored.
func (w *Wrapper) SetRetries(n int) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	w.retries = n
	w.mu.Unlock()
}

func (w *Wrapper) attemptBudget() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retries
}

// recordOutcome folds one execution outcome into the recent history that
// drives temperature adaptation.
func (w *Wrapper) recordOutcome(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes = append(w.outcomes, ok)
	if len(w.outcomes) > recentOutcomes {
		w.outcomes = w.outcomes[len(w.outcomes)-recentOutcomes:]
	}
}

// successRate returns the recent success rate, or -1 when there is no
// history yet.
func (w *Wrapper) successRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.outcomes) == 0 {
		return -1
	}
	n := 0
	for _, ok := range w.outcomes {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(w.outcomes))
}

// Execute runs the worker with up to the configured number of attempts.
// The attempt timeout grows by the multiplier each retry and retry attempts
// carry an escalating notice plus an adapted sampling temperature in their
// input (unless the caller pinned one). validate, when non-nil, can reject
// an output and force a retry; on the final attempt a rejected output is
// salvaged instead. Execute never returns an error.
func (w *Wrapper) Execute(ctx context.Context, in worker.Input, validate func(string) bool, onChunk func(llm.Chunk)) Result {
	name := w.unit.Name()

	if !w.breaker.Allow() {
		log.Printf("[resilience] circuit breaker open for %s, fast-failing", name)
		return Result{
			Text:           Fallback(name, w.unit.Role(), ReasonCircuitOpen),
			Degraded:       true,
			DegradedReason: ReasonCircuitOpen,
		}
	}

	base := w.unit.Timeout()
	if base <= 0 {
		base = worker.DefaultTimeout
	}
	retries := w.attemptBudget()

	for attempt := 0; attempt < retries; attempt++ {
		attemptIn := in
		if attempt > 0 {
			attemptIn.RetryNotice = retryNotice(attempt)
			if in.Temperature <= 0 {
				attemptIn.Temperature = worker.OptimalTemperature(w.unit.Role(), attempt, w.successRate())
			}
			log.Printf("[resilience] retry %d/%d for %s", attempt+1, retries, name)
		}

		timeout := time.Duration(float64(base) * math.Pow(w.multiplier, float64(attempt)))
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		out, err := w.unit.Run(attemptCtx, attemptIn, onChunk)
		cancel()

		if err != nil {
			reason := classify(err)
			log.Printf("[resilience] %s attempt %d failed (%s): %v", name, attempt+1, reason, err)
			w.breaker.RecordError()
			w.recordOutcome(false)

			if attempt < retries-1 {
				w.sleep(ctx, backoff(attempt))
				continue
			}
			return Result{
				Text:           Fallback(name, w.unit.Role(), reason),
				Attempts:       attempt + 1,
				Degraded:       true,
				DegradedReason: reason,
			}
		}

		if validate != nil && !validate(out.Text) {
			log.Printf("[resilience] validation failed for %s on attempt %d", name, attempt+1)
			w.breaker.RecordError()
			w.recordOutcome(false)
			if attempt < retries-1 {
				continue
			}
			return salvage(out, attempt+1)
		}

		w.breaker.RecordSuccess()
		w.recordOutcome(true)
		return Result{Text: out.Text, Tokens: out.Tokens, Attempts: attempt + 1}
	}

	return Result{
		Text:           Fallback(name, w.unit.Role(), ReasonMaxRetries),
		Attempts:       retries,
		Degraded:       true,
		DegradedReason: ReasonMaxRetries,
	}
}

// salvage recovers what it can from output that failed validation on the
// final attempt: a well-formed JSON fragment when one exists, otherwise the
// raw output tagged as suspect.
func salvage(out worker.Output, attempts int) Result {
	if frag := worker.ExtractJSON(out.Text); frag != "" {
		return Result{
			Text:           frag,
			Tokens:         out.Tokens,
			Attempts:       attempts,
			Degraded:       true,
			DegradedReason: ReasonValidation,
		}
	}
	return Result{
		Text:           "[Warning: response format validation failed]\n" + out.Text,
		Tokens:         out.Tokens,
		Attempts:       attempts,
		Degraded:       true,
		DegradedReason: ReasonValidation,
	}
}

func retryNotice(attempt int) string {
	idx := attempt - 1
	if idx >= len(retryNotices) {
		idx = len(retryNotices) - 1
	}
	return retryNotices[idx]
}

// backoff returns the exponential delay before the next attempt.
func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// classify maps an execution error to a degradation reason.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonError
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
