package main

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/cache"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/llm"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/orchestrator"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/tui"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/worker"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

// cannedGen answers every request immediately with fixed text.
type cannedGen struct{}

func (cannedGen) Generate(ctx context.Context, req llm.GenerateRequest, onChunk func(llm.Chunk)) (llm.GenerateResult, error) {
	return llm.GenerateResult{Text: "finding", Tokens: 1}, nil
}

func TestStartResearchBuffersResultBeforeDone(t *testing.T) {
	reg, err := worker.NewRoster(worker.DefaultSpecs(), cannedGen{})
	if err != nil {
		t.Fatalf("roster failed: %v", err)
	}
	coord := orchestrator.New(reg, worker.NewSynthesizer(cannedGen{}, ""), cache.New(), nil)

	done := make(chan struct{})
	results := startResearch(context.Background(), coord, "q", models.ModeSimple, func(msg tea.Msg) {
		if _, ok := msg.(tui.DoneMsg); ok {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("research did not finish")
	}

	// The view reads the channel non-blocking after it sees DoneMsg; the
	// result must already be there by then.
	select {
	case result := <-results:
		if result == nil {
			t.Fatal("expected a result")
		}
		if result.Synthesis == "" {
			t.Error("expected a synthesis")
		}
	default:
		t.Fatal("result not buffered before the done message was sent")
	}
}
