package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/cache"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/config"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/llm"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/memory"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/orchestrator"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/tui"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/worker"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

var (
	researchMode     string
	researchModel    string
	researchTUI      bool
	researchNoMemory bool
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run a research query through the worker collective",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResearch,
}

func init() {
	researchCmd.Flags().StringVarP(&researchMode, "mode", "m", "", "worker selection mode: auto, simple, or expert")
	researchCmd.Flags().StringVar(&researchModel, "model", "", "override the configured model")
	researchCmd.Flags().BoolVar(&researchTUI, "tui", false, "show a live progress view")
	researchCmd.Flags().BoolVar(&researchNoMemory, "no-memory", false, "disable the durable interaction store")
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	modeStr := researchMode
	if modeStr == "" {
		modeStr = cfg.Defaults.Mode
	}
	mode := models.ParseMode(modeStr)
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q (want auto, simple, or expert)", modeStr)
	}

	coord, store, err := buildCoordinator(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Config edits during a run retune retry and breaker settings live.
	go config.Watch(ctx, func(c *config.Config) {
		coord.ApplyResilience(c.Resilience.Retries, c.Resilience.BreakerThreshold, c.Resilience.BreakerReset)
	})

	if researchTUI {
		return researchWithTUI(ctx, coord, query, mode, cfg.TUI.RefreshRate)
	}
	return researchPlain(ctx, coord, query, mode)
}

// buildCoordinator wires the full stack: model client, worker roster, result
// cache, and interaction store. The returned store is nil when memory is
// disabled; the caller owns closing it.
func buildCoordinator(cfg *config.Config) (*orchestrator.Coordinator, *memory.Store, error) {
	model := researchModel
	if model == "" {
		model = cfg.Defaults.Model
	}

	apiKey, err := config.GetAPIKey(cfg)
	if err != nil && !cfg.Anthropic.UseBedrock {
		return nil, nil, err
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Model:         model,
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, nil, err
	}

	specs, err := config.LoadWorkerSpecs("")
	if err != nil {
		return nil, nil, err
	}
	if specs == nil {
		specs = worker.DefaultSpecs()
	}
	var workerOpts []worker.Option
	if cfg.Defaults.WorkerTimeout > 0 {
		workerOpts = append(workerOpts, worker.WithTimeout(cfg.Defaults.WorkerTimeout))
	}
	reg, err := worker.NewRoster(specs, client, workerOpts...)
	if err != nil {
		return nil, nil, err
	}

	var store *memory.Store
	if !researchNoMemory {
		dbPath := cfg.Memory.DBPath
		if dbPath == "" {
			dbPath = memory.DefaultDBPath()
		}
		store, err = memory.NewStore(dbPath)
		if err != nil {
			// Memory is a best-effort accelerator; run without it.
			log.Printf("[localmind] interaction store unavailable: %v", err)
			store = nil
		}
	}

	resultCache := cache.New(
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithSimilarityThreshold(cfg.Cache.SimilarityThreshold),
	)

	coord := orchestrator.New(reg, worker.NewSynthesizer(client, model), resultCache, store)
	coord.ApplyResilience(cfg.Resilience.Retries, cfg.Resilience.BreakerThreshold, cfg.Resilience.BreakerReset)
	return coord, store, nil
}

func researchPlain(ctx context.Context, coord *orchestrator.Coordinator, query string, mode models.Mode) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	result, err := coord.Research(ctx, query, mode, func(ev orchestrator.Event) {
		switch ev.Type {
		case orchestrator.EventAgentStart:
			cyan.Printf("> %s working...\n", ev.Worker)
		case orchestrator.EventAgentComplete:
			green.Printf("+ %s done\n", ev.Worker)
		case orchestrator.EventAgentError:
			red.Printf("x %s degraded (%s)\n", ev.Worker, ev.Content)
		case orchestrator.EventCacheHit:
			yellow.Println("= served from cache")
		}
	})
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

// startResearch runs the research in the background, forwarding events to
// send. The result is buffered on the returned channel before the DoneMsg
// goes out, so a reader woken by DoneMsg never races the goroutine.
func startResearch(ctx context.Context, coord *orchestrator.Coordinator, query string, mode models.Mode, send func(tea.Msg)) <-chan *models.ResearchResult {
	results := make(chan *models.ResearchResult, 1)
	go func() {
		result, err := coord.Research(ctx, query, mode, func(ev orchestrator.Event) {
			send(tui.EventMsg(ev))
		})
		results <- result

		done := tui.DoneMsg{Err: err}
		if result != nil {
			done.Synthesis = result.Synthesis
		}
		send(done)
	}()
	return results
}

func researchWithTUI(ctx context.Context, coord *orchestrator.Coordinator, query string, mode models.Mode, refresh time.Duration) error {
	// Log output corrupts the TUI display.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewModel(query, refresh))
	results := startResearch(ctx, coord, query, mode, func(msg tea.Msg) { program.Send(msg) })

	if _, err := program.Run(); err != nil {
		return err
	}
	log.SetOutput(originalOutput)

	// Aborting the view cancels the run; only a finished run has a footer.
	select {
	case result := <-results:
		if result != nil {
			printResultFooter(result)
		}
	default:
	}
	return nil
}

func printResult(r *models.ResearchResult) {
	bold := color.New(color.Bold)

	fmt.Println()
	bold.Println("Synthesis")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Println(r.Synthesis)
	printResultFooter(r)
}

func printResultFooter(r *models.ResearchResult) {
	dim := color.New(color.Faint)

	fmt.Println()
	if r.QualityScore != nil {
		fmt.Printf("Quality score: %.2f\n", *r.QualityScore)
	}
	degraded := 0
	for _, f := range r.Findings {
		if f.Degraded {
			degraded++
		}
	}
	if degraded > 0 {
		color.New(color.FgYellow).Printf("Degraded findings: %d of %d\n", degraded, len(r.Findings))
	}
	dim.Printf("run %s | mode %s | agents %s | %s | ~%d tokens",
		r.RunID, r.Mode, strings.Join(r.AgentsUsed, ", "),
		r.ExecutionTime.Round(time.Millisecond), r.TotalTokens())
	if r.FromCache {
		dim.Print(" | cache hit")
	}
	dim.Println()
}
