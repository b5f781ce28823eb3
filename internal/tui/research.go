// Package tui renders a live view of a research run: one status line per
// worker with streamed token counts, then the final synthesis.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/orchestrator"
)

// agentState tracks one worker's progress for display.
type agentState struct {
	name    string
	status  string
	tokens  int
	order   int
	failed  bool
	skipped bool
}

// EventMsg wraps an orchestrator event for the bubbletea loop.
type EventMsg orchestrator.Event

// DoneMsg signals the run finished. Synthesis carries the final report.
type DoneMsg struct {
	Synthesis string
	Err       error
}

// Model is the bubbletea model for a research run.
type Model struct {
	query   string
	spin    spinner.Model
	agents  map[string]*agentState
	nextOrd int
	done    bool
	final   string
	err     error

	headerStyle  lipgloss.Style
	runningStyle lipgloss.Style
	doneStyle    lipgloss.Style
	failedStyle  lipgloss.Style
	tokensStyle  lipgloss.Style
}

// NewModel creates a research view for the given query. refresh sets the
// spinner frame interval; non-positive values keep the spinner's default.
func NewModel(query string, refresh time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if refresh > 0 {
		sp.Spinner.FPS = refresh
	}
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		query:  query,
		spin:   sp,
		agents: make(map[string]*agentState),

		headerStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		runningStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		failedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		tokensStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles events, keypresses, and spinner ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case EventMsg:
		m.apply(orchestrator.Event(msg))
		return m, nil
	case DoneMsg:
		m.done = true
		m.final = msg.Synthesis
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(ev orchestrator.Event) {
	if ev.Worker == "" {
		return
	}
	st, ok := m.agents[ev.Worker]
	if !ok {
		st = &agentState{name: ev.Worker, order: m.nextOrd}
		m.nextOrd++
		m.agents[ev.Worker] = st
	}

	switch ev.Type {
	case orchestrator.EventAgentStart:
		st.status = "running"
	case orchestrator.EventAgentStream:
		st.status = "running"
		st.tokens = ev.Tokens
	case orchestrator.EventAgentComplete:
		st.status = "done"
	case orchestrator.EventAgentError:
		st.status = "degraded: " + ev.Content
		st.failed = true
	case orchestrator.EventCacheHit:
		st.status = "cache hit"
	}
}

// View renders the current run state.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerStyle.Render("Researching: "+m.query) + "\n\n")

	names := make([]*agentState, 0, len(m.agents))
	for _, st := range m.agents {
		names = append(names, st)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].order < names[j].order })

	for _, st := range names {
		marker := m.spin.View()
		style := m.runningStyle
		switch {
		case st.failed:
			marker = "x"
			style = m.failedStyle
		case st.status == "done" || st.status == "cache hit":
			marker = "+"
			style = m.doneStyle
		}
		line := fmt.Sprintf("%s %-22s %s", marker, st.name, style.Render(st.status))
		if st.tokens > 0 {
			line += m.tokensStyle.Render(fmt.Sprintf("  %d tokens", st.tokens))
		}
		b.WriteString(line + "\n")
	}

	if m.done {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(m.failedStyle.Render("Error: "+m.err.Error()) + "\n")
		} else if m.final != "" {
			b.WriteString(m.headerStyle.Render("Synthesis") + "\n\n" + m.final + "\n")
		}
	} else {
		b.WriteString(m.tokensStyle.Render("\npress q to abort\n"))
	}

	return b.String()
}
