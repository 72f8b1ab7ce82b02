// Package tui renders the terminal dashboard. It depends only on the shape
// of StatsSnapshot and pulls a fresh copy on every tick.
package tui

import (
	"context"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const tickInterval = time.Second

// tickMsg carries the refreshed snapshot.
type tickMsg model.StatsSnapshot

// Model is the top-level Bubble Tea model.
type Model struct {
	source  model.SnapshotSource
	snap    model.StatsSnapshot
	spinner spinner.Model
	width   int
	height  int
}

// NewModel builds the dashboard over a snapshot source.
func NewModel(source model.SnapshotSource) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle
	return &Model{source: source, spinner: sp}
}

// Run starts the Bubble Tea program and blocks until quit or context
// cancellation (shutdown signal).
func Run(ctx context.Context, source model.SnapshotSource) error {
	p := tea.NewProgram(NewModel(source), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil // cooperative shutdown, not a TUI failure
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.spinner.Tick)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return tickMsg(m.source.Snapshot())
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = model.StatsSnapshot(msg)
		return m, m.tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	if m.width <= 0 {
		return "starting netwatch..."
	}
	return m.render()
}
