// Package tui renders live progress for a remediation run.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lintmend/lintmend/internal/orchestrator"
	"github.com/lintmend/lintmend/internal/output"
)

// eventMsg carries one orchestrator event into the program.
type eventMsg orchestrator.Event

// doneMsg signals that the event stream closed and the run is over.
type doneMsg struct{}

type viewStyles struct {
	file  lipgloss.Style
	state lipgloss.Style
	ok    lipgloss.Style
	bad   lipgloss.Style
	muted lipgloss.Style
}

func newViewStyles() viewStyles {
	return viewStyles{
		file:  lipgloss.NewStyle().Bold(true),
		state: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Model displays the file in flight, its state, and running totals while
// a batch executes. It quits when the event channel closes.
type Model struct {
	spinner spinner.Model
	events  <-chan orchestrator.Event
	styles  viewStyles

	total   int
	width   int
	current string
	state   orchestrator.State
	detail  string

	seen     int
	fixed    int
	clean    int
	stopped  int
	fileDone bool
	done     bool
	quit     bool
}

// New builds a progress model over an orchestrator event stream. total is
// the number of candidate files in the batch.
func New(events <-chan orchestrator.Event, total int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	return Model{spinner: sp, events: events, total: total, styles: newViewStyles(), width: 80}
}

// Quit reports whether the user quit before the run finished.
func (m Model) Quit() bool { return m.quit }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// waitForEvent blocks for the next orchestrator event.
func waitForEvent(ch <-chan orchestrator.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quit = true
			m.done = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case eventMsg:
		m.apply(orchestrator.Event(msg))
		return m, waitForEvent(m.events)
	case doneMsg:
		m.closeFile()
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(ev orchestrator.Event) {
	if ev.File != m.current {
		m.closeFile()
		m.current = ev.File
		m.fileDone = false
		m.seen++
	}
	m.state = ev.State
	m.detail = ev.Detail
	if ev.State == orchestrator.StateDone {
		m.fileDone = true
		switch ev.Detail {
		case "committed":
			m.fixed++
		case "clean":
			m.clean++
		}
	}
}

// closeFile settles the previous file's tally. A file that never reached
// the done state stopped early: a test-gate failure or a processing error.
func (m *Model) closeFile() {
	if m.current != "" && !m.fileDone {
		m.stopped++
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.done {
		return m.summaryLine() + "\n"
	}

	name := m.current
	if max := m.width - 30; max > 10 {
		name = output.Truncate(name, max)
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(fmt.Sprintf(" %d/%d ", m.seen, m.total))
	b.WriteString(m.styles.file.Render(name))
	b.WriteString(" ")
	b.WriteString(m.styles.state.Render("[" + string(m.state) + "]"))
	if m.detail != "" {
		b.WriteString(" ")
		b.WriteString(m.styles.muted.Render(m.detail))
	}
	return b.String() + "\n" + m.summaryLine() + "\n"
}

func (m Model) summaryLine() string {
	parts := []string{
		m.styles.ok.Render(fmt.Sprintf("%d fixed", m.fixed)),
		m.styles.muted.Render(fmt.Sprintf("%d clean", m.clean)),
	}
	if m.stopped > 0 {
		parts = append(parts, m.styles.bad.Render(fmt.Sprintf("%d stopped", m.stopped)))
	}
	return "  " + strings.Join(parts, m.styles.muted.Render(" · "))
}
