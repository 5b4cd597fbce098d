// Package monitor implements the optional read-only debug-monitor UI:
// a bubbletea program that renders execution-state snapshots pushed by
// the run loop, replacing the teacher's hand-rolled internal/ui/colorize
// package with the ecosystem TUI stack the rest of the pack favors.
package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ksherlock/MINIXCompat/internal/runloop"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// snapshotMsg wraps a runloop.Snapshot as a bubbletea message.
type snapshotMsg runloop.Snapshot

// waitForSnapshot returns a tea.Cmd that blocks on ch and wraps the next
// value as a message, the standard bubbletea channel-bridging idiom.
func waitForSnapshot(ch <-chan runloop.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return tea.Quit()
		}
		return snapshotMsg(snap)
	}
}

// Model is the bubbletea model for the monitor. It never touches
// core.Environment directly — only copies received over ch (spec §5's
// SPEC_FULL addition: single-threaded ownership of the core is
// preserved).
type Model struct {
	ch       <-chan runloop.Snapshot
	viewport viewport.Model
	latest   runloop.Snapshot
	ready    bool
}

// New constructs a Model that renders snapshots received from ch.
func New(ch <-chan runloop.Snapshot) Model {
	return Model{ch: ch}
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.ch)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case snapshotMsg:
		m.latest = runloop.Snapshot(msg)
		if m.ready {
			m.viewport.SetContent(render(m.latest))
		}
		return m, waitForSnapshot(m.ch)
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "starting monitor...\n"
	}
	return m.viewport.View()
}

func render(s runloop.Snapshot) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("minixcompat monitor") + "\n\n")
	fmt.Fprintf(&b, "%s %s    %s 0x%08x\n\n",
		labelStyle.Render("state"), s.State.String(),
		labelStyle.Render("pc"), s.PC)

	b.WriteString(labelStyle.Render("data registers") + "\n")
	for i, v := range s.D {
		fmt.Fprintf(&b, "  D%d=0x%08x", i, v)
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("address registers") + "\n")
	for i, v := range s.A {
		fmt.Fprintf(&b, "  A%d=0x%08x", i, v)
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("recent syscalls") + "\n")
	for _, c := range s.Recent {
		style := okStyle
		mark := "ok"
		if !c.OK {
			style = failStyle
			mark = "fail"
		}
		fmt.Fprintf(&b, "  call=%-3d %s\n", c.CallNo, style.Render(mark))
	}
	return b.String()
}

// Run starts the bubbletea program and blocks until it exits (the user
// pressed q/ctrl+c or the snapshot channel closed).
func Run(ch <-chan runloop.Snapshot) error {
	p := tea.NewProgram(New(ch))
	_, err := p.Run()
	return err
}
