package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/ticketloop/programmator/internal/debug"
	"github.com/ticketloop/programmator/internal/event"
	"github.com/ticketloop/programmator/internal/safety"
)

func createRendererCmd(width int) tea.Cmd {
	return func() tea.Msg {
		viewportWidth := max(width-6, 40)
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(viewportWidth),
		)
		if err != nil {
			debug.Logf("tui: failed to create glamour renderer: %v", err)
		}
		return rendererReadyMsg{renderer: renderer}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.WindowSize())
}

func (m Model) finished() bool {
	return m.runState == stateStopped || m.runState == stateComplete
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg.String() {
	case "q", "ctrl+c":
		if m.loop != nil && !m.finished() {
			m.loop.Stop()
		}
		return m, tea.Quit

	case "p":
		if m.loop != nil && (m.runState == stateRunning || m.runState == statePaused) {
			if m.loop.TogglePause() {
				m.runState = statePaused
			} else {
				m.runState = stateRunning
			}
		}

	case "s":
		if m.loop != nil && !m.finished() && m.runState != stateStopping {
			m.loop.Stop()
			m.runState = stateStopping
		}

	case "up", "k", "down", "j", "pgup", "ctrl+u", "pgdown", "ctrl+d":
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		mainWidth := m.width - sidebarWidth(m.width) - 4
		contentHeight := m.height - 3
		viewportWidth := mainWidth - 4
		logHeight := contentHeight - 4

		if !m.ready {
			m.logViewport = viewport.New(viewportWidth, logHeight)
			m.logViewport.SetContent(m.renderEvents())
			m.ready = true
			cmds = append(cmds, createRendererCmd(mainWidth))
		} else {
			m.logViewport.Width = viewportWidth
			m.logViewport.Height = logHeight
			m.logViewport.SetContent(m.renderEvents())
		}

	case rendererReadyMsg:
		m.renderer = msg.renderer
		m.logViewport.SetContent(m.renderEvents())

	case StateMsg:
		m.ticket = msg.Snapshot.Ticket
		if msg.Snapshot.State != nil {
			m.state = msg.Snapshot.State
		}
		m.filesChanged = msg.Snapshot.FilesChanged

	case EventMsg:
		m.appendEvent(msg.Event)

	case ProcessMsg:
		m.claudePID = msg.PID

	case LoopDoneMsg:
		m.result = msg.Result
		m.err = msg.Err
		m.claudePID = 0
		if m.runState == stateStopping || (msg.Result != nil && msg.Result.ExitReason == safety.ExitReasonUserInterrupt) {
			m.runState = stateStopped
		} else {
			m.runState = stateComplete
		}
		if msg.Result != nil {
			exitText := fmt.Sprintf("Loop finished: %s", msg.Result.ExitReason)
			if msg.Result.ExitMessage != "" {
				exitText += fmt.Sprintf(" (%s)", msg.Result.ExitMessage)
			}
			m.appendEvent(event.Prog(exitText))
		}
		if msg.Err != nil {
			m.appendEvent(event.Warning(fmt.Sprintf("Loop error: %v", msg.Err)))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) appendEvent(ev event.Event) {
	m.events = append(m.events, ev)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-keepEvents:]
	}
	atBottom := m.logViewport.AtBottom()
	m.logViewport.SetContent(m.renderEvents())
	if atBottom {
		m.logViewport.GotoBottom()
	}
}
