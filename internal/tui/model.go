package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ticketloop/programmator/internal/domain"
	"github.com/ticketloop/programmator/internal/event"
	"github.com/ticketloop/programmator/internal/git"
	"github.com/ticketloop/programmator/internal/loop"
	"github.com/ticketloop/programmator/internal/safety"
)

type runState int

const (
	stateRunning runState = iota
	statePaused
	stateStopping
	stateStopped
	stateComplete
)

const (
	maxEvents  = 12000
	keepEvents = 10000
)

// Controller is the part of the loop the keyboard drives.
type Controller interface {
	TogglePause() bool
	Stop()
}

// Model is the bubbletea model for the TUI.
type Model struct {
	ticket       *domain.Ticket
	state        *safety.State
	config       safety.Config
	filesChanged []string
	events       []event.Event
	logViewport  viewport.Model
	spinner      spinner.Model
	width        int
	height       int
	runState     runState
	loop         Controller
	ready        bool
	result       *loop.Result
	err          error
	renderer     *glamour.TermRenderer
	startedAt    time.Time
	workingDir   string
	logPath      string
	git          *git.Info
	claudePID    int
	claudeFlags  string
}

// NewModel creates a new Model with the given safety config.
func NewModel(config safety.Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		state:       safety.NewState(),
		config:      config,
		spinner:     s,
		runState:    stateRunning,
		startedAt:   time.Now(),
		claudeFlags: config.ClaudeFlags,
	}
}

// SetLoop sets the loop instance the keyboard controls.
func (m *Model) SetLoop(l Controller) {
	m.loop = l
}

// StateMsg carries a loop snapshot.
type StateMsg struct {
	Snapshot loop.Snapshot
}

// EventMsg carries a typed event from the loop.
type EventMsg struct {
	Event event.Event
}

// ProcessMsg reports the running agent PID; 0 once it has exited.
type ProcessMsg struct {
	PID int
}

// LoopDoneMsg signals the loop has finished.
type LoopDoneMsg struct {
	Result *loop.Result
	Err    error
}

type rendererReadyMsg struct {
	renderer *glamour.TermRenderer
}
