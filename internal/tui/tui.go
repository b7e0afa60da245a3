// Package tui implements the terminal user interface using bubbletea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ticketloop/programmator/internal/debug"
	"github.com/ticketloop/programmator/internal/event"
	"github.com/ticketloop/programmator/internal/git"
	"github.com/ticketloop/programmator/internal/loop"
	"github.com/ticketloop/programmator/internal/safety"
)

// Runner is the loop the TUI drives.
type Runner interface {
	Controller
	Run(ctx context.Context, ticketID string) (*loop.Result, error)
}

// TUI runs a loop behind a full-screen bubbletea program. Loop output reaches
// the program through the handlers returned by LoopOptions.
type TUI struct {
	program *tea.Program
	model   Model
	notice  io.Writer
	opts    []tea.ProgramOption
}

func New(config safety.Config) *TUI {
	return &TUI{
		model:  NewModel(config),
		notice: io.Discard,
		opts:   []tea.ProgramOption{tea.WithAltScreen()},
	}
}

// SetWorkingDir shows dir in the environment section.
func (t *TUI) SetWorkingDir(dir string) {
	t.model.workingDir = dir
}

// SetGitInfo shows the branch in the environment section.
func (t *TUI) SetGitInfo(info git.Info) {
	t.model.git = &info
}

// SetLogPath shows the progress log location.
func (t *TUI) SetLogPath(path string) {
	t.model.logPath = path
}

// SetNoticeWriter receives messages printed after the screen is torn down.
func (t *TUI) SetNoticeWriter(w io.Writer) {
	t.notice = w
}

// LoopOptions returns the loop options that feed events, snapshots and the
// agent PID into the program.
func (t *TUI) LoopOptions() []loop.Option {
	return []loop.Option{
		loop.WithEventHandler(func(ev event.Event) {
			t.send(EventMsg{Event: ev})
		}),
		loop.WithStateHandler(func(s loop.Snapshot) {
			t.send(StateMsg{Snapshot: s})
		}),
		loop.WithProcessHandlers(
			func(pid int) { t.send(ProcessMsg{PID: pid}) },
			func() { t.send(ProcessMsg{}) },
		),
	}
}

func (t *TUI) send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Run starts the program and the loop. Quitting the program stops the loop
// cooperatively and waits for it to finish its current iteration.
func (t *TUI) Run(ctx context.Context, r Runner, ticketID string) (*loop.Result, error) {
	t.model.SetLoop(r)
	t.program = tea.NewProgram(t.model, append(t.opts, tea.WithContext(ctx))...)

	done := make(chan LoopDoneMsg, 1)
	go func() {
		result, err := r.Run(ctx, ticketID)
		msg := LoopDoneMsg{Result: result, Err: err}
		done <- msg
		t.program.Send(msg)
	}()

	_, err := t.program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		debug.Logf("tui: program exited: %v", err)
		r.Stop()
	}

	select {
	case msg := <-done:
		return msg.Result, msg.Err
	default:
	}

	fmt.Fprintln(t.notice, "Waiting for the current iteration to finish (interrupt again to abort)...")
	msg := <-done
	return msg.Result, msg.Err
}
