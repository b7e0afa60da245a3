// Package loop implements the main orchestration loop: fetch the ticket,
// check the safety gate, invoke the agent, apply its status report, repeat.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ticketloop/programmator/internal/debug"
	"github.com/ticketloop/programmator/internal/domain"
	"github.com/ticketloop/programmator/internal/event"
	"github.com/ticketloop/programmator/internal/llm"
	"github.com/ticketloop/programmator/internal/parser"
	"github.com/ticketloop/programmator/internal/prompt"
	"github.com/ticketloop/programmator/internal/protocol"
	"github.com/ticketloop/programmator/internal/safety"
	"github.com/ticketloop/programmator/internal/ticket"
)

// DefaultPollInterval is how often a paused loop rechecks its flags.
const DefaultPollInterval = 100 * time.Millisecond

type Result struct {
	ExitReason  safety.ExitReason
	ExitMessage string
	Iterations  int
	// TotalFilesChanged lists distinct files in first-seen order.
	TotalFilesChanged []string
	FinalStatus       *parser.ParsedStatus
	Duration          time.Duration
}

// Snapshot is a copy of the loop state handed to the status sink.
type Snapshot struct {
	Ticket       *domain.Ticket
	State        *safety.State
	FilesChanged []string
}

// StateHandler receives a snapshot whenever the ticket, the safety state or
// the changed-files list changes.
type StateHandler func(Snapshot)

// ProgressLogger is the subset of progress.Logger the loop writes to.
type ProgressLogger interface {
	Printf(format string, args ...any)
	Errorf(format string, args ...any)
	Iteration(n, maxIter int, phase string)
	Status(status, summary string, filesChanged []string)
	PhaseComplete(phase string)
	Exit(reason, message string, iterations int, filesChanged []string)
}

type Loop struct {
	config  safety.Config
	engine  Engine
	client  ticket.Client
	invoker llm.Invoker
	builder *prompt.Builder

	workingDir   string
	streaming    bool
	extraFlags   []string
	onEvent      event.Handler
	onState      StateHandler
	progress     ProgressLogger
	pollInterval time.Duration
	onProcStart  func(pid int)
	onProcEnd    func()

	paused        atomic.Bool
	stopRequested atomic.Bool
	wake          chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithWorkingDir sets the directory the agent runs in.
func WithWorkingDir(dir string) Option {
	return func(l *Loop) { l.workingDir = dir }
}

// WithStreaming enables the agent's structured event stream.
func WithStreaming(on bool) Option {
	return func(l *Loop) { l.streaming = on }
}

// WithExtraFlags appends agent flags after the configured ones.
func WithExtraFlags(flags ...string) Option {
	return func(l *Loop) { l.extraFlags = append(l.extraFlags, flags...) }
}

// WithPromptBuilder replaces the embedded prompt template.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(l *Loop) { l.builder = b }
}

// WithEventHandler sets the raw output sink.
func WithEventHandler(h event.Handler) Option {
	return func(l *Loop) { l.onEvent = h }
}

// WithStateHandler sets the status snapshot sink.
func WithStateHandler(h StateHandler) Option {
	return func(l *Loop) { l.onState = h }
}

// WithProgressLogger mirrors the run into a persistent log.
func WithProgressLogger(p ProgressLogger) Option {
	return func(l *Loop) { l.progress = p }
}

// WithProcessHandlers reports the agent process lifecycle, e.g. for a PID display.
func WithProcessHandlers(onStart func(pid int), onEnd func()) Option {
	return func(l *Loop) {
		l.onProcStart = onStart
		l.onProcEnd = onEnd
	}
}

// WithPollInterval sets how often a paused loop checks for resume or stop.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

func New(config safety.Config, client ticket.Client, invoker llm.Invoker, opts ...Option) *Loop {
	l := &Loop{
		config:       config,
		engine:       Engine{SafetyConfig: config},
		client:       client,
		invoker:      invoker,
		pollInterval: DefaultPollInterval,
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.builder == nil {
		l.builder = prompt.Default()
	}
	return l
}

// Run drives ticketID until a terminal exit reason. A non-nil error means a
// ticket store operation or the agent launch failed.
func (l *Loop) Run(ctx context.Context, ticketID string) (*Result, error) {
	startTime := time.Now()
	state := safety.NewState()
	result := &Result{
		ExitReason:        safety.ExitReasonComplete,
		TotalFilesChanged: make([]string, 0),
	}
	defer func() { result.Duration = time.Since(startTime) }()

	t, err := l.client.Get(ticketID)
	if err != nil {
		return l.fail(result, state, fmt.Errorf("fetch ticket %s: %w", ticketID, err))
	}

	l.prog(fmt.Sprintf("Starting on ticket %s: %s", ticketID, t.Title))
	if err := l.client.SetStatus(ticketID, protocol.TicketInProgress); err != nil {
		return l.fail(result, state, fmt.Errorf("set ticket %s in progress: %w", ticketID, err))
	}
	t.Status = protocol.TicketInProgress

	var notes []string
	seen := make(map[string]struct{})
	l.emitState(t, state, result.TotalFilesChanged)

	for {
		if l.waitWhilePaused(ctx) {
			return l.stop(ticketID, result, state)
		}

		t, err = l.client.Get(ticketID)
		if err != nil {
			return l.fail(result, state, fmt.Errorf("fetch ticket %s: %w", ticketID, err))
		}
		l.emitState(t, state, result.TotalFilesChanged)

		action := l.engine.DecideNext(t, state)
		switch action.Kind {
		case ActionComplete:
			l.prog("All phases complete!")
			if err := l.client.SetStatus(ticketID, protocol.TicketClosed); err != nil {
				return l.fail(result, state, fmt.Errorf("close ticket %s: %w", ticketID, err))
			}
			if err := l.client.AddNote(ticketID, action.Note); err != nil {
				return l.fail(result, state, fmt.Errorf("add note to %s: %w", ticketID, err))
			}
			return l.finish(result, state, action.ExitReason, action.ExitMessage), nil
		case ActionExit:
			l.warn(fmt.Sprintf("Safety exit: %s", action.ExitMessage))
			if err := l.client.AddNote(ticketID, action.Note); err != nil {
				return l.fail(result, state, fmt.Errorf("add note to %s: %w", ticketID, err))
			}
			return l.finish(result, state, action.ExitReason, action.ExitMessage), nil
		}

		cycle := state.Iteration + 1
		phaseName := ""
		if p := t.CurrentPhase(); p != nil {
			phaseName = p.Name
		}
		l.emit(event.IterationSeparator(fmt.Sprintf("Iteration %d/%d", cycle, l.config.MaxIterations)))
		if l.progress != nil {
			l.progress.Iteration(cycle, l.config.MaxIterations, phaseName)
		}
		if phaseName != "" {
			l.prog(fmt.Sprintf("Current phase: %s", phaseName))
		}

		promptText, err := l.builder.Build(t, notes)
		if err != nil {
			return l.fail(result, state, err)
		}

		l.prog("Invoking Claude...")
		out, err := l.invoker.Invoke(ctx, promptText, l.invokeOptions())
		if err != nil {
			if ctx.Err() != nil {
				debug.Logf("loop: invocation interrupted: %v", err)
				return l.stop(ticketID, result, state)
			}
			return l.fail(result, state, fmt.Errorf("invoke agent: %w", err))
		}
		if out.TimedOut {
			l.warn(fmt.Sprintf("Claude timed out after %s", l.config.TimeoutDuration()))
		} else if out.ExitCode != 0 {
			l.warn(fmt.Sprintf("Claude exited with code %d", out.ExitCode))
		}

		status, parseErr := parser.Extract(out.Text)
		if errors.Is(parseErr, parser.ErrMalformedStatus) {
			debug.Logf("loop: %v", parseErr)
		}

		pr := l.engine.ProcessStatus(status, cycle)
		notes = append(notes, pr.HistoryNote)

		if pr.Missing {
			l.warn("No PROGRAMMATOR_STATUS found in output")
			state.RecordIteration(nil, pr.RecordError)
			l.emitState(t, state, result.TotalFilesChanged)
			continue
		}

		l.prog(fmt.Sprintf("Status: %s", status.Status))
		l.prog(fmt.Sprintf("Summary: %s", status.Summary))
		if l.progress != nil {
			l.progress.Status(status.Status.String(), status.Summary, status.FilesChanged)
		}
		result.FinalStatus = status

		if pr.PhaseCompleted != "" {
			l.prog(fmt.Sprintf("Phase completed: %s", pr.PhaseCompleted))
			if err := l.client.UpdatePhase(ticketID, pr.PhaseCompleted, true); err != nil {
				return l.fail(result, state, fmt.Errorf("update phase %q of %s: %w", pr.PhaseCompleted, ticketID, err))
			}
			if l.progress != nil {
				l.progress.PhaseComplete(pr.PhaseCompleted)
			}
		}
		if err := l.client.AddNote(ticketID, pr.StoreNote); err != nil {
			return l.fail(result, state, fmt.Errorf("add note to %s: %w", ticketID, err))
		}

		if len(pr.FilesChanged) > 0 {
			l.prog(fmt.Sprintf("Files changed: %s", strings.Join(pr.FilesChanged, ", ")))
			for _, f := range pr.FilesChanged {
				if _, ok := seen[f]; !ok {
					seen[f] = struct{}{}
					result.TotalFilesChanged = append(result.TotalFilesChanged, f)
				}
			}
		}

		state.RecordIteration(pr.FilesChanged, pr.RecordError)
		l.emitState(t, state, result.TotalFilesChanged)
		if l.progress != nil {
			l.progress.Printf("%s", FormatIterationSummary(cycle, status.Summary, pr.FilesChanged))
		}

		if !pr.ShouldExit {
			continue
		}
		if pr.CloseTicket {
			l.prog("Claude reported DONE")
			if err := l.client.SetStatus(ticketID, protocol.TicketClosed); err != nil {
				return l.fail(result, state, fmt.Errorf("close ticket %s: %w", ticketID, err))
			}
		} else {
			l.warn(fmt.Sprintf("Claude reported BLOCKED: %s", pr.ExitMessage))
		}
		if err := l.client.AddNote(ticketID, pr.ExitNote); err != nil {
			return l.fail(result, state, fmt.Errorf("add note to %s: %w", ticketID, err))
		}
		return l.finish(result, state, pr.ExitReason, pr.ExitMessage), nil
	}
}

func (l *Loop) invokeOptions() llm.InvokeOptions {
	opts := llm.InvokeOptions{
		WorkingDir: l.workingDir,
		Streaming:  l.streaming,
		ExtraFlags: append(strings.Fields(l.config.ClaudeFlags), l.extraFlags...),
		Timeout:    l.config.TimeoutDuration(),
		OnProcessStart: func(pid int) {
			debug.Logf("loop: claude started pid=%d", pid)
			if l.onProcStart != nil {
				l.onProcStart(pid)
			}
		},
		OnProcessEnd: func() {
			debug.Logf("loop: claude exited")
			if l.onProcEnd != nil {
				l.onProcEnd()
			}
		},
	}
	opts.OnOutput = func(text string) {
		if l.streaming {
			l.emit(event.Markdown(text))
		} else {
			l.emit(event.Output(text))
		}
	}
	return opts
}

// waitWhilePaused blocks while the loop is paused. It reports whether the
// run should stop, either by request or because ctx is done.
func (l *Loop) waitWhilePaused(ctx context.Context) bool {
	announced := false
	for {
		if l.stopRequested.Load() || ctx.Err() != nil {
			return true
		}
		if !l.paused.Load() {
			if announced {
				l.prog("Resumed")
			}
			return false
		}
		if !announced {
			l.prog("Paused")
			announced = true
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
		case <-l.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (l *Loop) stop(ticketID string, result *Result, state *safety.State) (*Result, error) {
	l.prog("Stop requested by user")
	if err := l.client.AddNote(ticketID, StopNote(state.Iteration)); err != nil {
		return l.fail(result, state, fmt.Errorf("add note to %s: %w", ticketID, err))
	}
	return l.finish(result, state, safety.ExitReasonUserInterrupt, "Stopped by user"), nil
}

func (l *Loop) finish(result *Result, state *safety.State, reason safety.ExitReason, message string) *Result {
	result.ExitReason = reason
	result.ExitMessage = message
	result.Iterations = state.Iteration
	if l.progress != nil {
		l.progress.Exit(reason.String(), message, result.Iterations, result.TotalFilesChanged)
	}
	return result
}

func (l *Loop) fail(result *Result, state *safety.State, err error) (*Result, error) {
	if l.progress != nil {
		l.progress.Errorf("%v", err)
	}
	l.finish(result, state, safety.ExitReasonError, err.Error())
	return result, err
}

// Stop asks the loop to exit at the next poll point. An in-flight agent
// invocation is not interrupted.
func (l *Loop) Stop() {
	l.stopRequested.Store(true)
	l.signal()
}

// IsStopping reports whether Stop was called.
func (l *Loop) IsStopping() bool {
	return l.stopRequested.Load()
}

// TogglePause flips the pause flag and returns the new value. The pause takes
// effect at the top of the next cycle.
func (l *Loop) TogglePause() bool {
	for {
		old := l.paused.Load()
		if l.paused.CompareAndSwap(old, !old) {
			if old {
				l.signal()
			}
			return !old
		}
	}
}

func (l *Loop) IsPaused() bool {
	return l.paused.Load()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) emit(e event.Event) {
	if l.onEvent != nil {
		l.onEvent(e)
	}
}

func (l *Loop) prog(message string) {
	l.emit(event.Prog(message))
	if l.progress != nil {
		l.progress.Printf("%s", message)
	}
}

func (l *Loop) warn(message string) {
	l.emit(event.Warning(message))
	if l.progress != nil {
		l.progress.Printf("Warning: %s", message)
	}
}

func (l *Loop) emitState(t *domain.Ticket, state *safety.State, files []string) {
	if l.onState == nil {
		return
	}
	l.onState(Snapshot{
		Ticket:       t.Clone(),
		State:        state.Clone(),
		FilesChanged: append([]string{}, files...),
	})
}

// FilesChangedList returns the distinct changed files of the run.
func (r *Result) FilesChangedList() []string {
	return r.TotalFilesChanged
}
