package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketloop/programmator/internal/domain"
	"github.com/ticketloop/programmator/internal/event"
	"github.com/ticketloop/programmator/internal/llm"
	"github.com/ticketloop/programmator/internal/progress"
	"github.com/ticketloop/programmator/internal/prompt"
	"github.com/ticketloop/programmator/internal/protocol"
	"github.com/ticketloop/programmator/internal/safety"
	"github.com/ticketloop/programmator/internal/ticket"
)

func testConfig() safety.Config {
	return safety.Config{
		MaxIterations:   10,
		StagnationLimit: 3,
		Timeout:         60,
	}
}

// statusBlock renders a report the way the agent is asked to.
func statusBlock(phase string, status protocol.Status, files []string, summary, errText string) string {
	var sb strings.Builder
	sb.WriteString("Working on it...\n\n")
	sb.WriteString(protocol.StatusBlockKey + ":\n")
	if phase != "" {
		fmt.Fprintf(&sb, "  phase_completed: %q\n", phase)
	} else {
		sb.WriteString("  phase_completed: null\n")
	}
	fmt.Fprintf(&sb, "  status: %s\n", status)
	if len(files) == 0 {
		sb.WriteString("  files_changed: []\n")
	} else {
		sb.WriteString("  files_changed:\n")
		for _, f := range files {
			fmt.Fprintf(&sb, "    - %s\n", f)
		}
	}
	fmt.Fprintf(&sb, "  summary: %q\n", summary)
	if errText != "" {
		fmt.Fprintf(&sb, "  error: %q\n", errText)
	}
	return sb.String()
}

type invokeCall struct {
	Prompt string
	Opts   llm.InvokeOptions
}

// scriptedInvoker returns its responses in order and repeats the last one.
type scriptedInvoker struct {
	mu        sync.Mutex
	responses []*llm.InvokeResult
	calls     []invokeCall
	hook      func(ctx context.Context, n int) error
}

func newScriptedInvoker(texts ...string) *scriptedInvoker {
	s := &scriptedInvoker{}
	for _, text := range texts {
		s.responses = append(s.responses, &llm.InvokeResult{Text: text})
	}
	return s
}

func (s *scriptedInvoker) Invoke(ctx context.Context, promptText string, opts llm.InvokeOptions) (*llm.InvokeResult, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, invokeCall{Prompt: promptText, Opts: opts})
	hook := s.hook
	var resp *llm.InvokeResult
	if len(s.responses) > 0 {
		resp = s.responses[min(n, len(s.responses)-1)]
	}
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return nil, err
		}
	}
	if opts.OnOutput != nil && resp != nil {
		opts.OnOutput(resp.Text)
	}
	return resp, nil
}

func (s *scriptedInvoker) Calls() []invokeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]invokeCall{}, s.calls...)
}

// ticketStore backs a MockClient with a mutable ticket so phase updates are
// visible on the next fetch.
func ticketStore(tk *domain.Ticket) *ticket.MockClient {
	var mu sync.Mutex
	m := ticket.NewMockClient()
	m.GetFunc = func(string) (*domain.Ticket, error) {
		mu.Lock()
		defer mu.Unlock()
		return tk.Clone(), nil
	}
	m.UpdatePhaseFunc = func(_, name string, completed bool) error {
		mu.Lock()
		defer mu.Unlock()
		for i := range tk.Phases {
			if tk.Phases[i].Name == name {
				tk.Phases[i].Completed = completed
				break
			}
		}
		return nil
	}
	return m
}

func twoPhaseTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:    "t-1",
		Title: "Add feature",
		Body:  "Do the thing",
		Phases: []domain.Phase{
			{Name: "A", Completed: true},
			{Name: "B"},
		},
	}
}

type recorder struct {
	mu        sync.Mutex
	events    []event.Event
	snapshots []Snapshot
}

func (r *recorder) onEvent(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) onState(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) texts(kind event.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Text)
		}
	}
	return out
}

func (r *recorder) lastSnapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

func TestRun_PhaseCompletedThenAllComplete(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("B", protocol.StatusContinue, []string{"main.go"}, "Implemented B", ""))
	rec := &recorder{}

	l := New(testConfig(), store, inv, WithEventHandler(rec.onEvent), WithStateHandler(rec.onState))
	result, err := l.Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonComplete, result.ExitReason)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, []string{"main.go"}, result.TotalFilesChanged)
	require.NotNil(t, result.FinalStatus)
	assert.Equal(t, "Implemented B", result.FinalStatus.Summary)

	assert.Equal(t, []ticket.PhaseUpdate{{ID: "t-1", PhaseName: "B", Completed: true}}, store.UpdatePhaseCalls)
	assert.Equal(t, []string{
		"progress: [iter 1] Completed B",
		"progress: Completed all phases in 1 iterations",
	}, store.Notes())
	assert.Equal(t, []string{protocol.TicketInProgress, protocol.TicketClosed}, store.Statuses())

	require.Len(t, inv.Calls(), 1)
	assert.Contains(t, inv.Calls()[0].Prompt, "**B**")
	assert.Contains(t, inv.Calls()[0].Prompt, "(No previous notes)")
	assert.Equal(t, []string{"Iteration 1/10"}, rec.texts(event.KindIterationSeparator))
}

func TestRun_ContinuesAfterPhaseUntilRefetch(t *testing.T) {
	tk := &domain.Ticket{ID: "t-1", Phases: []domain.Phase{{Name: "A", Completed: true}, {Name: "B"}, {Name: "C"}}}
	store := ticketStore(tk)
	inv := newScriptedInvoker(
		statusBlock("B", protocol.StatusContinue, []string{"b.go"}, "did B", ""),
		statusBlock("C", protocol.StatusContinue, []string{"c.go", "b.go"}, "did C", ""),
	)

	result, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonComplete, result.ExitReason)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, []string{"b.go", "c.go"}, result.TotalFilesChanged)

	calls := inv.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "**C**")
	assert.Contains(t, calls[1].Prompt, "- [iter 1] Completed: B")
}

func TestRun_NoStatusBlockContinues(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(
		"I did some thinking but forgot the block.",
		statusBlock("", protocol.StatusDone, []string{"x.go"}, "finished", ""),
	)
	rec := &recorder{}

	l := New(testConfig(), store, inv, WithEventHandler(rec.onEvent), WithStateHandler(rec.onState))
	result, err := l.Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonComplete, result.ExitReason)
	assert.Equal(t, 2, result.Iterations)
	assert.Empty(t, store.UpdatePhaseCalls)
	assert.Equal(t, []string{
		"progress: [iter 2] finished",
		"progress: Completed in 2 iterations",
	}, store.Notes())
	assert.Contains(t, rec.texts(event.KindWarning), "No PROGRAMMATOR_STATUS found in output")

	calls := inv.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "- [iter 1] No status block returned")

	var afterMissing *safety.State
	for _, s := range rec.snapshots {
		if s.State.Iteration == 1 {
			afterMissing = s.State
			break
		}
	}
	require.NotNil(t, afterMissing)
	assert.Equal(t, 1, afterMissing.ConsecutiveNoChanges)
	assert.Equal(t, protocol.NoStatusBlockError, afterMissing.LastError)
}

func TestRun_StagnationAfterMissingBlocks(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker("no block here")

	result, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonStagnation, result.ExitReason)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, []string{"error: Safety exit after 3 iters: stagnation"}, store.Notes())
	assert.Equal(t, []string{protocol.TicketInProgress}, store.Statuses())
}

func TestRun_Done(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusDone, []string{"a.go"}, "All done", ""))

	result, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonComplete, result.ExitReason)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, []string{protocol.TicketInProgress, protocol.TicketClosed}, store.Statuses())
	assert.Equal(t, []string{"progress: [iter 1] All done", "progress: Completed in 1 iterations"}, store.Notes())
}

func TestRun_BlockedLeavesTicketOpen(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusBlocked, nil, "Tried", "missing API key"))
	rec := &recorder{}

	result, err := New(testConfig(), store, inv, WithEventHandler(rec.onEvent)).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonBlocked, result.ExitReason)
	assert.Equal(t, "missing API key", result.ExitMessage)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, []string{protocol.TicketInProgress}, store.Statuses())
	assert.Equal(t, []string{"progress: [iter 1] Tried", "error: [iter 1] BLOCKED: missing API key"}, store.Notes())
	assert.Contains(t, rec.texts(event.KindWarning), "Claude reported BLOCKED: missing API key")
}

func TestRun_TimeoutBecomesBlocked(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := &scriptedInvoker{responses: []*llm.InvokeResult{{Text: llm.TimeoutBlockedStatus(), TimedOut: true, ExitCode: -1}}}
	rec := &recorder{}

	result, err := New(testConfig(), store, inv, WithEventHandler(rec.onEvent)).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonBlocked, result.ExitReason)
	assert.Equal(t, "progress: [iter 1] Timeout", store.Notes()[0])
	assert.Equal(t, "error: [iter 1] BLOCKED: Claude invocation timed out", store.Notes()[1])
	assert.Contains(t, rec.texts(event.KindWarning), "Claude timed out after 1m0s")
}

func TestRun_MaxIterations(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 2
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusContinue, []string{"a.go"}, "progress", ""))

	result, err := New(cfg, store, inv).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonMaxIterations, result.ExitReason)
	assert.Equal(t, "Max iterations (2) reached", result.ExitMessage)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, []string{"a.go"}, result.TotalFilesChanged)
	assert.Equal(t, "error: Safety exit after 2 iters: max_iterations", store.Notes()[len(store.Notes())-1])
}

func TestRun_RepeatedErrorBlocks(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusContinue, []string{"a.go"}, "retry", "tests fail"))

	result, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonBlocked, result.ExitReason)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, "Same error repeated 3 times: tests fail", result.ExitMessage)
}

func TestRun_AlreadyComplete(t *testing.T) {
	tk := twoPhaseTicket()
	tk.Phases[1].Completed = true
	store := ticketStore(tk)
	inv := newScriptedInvoker()

	result, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonComplete, result.ExitReason)
	assert.Equal(t, 0, result.Iterations)
	assert.Empty(t, inv.Calls())
	assert.Equal(t, []string{"progress: Completed all phases in 0 iterations"}, store.Notes())
}

func TestRun_StoreErrorsAreFatal(t *testing.T) {
	boom := errors.New("ticket: command failed")

	t.Run("initial fetch", func(t *testing.T) {
		store := ticket.NewMockClient()
		store.GetFunc = func(string) (*domain.Ticket, error) { return nil, boom }

		result, err := New(testConfig(), store, newScriptedInvoker()).Run(context.Background(), "t-1")
		require.ErrorIs(t, err, boom)
		assert.Equal(t, safety.ExitReasonError, result.ExitReason)
		assert.Contains(t, err.Error(), "fetch ticket t-1")
	})

	t.Run("set status", func(t *testing.T) {
		store := ticketStore(twoPhaseTicket())
		store.SetStatusFunc = func(string, string) error { return boom }

		_, err := New(testConfig(), store, newScriptedInvoker()).Run(context.Background(), "t-1")
		require.ErrorIs(t, err, boom)
	})

	t.Run("add note", func(t *testing.T) {
		store := ticketStore(twoPhaseTicket())
		store.AddNoteFunc = func(string, string) error { return boom }
		inv := newScriptedInvoker(statusBlock("", protocol.StatusContinue, []string{"a.go"}, "x", ""))

		result, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
		require.ErrorIs(t, err, boom)
		assert.Equal(t, safety.ExitReasonError, result.ExitReason)
		assert.Len(t, inv.Calls(), 1)
	})

	t.Run("update phase", func(t *testing.T) {
		store := ticketStore(twoPhaseTicket())
		store.UpdatePhaseFunc = func(string, string, bool) error { return boom }
		inv := newScriptedInvoker(statusBlock("B", protocol.StatusContinue, []string{"a.go"}, "x", ""))

		_, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), `update phase "B"`)
		assert.Empty(t, store.Notes())
	})
}

func TestRun_InvokeErrorIsFatal(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker()
	inv.hook = func(context.Context, int) error { return errors.New("start claude: not found") }

	result, err := New(testConfig(), store, inv).Run(context.Background(), "t-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoke agent")
	assert.Equal(t, safety.ExitReasonError, result.ExitReason)
}

func TestRun_ContextCancelDuringInvokeStops(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker()
	ctx, cancel := context.WithCancel(context.Background())
	inv.hook = func(ctx context.Context, _ int) error {
		cancel()
		<-ctx.Done()
		return fmt.Errorf("claude interrupted: %w", ctx.Err())
	}

	result, err := New(testConfig(), store, inv).Run(ctx, "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonUserInterrupt, result.ExitReason)
	assert.Equal(t, []string{"progress: Stopped by user after 0 iterations"}, store.Notes())
}

func TestRun_StopBeforeFirstCycle(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker()

	l := New(testConfig(), store, inv)
	l.Stop()
	assert.True(t, l.IsStopping())

	result, err := l.Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonUserInterrupt, result.ExitReason)
	assert.Empty(t, inv.Calls())
	assert.Equal(t, []string{"progress: Stopped by user after 0 iterations"}, store.Notes())
}

func TestRun_StopDuringInvocationFinishesCycle(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusContinue, []string{"a.go"}, "kept going", ""))
	var l *Loop
	inv.hook = func(context.Context, int) error {
		l.Stop()
		return nil
	}
	l = New(testConfig(), store, inv)

	result, err := l.Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonUserInterrupt, result.ExitReason)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, []string{
		"progress: [iter 1] kept going",
		"progress: Stopped by user after 1 iterations",
	}, store.Notes())
}

func TestRun_PauseBlocksWithoutConsumingIterations(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusDone, []string{"a.go"}, "done", ""))
	rec := &recorder{}

	l := New(testConfig(), store, inv, WithEventHandler(rec.onEvent), WithPollInterval(5*time.Millisecond))
	require.True(t, l.TogglePause())

	type runResult struct {
		result *Result
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		r, err := l.Run(context.Background(), "t-1")
		done <- runResult{r, err}
	}()

	require.Eventually(t, func() bool {
		for _, text := range rec.texts(event.KindProg) {
			if text == "Paused" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, inv.Calls())

	require.False(t, l.TogglePause())

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, safety.ExitReasonComplete, r.result.ExitReason)
		assert.Equal(t, 1, r.result.Iterations)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not resume")
	}
	assert.Contains(t, rec.texts(event.KindProg), "Resumed")
}

func TestRun_StopShortCircuitsPause(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker()

	l := New(testConfig(), store, inv, WithPollInterval(time.Hour))
	l.TogglePause()

	done := make(chan *Result, 1)
	go func() {
		r, _ := l.Run(context.Background(), "t-1")
		done <- r
	}()

	time.Sleep(20 * time.Millisecond)
	l.Stop()

	select {
	case r := <-done:
		assert.Equal(t, safety.ExitReasonUserInterrupt, r.ExitReason)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt the pause wait")
	}
	assert.Empty(t, inv.Calls())
}

func TestRun_InvokeOptions(t *testing.T) {
	cfg := testConfig()
	cfg.ClaudeFlags = "--dangerously-skip-permissions --model opus"
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusDone, nil, "done", ""))
	rec := &recorder{}

	l := New(cfg, store, inv,
		WithWorkingDir("/work"),
		WithStreaming(true),
		WithExtraFlags("--verbose-extra"),
		WithEventHandler(rec.onEvent),
	)
	_, err := l.Run(context.Background(), "t-1")
	require.NoError(t, err)

	opts := inv.Calls()[0].Opts
	assert.Equal(t, "/work", opts.WorkingDir)
	assert.True(t, opts.Streaming)
	assert.Equal(t, []string{"--dangerously-skip-permissions", "--model", "opus", "--verbose-extra"}, opts.ExtraFlags)
	assert.Equal(t, time.Minute, opts.Timeout)
	assert.Len(t, rec.texts(event.KindMarkdown), 1)
	assert.Empty(t, rec.texts(event.KindOutput))
}

func TestRun_TextModeEmitsOutputEvents(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusDone, nil, "done", ""))
	rec := &recorder{}

	_, err := New(testConfig(), store, inv, WithEventHandler(rec.onEvent)).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Len(t, rec.texts(event.KindOutput), 1)
	assert.Empty(t, rec.texts(event.KindMarkdown))
}

func TestRun_NonZeroExitWarns(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := &scriptedInvoker{responses: []*llm.InvokeResult{{
		Text:     statusBlock("", protocol.StatusDone, nil, "done anyway", ""),
		ExitCode: 2,
	}}}
	rec := &recorder{}

	result, err := New(testConfig(), store, inv, WithEventHandler(rec.onEvent)).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, safety.ExitReasonComplete, result.ExitReason)
	assert.Contains(t, rec.texts(event.KindWarning), "Claude exited with code 2")
}

func TestRun_SnapshotsAreCopies(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("B", protocol.StatusContinue, []string{"main.go"}, "did B", ""))
	rec := &recorder{}

	result, err := New(testConfig(), store, inv, WithStateHandler(rec.onState)).Run(context.Background(), "t-1")
	require.NoError(t, err)

	last := rec.lastSnapshot()
	assert.Equal(t, []string{"main.go"}, last.FilesChanged)
	assert.Equal(t, 1, last.State.Iteration)
	assert.Equal(t, protocol.TicketInProgress, rec.snapshots[0].Ticket.Status)

	last.FilesChanged[0] = "mutated.go"
	last.State.Iteration = 99
	last.Ticket.Phases[0].Name = "mutated"
	assert.Equal(t, []string{"main.go"}, result.TotalFilesChanged)
	assert.Equal(t, 1, result.Iterations)
	assert.NotEqual(t, "mutated", rec.snapshots[0].Ticket.Phases[0].Name)
}

func TestRun_CustomPromptBuilder(t *testing.T) {
	b, err := prompt.NewBuilder("ticket={{.ID}} phase={{.PhaseName}}")
	require.NoError(t, err)
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusDone, nil, "done", ""))

	_, err = New(testConfig(), store, inv, WithPromptBuilder(b)).Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, "ticket=t-1 phase=B", inv.Calls()[0].Prompt)
}

func TestRun_WritesProgressLog(t *testing.T) {
	logger, err := progress.NewLogger(progress.Config{LogsDir: t.TempDir(), TicketID: "t-1"})
	require.NoError(t, err)

	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("B", protocol.StatusContinue, []string{"main.go"}, "Implemented B", ""))

	_, err = New(testConfig(), store, inv, WithProgressLogger(logger)).Run(context.Background(), "t-1")
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "--- Iteration 1/10 ---")
	assert.Contains(t, content, "Phase: B")
	assert.Contains(t, content, "Status: CONTINUE")
	assert.Contains(t, content, "Phase completed: B")
	assert.Contains(t, content, "[iter 1] Implemented B (files: main.go)")
	assert.Contains(t, content, "Exit reason: complete")
	assert.Contains(t, content, "Iterations: 1")
}

func TestLoopPauseToggle(t *testing.T) {
	l := New(testConfig(), ticket.NewMockClient(), newScriptedInvoker())

	assert.False(t, l.IsPaused())
	assert.True(t, l.TogglePause())
	assert.True(t, l.IsPaused())
	assert.False(t, l.TogglePause())
	assert.False(t, l.IsPaused())
}

func TestRun_ProcessHandlers(t *testing.T) {
	store := ticketStore(twoPhaseTicket())
	inv := newScriptedInvoker(statusBlock("", protocol.StatusDone, nil, "done", ""))
	inv.hook = func(context.Context, int) error {
		opts := inv.Calls()[0].Opts
		opts.OnProcessStart(4242)
		opts.OnProcessEnd()
		return nil
	}

	var started []int
	ended := 0
	l := New(testConfig(), store, inv, WithProcessHandlers(
		func(pid int) { started = append(started, pid) },
		func() { ended++ },
	))
	_, err := l.Run(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, []int{4242}, started)
	assert.Equal(t, 1, ended)
}
