package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketloop/programmator/internal/domain"
	"github.com/ticketloop/programmator/internal/parser"
	"github.com/ticketloop/programmator/internal/protocol"
	"github.com/ticketloop/programmator/internal/safety"
)

func newTestEngine() *Engine {
	return &Engine{
		SafetyConfig: safety.Config{
			MaxIterations:   50,
			StagnationLimit: 3,
			Timeout:         60,
		},
	}
}

func openTicket() *domain.Ticket {
	return &domain.Ticket{
		ID: "t-1",
		Phases: []domain.Phase{
			{Name: "A", Completed: true},
			{Name: "B"},
		},
	}
}

func TestProcessStatus(t *testing.T) {
	tests := []struct {
		name            string
		status          *parser.ParsedStatus
		wantHistory     string
		wantStore       string
		wantRecordError string
		wantExit        bool
		wantReason      safety.ExitReason
		wantClose       bool
		wantExitNote    string
	}{
		{
			name: "CONTINUE with completed phase",
			status: &parser.ParsedStatus{
				PhaseCompleted: "Phase 1",
				Status:         protocol.StatusContinue,
				FilesChanged:   []string{"main.go"},
				Summary:        "Did work",
			},
			wantHistory: "[iter 4] Completed: Phase 1",
			wantStore:   "progress: [iter 4] Completed Phase 1",
		},
		{
			name: "CONTINUE without phase",
			status: &parser.ParsedStatus{
				Status:  protocol.StatusContinue,
				Summary: "Still going",
			},
			wantHistory: "[iter 4] Still going",
			wantStore:   "progress: [iter 4] Still going",
		},
		{
			name:         "DONE",
			status:       &parser.ParsedStatus{Status: protocol.StatusDone, Summary: "All done"},
			wantHistory:  "[iter 4] All done",
			wantStore:    "progress: [iter 4] All done",
			wantExit:     true,
			wantReason:   safety.ExitReasonComplete,
			wantClose:    true,
			wantExitNote: "progress: Completed in 4 iterations",
		},
		{
			name: "BLOCKED",
			status: &parser.ParsedStatus{
				Status:  protocol.StatusBlocked,
				Summary: "Tried",
				Error:   "need credentials",
			},
			wantHistory:     "[iter 4] Tried",
			wantStore:       "progress: [iter 4] Tried",
			wantRecordError: "need credentials",
			wantExit:        true,
			wantReason:      safety.ExitReasonBlocked,
			wantExitNote:    "error: [iter 4] BLOCKED: need credentials",
		},
		{
			name: "CONTINUE with error keeps going",
			status: &parser.ParsedStatus{
				Status:  protocol.StatusContinue,
				Summary: "flaky",
				Error:   "tests flaky",
			},
			wantHistory:     "[iter 4] flaky",
			wantStore:       "progress: [iter 4] flaky",
			wantRecordError: "tests flaky",
		},
	}

	e := newTestEngine()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.ProcessStatus(tc.status, 4)

			assert.False(t, got.Missing)
			assert.Same(t, tc.status, got.Status)
			assert.Equal(t, tc.wantHistory, got.HistoryNote)
			assert.Equal(t, tc.wantStore, got.StoreNote)
			assert.Equal(t, tc.wantRecordError, got.RecordError)
			assert.Equal(t, tc.wantExit, got.ShouldExit)
			assert.Equal(t, tc.wantReason, got.ExitReason)
			assert.Equal(t, tc.wantClose, got.CloseTicket)
			assert.Equal(t, tc.wantExitNote, got.ExitNote)
		})
	}
}

func TestProcessStatus_Missing(t *testing.T) {
	got := newTestEngine().ProcessStatus(nil, 2)

	assert.True(t, got.Missing)
	assert.Equal(t, "[iter 2] No status block returned", got.HistoryNote)
	assert.Empty(t, got.StoreNote)
	assert.Equal(t, protocol.NoStatusBlockError, got.RecordError)
	assert.Empty(t, got.FilesChanged)
	assert.False(t, got.ShouldExit)
}

func TestDecideNext_Invoke(t *testing.T) {
	action := newTestEngine().DecideNext(openTicket(), safety.NewState())

	assert.Equal(t, ActionInvoke, action.Kind)
	assert.Empty(t, action.Note)
}

func TestDecideNext_AllPhasesComplete(t *testing.T) {
	tk := openTicket()
	tk.Phases[1].Completed = true
	state := safety.NewState()
	state.Iteration = 7

	action := newTestEngine().DecideNext(tk, state)

	assert.Equal(t, ActionComplete, action.Kind)
	assert.Equal(t, safety.ExitReasonComplete, action.ExitReason)
	assert.Equal(t, "progress: Completed all phases in 7 iterations", action.Note)
}

func TestDecideNext_NoPhasesIsComplete(t *testing.T) {
	action := newTestEngine().DecideNext(&domain.Ticket{ID: "t-2"}, safety.NewState())

	assert.Equal(t, ActionComplete, action.Kind)
}

func TestDecideNext_CompletionBeatsSafety(t *testing.T) {
	tk := openTicket()
	tk.Phases[1].Completed = true
	state := safety.NewState()
	state.Iteration = 50

	action := newTestEngine().DecideNext(tk, state)

	assert.Equal(t, ActionComplete, action.Kind)
}

func TestDecideNext_SafetyExits(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*safety.State)
		wantReason safety.ExitReason
		wantNote   string
	}{
		{
			name:       "max iterations",
			setup:      func(s *safety.State) { s.Iteration = 50 },
			wantReason: safety.ExitReasonMaxIterations,
			wantNote:   "error: Safety exit after 50 iters: max_iterations",
		},
		{
			name: "stagnation",
			setup: func(s *safety.State) {
				for range 3 {
					s.RecordIteration(nil, "")
				}
			},
			wantReason: safety.ExitReasonStagnation,
			wantNote:   "error: Safety exit after 3 iters: stagnation",
		},
		{
			name: "repeated error",
			setup: func(s *safety.State) {
				for range 3 {
					s.RecordIteration([]string{"a.go"}, "boom")
				}
			},
			wantReason: safety.ExitReasonBlocked,
			wantNote:   "error: Safety exit after 3 iters: blocked",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state := safety.NewState()
			tc.setup(state)

			action := newTestEngine().DecideNext(openTicket(), state)

			require.Equal(t, ActionExit, action.Kind)
			assert.Equal(t, tc.wantReason, action.ExitReason)
			assert.Equal(t, tc.wantNote, action.Note)
			assert.NotEmpty(t, action.ExitMessage)
		})
	}
}

func TestStopNote(t *testing.T) {
	assert.Equal(t, "progress: Stopped by user after 3 iterations", StopNote(3))
}

func TestFormatIterationSummary(t *testing.T) {
	assert.Equal(t, "[iter 1] did it (files: a.go, b.go)", FormatIterationSummary(1, "did it", []string{"a.go", "b.go"}))
	assert.Equal(t, "[iter 2] nothing (no files changed)", FormatIterationSummary(2, "nothing", nil))
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "invoke", ActionInvoke.String())
	assert.Equal(t, "complete", ActionComplete.String())
	assert.Equal(t, "exit", ActionExit.String())
	assert.Equal(t, "unknown", ActionKind(42).String())
}
