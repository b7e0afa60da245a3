package loop

import (
	"fmt"
	"strings"

	"github.com/ticketloop/programmator/internal/domain"
	"github.com/ticketloop/programmator/internal/parser"
	"github.com/ticketloop/programmator/internal/protocol"
	"github.com/ticketloop/programmator/internal/safety"
)

// Engine makes pure decisions about what the loop should do next.
// It holds no I/O references, only the immutable policy.
type Engine struct {
	SafetyConfig safety.Config
}

// DecideNext runs the completion check and the safety gate against a fresh
// ticket and the counters so far.
func (e *Engine) DecideNext(t *domain.Ticket, state *safety.State) Action {
	if t.AllPhasesComplete() {
		return Action{
			Kind:        ActionComplete,
			ExitReason:  safety.ExitReasonComplete,
			ExitMessage: "All phases complete",
			Note:        progressNote("Completed all phases in %d iterations", state.Iteration),
		}
	}

	check := safety.Check(e.SafetyConfig, state)
	if check.ShouldExit {
		return Action{
			Kind:        ActionExit,
			ExitReason:  check.Reason,
			ExitMessage: check.Message,
			Note:        errorNote("Safety exit after %d iters: %s", state.Iteration, check.Reason),
		}
	}

	return Action{Kind: ActionInvoke}
}

// ProcessStatus turns the report of cycle number `cycle` into notes and an
// exit decision.
func (e *Engine) ProcessStatus(status *parser.ParsedStatus, cycle int) StatusProcessResult {
	if status == nil {
		return StatusProcessResult{
			Missing:      true,
			FilesChanged: []string{},
			HistoryNote:  fmt.Sprintf("[iter %d] No status block returned", cycle),
			RecordError:  protocol.NoStatusBlockError,
		}
	}

	result := StatusProcessResult{
		Status:         status,
		PhaseCompleted: status.PhaseCompleted,
		FilesChanged:   status.FilesChanged,
		RecordError:    status.Error,
	}

	if status.PhaseCompleted != "" {
		result.HistoryNote = fmt.Sprintf("[iter %d] Completed: %s", cycle, status.PhaseCompleted)
		result.StoreNote = progressNote("[iter %d] Completed %s", cycle, status.PhaseCompleted)
	} else {
		result.HistoryNote = fmt.Sprintf("[iter %d] %s", cycle, status.Summary)
		result.StoreNote = progressNote("[iter %d] %s", cycle, status.Summary)
	}

	switch status.Status {
	case protocol.StatusDone:
		result.ShouldExit = true
		result.CloseTicket = true
		result.ExitReason = safety.ExitReasonComplete
		result.ExitMessage = "Agent reported DONE"
		result.ExitNote = progressNote("Completed in %d iterations", cycle)
	case protocol.StatusBlocked:
		result.ShouldExit = true
		result.ExitReason = safety.ExitReasonBlocked
		result.ExitMessage = status.Error
		result.ExitNote = errorNote("[iter %d] BLOCKED: %s", cycle, status.Error)
	}

	return result
}

// StopNote is persisted when the user stops the run.
func StopNote(iterations int) string {
	return progressNote("Stopped by user after %d iterations", iterations)
}

// FormatIterationSummary builds a one-line summary for the progress log.
func FormatIterationSummary(iteration int, summary string, filesChanged []string) string {
	s := fmt.Sprintf("[iter %d] %s", iteration, summary)
	if len(filesChanged) > 0 {
		s += fmt.Sprintf(" (files: %s)", strings.Join(filesChanged, ", "))
	} else {
		s += " (no files changed)"
	}
	return s
}

func progressNote(format string, args ...any) string {
	return protocol.NoteProgress + ": " + fmt.Sprintf(format, args...)
}

func errorNote(format string, args ...any) string {
	return protocol.NoteError + ": " + fmt.Sprintf(format, args...)
}
