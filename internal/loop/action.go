// The engine is a pure state machine that decides the next step of the
// loop. It takes the fresh ticket, the safety counters and the parsed status
// report and returns values describing the side effects for Loop to perform.
package loop

import (
	"github.com/ticketloop/programmator/internal/parser"
	"github.com/ticketloop/programmator/internal/safety"
)

// ActionKind identifies the type of action the runner should execute.
type ActionKind int

const (
	// ActionInvoke tells the runner to build a prompt and invoke the agent.
	ActionInvoke ActionKind = iota
	// ActionComplete tells the runner that every phase is done.
	ActionComplete
	// ActionExit tells the runner to stop with the given reason.
	ActionExit
)

func (k ActionKind) String() string {
	switch k {
	case ActionInvoke:
		return "invoke"
	case ActionComplete:
		return "complete"
	case ActionExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Action is the instruction returned by the engine to the runner.
type Action struct {
	Kind ActionKind

	// Exit fields (ActionExit / ActionComplete)
	ExitReason  safety.ExitReason
	ExitMessage string
	// Note is persisted to the ticket before exiting.
	Note string
}

// StatusProcessResult holds the engine's decisions for one parsed status
// report. A nil report yields a result with Missing set.
type StatusProcessResult struct {
	Status         *parser.ParsedStatus
	Missing        bool
	PhaseCompleted string
	FilesChanged   []string

	// HistoryNote goes into the prompt history; StoreNote, when not empty,
	// is persisted to the ticket.
	HistoryNote string
	StoreNote   string

	// RecordError is the error text folded into the safety state.
	RecordError string

	ShouldExit  bool
	ExitReason  safety.ExitReason
	ExitMessage string
	// CloseTicket is set when the agent reported DONE.
	CloseTicket bool
	// ExitNote is persisted after the iteration is recorded.
	ExitNote string
}
