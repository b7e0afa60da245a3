// Package protocol defines the vocabulary shared between programmator and the
// coding agent: status values, the status block key, the null-phase sentinel,
// ticket status values and note prefixes.
package protocol

// Status is the status reported by the agent in a PROGRAMMATOR_STATUS block.
type Status string

const (
	StatusContinue Status = "CONTINUE"
	StatusDone     Status = "DONE"
	StatusBlocked  Status = "BLOCKED"
)

func (s Status) String() string { return string(s) }

// IsValid reports whether s is a recognised status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusContinue, StatusDone, StatusBlocked:
		return true
	default:
		return false
	}
}

// Normalize maps unrecognised values to StatusContinue.
func (s Status) Normalize() Status {
	if s.IsValid() {
		return s
	}
	return StatusContinue
}

// StatusBlockKey is the sentinel line that introduces a status block.
const StatusBlockKey = "PROGRAMMATOR_STATUS"

// NullPhase is written in the status block when no phase was completed, and
// used as the phase placeholder in prompts once every phase is done.
const NullPhase = "null"

// NoStatusBlockError is recorded as the iteration error when the agent output
// carried no parseable status block.
const NoStatusBlockError = "no_status_block"

// Ticket status values.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketClosed     = "closed"
)

// Note prefixes used when persisting notes to the ticket store.
const (
	NoteProgress = "progress"
	NoteError    = "error"
)
