package llm

import "github.com/ticketloop/programmator/internal/protocol"

// TimeoutBlockedStatus returns the status block substituted for the output
// of an invocation that hit its timeout.
func TimeoutBlockedStatus() string {
	return protocol.StatusBlockKey + `:
  phase_completed: ` + protocol.NullPhase + `
  status: ` + string(protocol.StatusBlocked) + `
  files_changed: []
  summary: "Timeout"
  error: "Claude invocation timed out"
`
}
