// Package domain defines the ticket model shared across programmator.
package domain

import "github.com/ticketloop/programmator/internal/protocol"

// Phase is one checklist item of a ticket. Name is the match key used when
// the completion state is written back to the store.
type Phase struct {
	Name      string
	Completed bool
}

// Ticket is a unit of work as read from the ticket store. It is a snapshot:
// callers re-fetch it instead of holding on to it between iterations.
type Ticket struct {
	ID    string
	Title string
	// Status mirrors the store's lifecycle status (see protocol.Ticket* constants).
	Status string
	Body   string
	Phases []Phase
}

// CurrentPhaseIndex returns the index of the first incomplete phase, or -1.
func (t *Ticket) CurrentPhaseIndex() int {
	for i := range t.Phases {
		if !t.Phases[i].Completed {
			return i
		}
	}
	return -1
}

// CurrentPhase returns the first incomplete phase, or nil if there is none.
func (t *Ticket) CurrentPhase() *Phase {
	if i := t.CurrentPhaseIndex(); i >= 0 {
		return &t.Phases[i]
	}
	return nil
}

// CurrentPhaseName returns the current phase name, or protocol.NullPhase.
func (t *Ticket) CurrentPhaseName() string {
	if p := t.CurrentPhase(); p != nil {
		return p.Name
	}
	return protocol.NullPhase
}

// AllPhasesComplete reports whether no incomplete phase remains. A ticket
// without a checklist counts as complete.
func (t *Ticket) AllPhasesComplete() bool {
	return t.CurrentPhaseIndex() < 0
}

// CompletedCount returns the number of completed phases.
func (t *Ticket) CompletedCount() int {
	n := 0
	for _, p := range t.Phases {
		if p.Completed {
			n++
		}
	}
	return n
}

// Clone returns a copy that shares no slices with t.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.Phases = append([]Phase(nil), t.Phases...)
	return &c
}
