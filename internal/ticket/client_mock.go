package ticket

import (
	"sync"

	"github.com/ticketloop/programmator/internal/domain"
)

// PhaseUpdate is one recorded MockClient.UpdatePhase call.
type PhaseUpdate struct {
	ID        string
	PhaseName string
	Completed bool
}

// MockClient records calls and lets tests override each operation.
type MockClient struct {
	mu sync.Mutex

	GetFunc         func(id string) (*domain.Ticket, error)
	UpdatePhaseFunc func(id, phaseName string, completed bool) error
	AddNoteFunc     func(id, note string) error
	SetStatusFunc   func(id, status string) error

	GetCalls         []string
	UpdatePhaseCalls []PhaseUpdate
	AddNoteCalls     []struct{ ID, Note string }
	SetStatusCalls   []struct{ ID, Status string }
}

var _ Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		GetCalls:         make([]string, 0),
		UpdatePhaseCalls: make([]PhaseUpdate, 0),
		AddNoteCalls:     make([]struct{ ID, Note string }, 0),
		SetStatusCalls:   make([]struct{ ID, Status string }, 0),
	}
}

func (m *MockClient) Get(id string) (*domain.Ticket, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, id)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(id)
	}
	return &domain.Ticket{ID: id}, nil
}

func (m *MockClient) UpdatePhase(id, phaseName string, completed bool) error {
	m.mu.Lock()
	m.UpdatePhaseCalls = append(m.UpdatePhaseCalls, PhaseUpdate{id, phaseName, completed})
	m.mu.Unlock()

	if m.UpdatePhaseFunc != nil {
		return m.UpdatePhaseFunc(id, phaseName, completed)
	}
	return nil
}

func (m *MockClient) AddNote(id, note string) error {
	m.mu.Lock()
	m.AddNoteCalls = append(m.AddNoteCalls, struct{ ID, Note string }{id, note})
	m.mu.Unlock()

	if m.AddNoteFunc != nil {
		return m.AddNoteFunc(id, note)
	}
	return nil
}

func (m *MockClient) SetStatus(id, status string) error {
	m.mu.Lock()
	m.SetStatusCalls = append(m.SetStatusCalls, struct{ ID, Status string }{id, status})
	m.mu.Unlock()

	if m.SetStatusFunc != nil {
		return m.SetStatusFunc(id, status)
	}
	return nil
}

// Notes returns the recorded note texts in call order.
func (m *MockClient) Notes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	notes := make([]string, len(m.AddNoteCalls))
	for i, c := range m.AddNoteCalls {
		notes[i] = c.Note
	}
	return notes
}

// Statuses returns the recorded status values in call order.
func (m *MockClient) Statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make([]string, len(m.SetStatusCalls))
	for i, c := range m.SetStatusCalls {
		statuses[i] = c.Status
	}
	return statuses
}
