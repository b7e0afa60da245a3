// Package prompt renders the per-iteration instructions sent to the agent.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ticketloop/programmator/internal/config"
	"github.com/ticketloop/programmator/internal/domain"
	"github.com/ticketloop/programmator/internal/protocol"
)

const (
	noNotes           = "(No previous notes)"
	allPhasesComplete = "All phases complete"
)

// Builder renders prompts from a parsed template.
type Builder struct {
	tmpl *template.Template
}

// Data is what a prompt template can reference.
type Data struct {
	ID           string
	Title        string
	Body         string
	Notes        string
	CurrentPhase string
	PhaseName    string
}

// NewBuilder parses tmpl and dry-runs it so that references to unknown
// fields fail here rather than on the first iteration.
func NewBuilder(tmpl string) (*Builder, error) {
	t, err := template.New("phased").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	if err := t.Execute(discard{}, Data{}); err != nil {
		return nil, fmt.Errorf("check prompt template: %w", err)
	}
	return &Builder{tmpl: t}, nil
}

// FromPrompts returns a builder for the loaded prompt set.
func FromPrompts(p *config.Prompts) (*Builder, error) {
	if p == nil {
		p = config.EmbeddedPrompts()
	}
	b, err := NewBuilder(p.Phased)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.PhasedSource, err)
	}
	return b, nil
}

// Default returns a builder for the embedded template.
func Default() *Builder {
	b, err := FromPrompts(nil)
	if err != nil {
		panic(err)
	}
	return b
}

// Build renders the prompt for t with the notes accumulated so far.
func (b *Builder) Build(t *domain.Ticket, notes []string) (string, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, NewData(t, notes)); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", t.ID, err)
	}
	return sb.String(), nil
}

// NewData derives template values from a ticket snapshot.
func NewData(t *domain.Ticket, notes []string) Data {
	d := Data{
		ID:           t.ID,
		Title:        t.Title,
		Body:         t.Body,
		Notes:        FormatNotes(notes),
		CurrentPhase: allPhasesComplete,
		PhaseName:    protocol.NullPhase,
	}
	if p := t.CurrentPhase(); p != nil {
		d.CurrentPhase = fmt.Sprintf("**%s**", p.Name)
		d.PhaseName = p.Name
	}
	return d
}

// FormatNotes renders notes as a markdown list.
func FormatNotes(notes []string) string {
	if len(notes) == 0 {
		return noNotes
	}
	lines := make([]string, 0, len(notes))
	for _, note := range notes {
		lines = append(lines, "- "+note)
	}
	return strings.Join(lines, "\n")
}

// BuildPhaseList renders phases as a markdown checklist.
func BuildPhaseList(phases []domain.Phase) string {
	lines := make([]string, 0, len(phases))
	for _, p := range phases {
		checkbox := "[ ]"
		if p.Completed {
			checkbox = "[x]"
		}
		lines = append(lines, fmt.Sprintf("- %s %s", checkbox, p.Name))
	}
	return strings.Join(lines, "\n")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
