// Package ticket adapts the external ticket CLI and its markdown files to the
// domain model.
package ticket

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/ticketloop/programmator/internal/debug"
	"github.com/ticketloop/programmator/internal/dirs"
	"github.com/ticketloop/programmator/internal/domain"
)

// DefaultCommand is the ticket CLI executable.
const DefaultCommand = "ticket"

// Client is the ticket store used by the loop. Every error it returns is
// fatal to the run.
type Client interface {
	Get(id string) (*domain.Ticket, error)
	SetStatus(id, status string) error
	AddNote(id, note string) error
	// UpdatePhase rewrites the checklist line of the named phase. A name that
	// matches no line leaves the ticket untouched and is not an error.
	UpdatePhase(id, phaseName string, completed bool) error
}

// CLIClient talks to the ticket CLI for show, add-note and status, and edits
// the ticket's markdown file directly for phase toggles.
type CLIClient struct {
	command    string
	ticketsDir string
	runner     Runner
}

var _ Client = (*CLIClient)(nil)

type Option func(*CLIClient)

// WithCommand overrides the ticket CLI executable.
func WithCommand(command string) Option {
	return func(c *CLIClient) {
		if command != "" {
			c.command = command
		}
	}
}

// WithTicketsDir overrides the directory holding <id>.md files.
func WithTicketsDir(dir string) Option {
	return func(c *CLIClient) {
		if dir != "" {
			c.ticketsDir = dir
		}
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(c *CLIClient) {
		if r != nil {
			c.runner = r
		}
	}
}

func NewClient(opts ...Option) *CLIClient {
	c := &CLIClient{
		command:    DefaultCommand,
		ticketsDir: dirs.TicketsDir(),
		runner:     ExecRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CLIClient) Get(id string) (*domain.Ticket, error) {
	out, err := c.runner.Run(c.command, "show", id)
	if err != nil {
		return nil, fmt.Errorf("show ticket %s: %w", id, err)
	}
	return Parse(id, string(out)), nil
}

func (c *CLIClient) AddNote(id, note string) error {
	if _, err := c.runner.Run(c.command, "add-note", id, note); err != nil {
		return fmt.Errorf("add note to ticket %s: %w", id, err)
	}
	return nil
}

func (c *CLIClient) SetStatus(id, status string) error {
	if _, err := c.runner.Run(c.command, "status", id, status); err != nil {
		return fmt.Errorf("set ticket %s status to %s: %w", id, status, err)
	}
	return nil
}

// Path returns the markdown file backing the ticket.
func (c *CLIClient) Path(id string) string {
	return filepath.Join(c.ticketsDir, id+".md")
}

func (c *CLIClient) UpdatePhase(id, phaseName string, completed bool) error {
	name := strings.TrimSpace(phaseName)
	if name == "" {
		return nil
	}

	path := c.Path(id)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("update phase in ticket %s: %w", id, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("update phase in ticket %s: %w", id, err)
	}

	content := string(data)
	updated, changed := togglePhase(content, name, completed)
	if !changed {
		debug.Logf("ticket %s: no %q line to toggle", id, name)
		return nil
	}

	if debug.Enabled() {
		debug.Logf("ticket %s phase update:\n%s", id, udiff.Unified(path, path, content, updated))
	}

	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return fmt.Errorf("update phase in ticket %s: %w", id, err)
	}
	return nil
}

// togglePhase rewrites the first "- <opposite> <name>" line to the requested
// state. The name must match up to the end of the line.
func togglePhase(content, name string, completed bool) (string, bool) {
	checkbox, opposite := "[x]", "[ ]"
	if !completed {
		checkbox, opposite = opposite, checkbox
	}

	re := regexp.MustCompile(`(?m)(- ` + regexp.QuoteMeta(opposite) + ` ` + regexp.QuoteMeta(name) + `)[ \t\r]*$`)
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return content, false
	}

	start, end := loc[2], loc[3]
	return content[:start] + "- " + checkbox + " " + name + content[end:], true
}
