// Package parser extracts and parses PROGRAMMATOR_STATUS blocks from agent output.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ticketloop/programmator/internal/protocol"
)

// Status is an alias for protocol.Status.
type Status = protocol.Status

const (
	StatusContinue = protocol.StatusContinue
	StatusDone     = protocol.StatusDone
	StatusBlocked  = protocol.StatusBlocked
)

var (
	// ErrNoStatusBlock is returned by Extract when the output has no status block.
	ErrNoStatusBlock = errors.New("no status block found")
	// ErrMalformedStatus is returned by Extract when the block does not decode to a mapping.
	ErrMalformedStatus = errors.New("malformed status block")
)

// ParsedStatus is the normalized report of one agent invocation.
// An empty PhaseCompleted means no phase was completed; an empty Error means
// no error was reported.
type ParsedStatus struct {
	PhaseCompleted string
	Status         Status
	FilesChanged   []string
	Summary        string
	Error          string
}

// HasError reports whether the agent reported an error.
func (p *ParsedStatus) HasError() bool {
	return p != nil && p.Error != ""
}

// bareBlockRe matches the sentinel line followed by one or more indented lines.
var bareBlockRe = regexp.MustCompile(protocol.StatusBlockKey + `:\s*\n((?:[ \t]+.+\n?)+)`)

// fencedBlockRe matches the same block wrapped in a fenced code block.
var fencedBlockRe = regexp.MustCompile("```\\s*\\n?" + protocol.StatusBlockKey + `:\s*\n((?:[ \t]+.+\n?)+)` + "```")

// rawStatus mirrors the block's keys before normalization.
type rawStatus struct {
	PhaseCompleted string     `yaml:"phase_completed"`
	Status         string     `yaml:"status"`
	FilesChanged   stringList `yaml:"files_changed"`
	Summary        string     `yaml:"summary"`
	Error          string     `yaml:"error"`
}

// stringList accepts either a sequence or a single scalar.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.ShortTag() == "!!null" {
			*l = nil
			return nil
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("files_changed: unexpected node kind %d at line %d", value.Kind, value.Line)
	}
}

// Extract locates and decodes the first status block in output.
// The bare form is tried first, the fenced form only when no bare block exists.
func Extract(output string) (*ParsedStatus, error) {
	block, ok := findBlock(output)
	if !ok {
		return nil, ErrNoStatusBlock
	}
	return decode(block)
}

// Parse is Extract with both failure kinds folded into a nil result.
func Parse(output string) *ParsedStatus {
	status, err := Extract(output)
	if err != nil {
		return nil
	}
	return status
}

func findBlock(output string) (string, bool) {
	if m := bareBlockRe.FindStringSubmatch(output); m != nil {
		return m[1], true
	}
	if m := fencedBlockRe.FindStringSubmatch(output); m != nil {
		return m[1], true
	}
	return "", false
}

func decode(block string) (*ParsedStatus, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level is not a mapping", ErrMalformedStatus)
	}

	mapping := lastKeyWins(doc.Content[0])
	var raw rawStatus
	if err := mapping.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}

	phase := raw.PhaseCompleted
	if phase == protocol.NullPhase {
		phase = ""
	}
	files := []string(raw.FilesChanged)
	if files == nil {
		files = []string{}
	}

	return &ParsedStatus{
		PhaseCompleted: phase,
		Status:         Status(strings.TrimSpace(raw.Status)).Normalize(),
		FilesChanged:   files,
		Summary:        raw.Summary,
		Error:          raw.Error,
	}, nil
}

// lastKeyWins returns a copy of mapping with each repeated key reduced to its
// final occurrence.
func lastKeyWins(mapping *yaml.Node) *yaml.Node {
	last := make(map[string]int, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		last[mapping.Content[i].Value] = i
	}
	if len(last) == len(mapping.Content)/2 {
		return mapping
	}

	out := *mapping
	out.Content = make([]*yaml.Node, 0, 2*len(last))
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if last[mapping.Content[i].Value] == i {
			out.Content = append(out.Content, mapping.Content[i], mapping.Content[i+1])
		}
	}
	return &out
}
