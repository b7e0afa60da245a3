package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketloop/programmator/internal/ticket"
)

func TestExtractNotesSection(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "no notes section",
			content:  "# Ticket\n\nSome content",
			expected: "",
		},
		{
			name:     "notes section at end",
			content:  "# Ticket\n\n## Notes\n\nNote 1\nNote 2",
			expected: "## Notes\n\nNote 1\nNote 2",
		},
		{
			name: "notes section in middle",
			content: `# Ticket

## Notes

progress: something

## Acceptance`,
			expected: "## Notes\n\nprogress: something\n",
		},
		{
			name:     "empty notes section",
			content:  "# Ticket\n\n## Notes\n\n## Other",
			expected: "## Notes\n",
		},
		{
			name:     "heading only",
			content:  "# Ticket\n\n## Notes",
			expected: "## Notes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractNotesSection(tt.content))
		})
	}
}

func TestIsProgrammatorNote(t *testing.T) {
	tests := []struct {
		line     string
		expected bool
	}{
		{"progress: completed phase 1", true},
		{"error: something went wrong", true},
		{"[iter 5] Did some work", true},
		{"PROGRESS: uppercase", true},
		{"decision: using Go instead", false},
		{"", false},
		{"Some other note", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, isProgrammatorNote(tt.line), tt.line)
	}
}

func TestFormatNoteLine(t *testing.T) {
	tests := []struct {
		line     string
		expected string
	}{
		{"progress: did something", "progress: did something"},
		{"**2024-01-15T10:30:00Z** progress: did something", "[2024-01-15T10:30:00Z] progress: did something"},
		{"**test** something", "[test] something"},
		{"****", "****"},
		{"**unterminated", "**unterminated"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatNoteLine(tt.line), tt.line)
	}
}

const ticketWithNotes = `---
id: t-1
status: in_progress
---
# Add retry

## Design
- [x] Plan

## Notes

**2026-01-15 10:30** [iter 1] Completed: Plan
**2026-01-15 10:31** progress: [iter 1] Completed Plan
**2026-01-15 10:32** decision: keep the old API
`

func TestShowTicketNotes(t *testing.T) {
	runner := ticket.NewFakeRunner()
	runner.Script("tk", []string{"show", "t-1"}, []byte(ticketWithNotes))

	var out bytes.Buffer
	logsAll = false
	require.NoError(t, showTicketNotes(&out, runner, "tk", "t-1"))

	got := out.String()
	assert.Contains(t, got, "Notes for ticket t-1:")
	assert.Contains(t, got, "[2026-01-15 10:30] [iter 1] Completed: Plan")
	assert.Contains(t, got, "[2026-01-15 10:31] progress: [iter 1] Completed Plan")
	assert.NotContains(t, got, "decision")
}

func TestShowTicketNotes_All(t *testing.T) {
	runner := ticket.NewFakeRunner()
	runner.Script(ticket.DefaultCommand, []string{"show", "t-1"}, []byte(ticketWithNotes))

	logsAll = true
	defer func() { logsAll = false }()

	var out bytes.Buffer
	require.NoError(t, showTicketNotes(&out, runner, "", "t-1"))
	assert.Contains(t, out.String(), "decision: keep the old API")
}

func TestShowTicketNotes_NoNotes(t *testing.T) {
	runner := ticket.NewFakeRunner()
	runner.Script("tk", []string{"show", "t-2"}, []byte("# Empty\n"))

	var out bytes.Buffer
	require.NoError(t, showTicketNotes(&out, runner, "tk", "t-2"))
	assert.Contains(t, out.String(), "No notes found for ticket t-2")
}

func TestShowTicketNotes_CommandFails(t *testing.T) {
	runner := ticket.NewFakeRunner()
	runner.Fail("tk", []string{"show", "t-3"}, errors.New("not found"))

	err := showTicketNotes(&bytes.Buffer{}, runner, "tk", "t-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get ticket t-3")
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListLogs(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "20260129-120000-t-1.log", "a")
	writeLog(t, dir, "20260129-130000-t-2.log", "b")
	writeLog(t, dir, "20260129-140000-t-3.log", "c")

	logsRecent = 2
	defer func() { logsRecent = 10 }()

	var out bytes.Buffer
	require.NoError(t, listLogs(&out, dir, ""))
	got := out.String()
	assert.Contains(t, got, "showing 2")
	assert.Contains(t, got, "t-3")
	assert.Contains(t, got, "t-2")
	assert.NotContains(t, got, "t-1.log")
}

func TestListLogs_Empty(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, listLogs(&out, dir, ""))
	assert.Contains(t, out.String(), "No log files found.")
	assert.Contains(t, out.String(), dir)
}

func TestShowTicketLog(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "20260129-120000-t-1.log", "old run\n")
	writeLog(t, dir, "20260130-120000-t-1.log", "new run\n")

	var out bytes.Buffer
	require.NoError(t, showTicketLog(&out, dir, "t-1"))
	assert.Contains(t, out.String(), "Log for t-1")
	assert.Contains(t, out.String(), "new run")
	assert.NotContains(t, out.String(), "old run")

	out.Reset()
	require.NoError(t, showTicketLog(&out, dir, "t-9"))
	assert.Contains(t, out.String(), "No logs found for ticket: t-9")
}
