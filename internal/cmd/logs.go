package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ticketloop/programmator/internal/progress"
	"github.com/ticketloop/programmator/internal/ticket"
)

var (
	logsFollow bool
	logsAll    bool
	logsList   bool
	logsNotes  bool
	logsRecent int
)

// notesRunner runs the ticket CLI for --notes.
var notesRunner ticket.Runner = ticket.ExecRunner{}

var logsCmd = &cobra.Command{
	Use:   "logs [ticket-id]",
	Short: "Show execution logs",
	Long: `Show execution logs for a ticket.

Every run writes a progress log to the logs directory. Without flags the most
recent log for the ticket is printed.

Options:
  --list, -l       List recent log files
  --follow, -f     Follow the active or most recent log file
  --recent N       Number of log files to list (default: 10)
  --notes          Show the notes programmator added to the ticket
  --all, -a        With --notes, show every note

Examples:
  programmator logs t-1234           # Show the latest log for a ticket
  programmator logs t-1234 --notes   # Show progress notes from the ticket
  programmator logs -l               # List recent logs
  programmator logs -f               # Follow the active session`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output in real-time")
	logsCmd.Flags().BoolVarP(&logsAll, "all", "a", false, "Show all notes, not just progress/error (with --notes)")
	logsCmd.Flags().BoolVarP(&logsList, "list", "l", false, "List recent log files")
	logsCmd.Flags().BoolVar(&logsNotes, "notes", false, "Show notes from the ticket instead of log files")
	logsCmd.Flags().IntVar(&logsRecent, "recent", 10, "Number of recent logs to show")
}

func runLogs(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := loadConfig(cmd, wd)
	if err != nil {
		return err
	}
	logsDir := cfg.EffectiveLogsDir()
	out := cmd.OutOrStdout()

	ticketID := ""
	if len(args) == 1 {
		ticketID = args[0]
	}

	switch {
	case logsList:
		return listLogs(out, logsDir, ticketID)
	case logsFollow:
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return followLogs(ctx, out, logsDir, ticketID)
	case ticketID == "":
		return listLogs(out, logsDir, "")
	case logsNotes:
		return showTicketNotes(out, notesRunner, cfg.TicketCommand, ticketID)
	default:
		return showTicketLog(out, logsDir, ticketID)
	}
}

// listLogs lists recent log files, newest first.
func listLogs(out io.Writer, logsDir, filter string) error {
	logs, err := progress.FindLogs(logsDir, filter)
	if err != nil {
		return fmt.Errorf("find logs: %w", err)
	}

	if len(logs) == 0 {
		fmt.Fprintln(out, "No log files found.")
		fmt.Fprintf(out, "Log directory: %s\n", logsDir)
		return nil
	}

	fmt.Fprintf(out, "Recent log files (showing %d):\n", min(logsRecent, len(logs)))
	fmt.Fprintln(out, strings.Repeat("-", 60))

	for i, lf := range logs {
		if i >= logsRecent {
			break
		}
		status := ""
		if lf.IsActive {
			status = " [ACTIVE]"
		}
		fmt.Fprintf(out, "  %s  %-30s%s\n", lf.Timestamp.Format("2006-01-02 15:04:05"), lf.TicketID, status)
		fmt.Fprintf(out, "    %s\n", lf.Path)
	}

	return nil
}

// showTicketLog prints the most recent log file for a ticket.
func showTicketLog(out io.Writer, logsDir, ticketID string) error {
	lf, err := progress.FindLatestLog(logsDir, ticketID)
	if err != nil {
		return fmt.Errorf("find log: %w", err)
	}
	if lf == nil {
		fmt.Fprintf(out, "No logs found for ticket: %s\n", ticketID)
		fmt.Fprintln(out, "Tip: Use 'programmator logs -l' to list all logs")
		return nil
	}

	fmt.Fprintf(out, "Log for %s (%s):\n", lf.TicketID, lf.Timestamp.Format("2006-01-02 15:04:05"))
	if lf.IsActive {
		fmt.Fprintln(out, "[ACTIVE SESSION]")
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))

	data, err := os.ReadFile(lf.Path)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// followLogs tails the active or most recent log file.
func followLogs(ctx context.Context, out io.Writer, logsDir, ticketID string) error {
	lf, err := progress.FindActiveLog(logsDir, ticketID)
	if err != nil {
		return fmt.Errorf("find active log: %w", err)
	}

	if lf == nil {
		lf, err = progress.FindLatestLog(logsDir, ticketID)
		if err != nil {
			return fmt.Errorf("find log: %w", err)
		}
		if lf == nil {
			fmt.Fprintln(out, "No logs found to follow.")
			return nil
		}
		fmt.Fprintf(out, "No active session found. Showing most recent log: %s\n", lf.TicketID)
	} else {
		fmt.Fprintf(out, "Following active session: %s\n", lf.TicketID)
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))

	return progress.Follow(ctx, lf.Path, out)
}

// showTicketNotes prints the programmator notes of a ticket via its CLI.
func showTicketNotes(out io.Writer, runner ticket.Runner, command, ticketID string) error {
	if command == "" {
		command = ticket.DefaultCommand
	}
	content, err := runner.Run(command, "show", ticketID)
	if err != nil {
		return fmt.Errorf("get ticket %s: %w", ticketID, err)
	}

	notes := extractNotesSection(string(content))
	if notes == "" {
		fmt.Fprintln(out, "No notes found for ticket", ticketID)
		fmt.Fprintln(out, "Tip: Use 'programmator logs -l' to list progress log files")
		return nil
	}

	fmt.Fprintf(out, "Notes for ticket %s:\n", ticketID)
	fmt.Fprintln(out, strings.Repeat("-", 40))

	for line := range strings.SplitSeq(notes, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "## Notes" {
			continue
		}
		if logsAll || isProgrammatorNote(line) {
			fmt.Fprintln(out, formatNoteLine(line))
		}
	}

	return nil
}

var nextSectionRe = regexp.MustCompile(`\n## [A-Z]`)

func extractNotesSection(content string) string {
	idx := strings.Index(content, "## Notes")
	if idx == -1 {
		return ""
	}

	section := content[idx:]
	// Skip the heading and its line break so the search starts on the next line.
	start := min(len("## Notes")+1, len(section))
	if loc := nextSectionRe.FindStringIndex(section[start:]); loc != nil {
		section = section[:start+loc[0]]
	}

	return section
}

func isProgrammatorNote(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{"progress:", "error:", "[iter "} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// formatNoteLine turns "**timestamp** text" into "[timestamp] text".
func formatNoteLine(line string) string {
	if !strings.HasPrefix(line, "**") {
		return line
	}
	end := strings.Index(line[2:], "**")
	if end <= 0 {
		return line
	}
	timestamp := line[2 : 2+end]
	rest := strings.TrimSpace(line[4+end:])
	return fmt.Sprintf("[%s] %s", timestamp, rest)
}
