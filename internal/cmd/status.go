package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/ticketloop/programmator/internal/dirs"
	"github.com/ticketloop/programmator/internal/progress"
	"github.com/ticketloop/programmator/internal/session"
)

var (
	statusJSON  bool
	statusLines int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active loop status",
	Long: `Show the status of the active programmator session.

Displays the ticket being worked on, the working directory, the start time,
the process ID and the latest entries of the run's progress log. Stale or
corrupted session files are removed.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the session as JSON")
	statusCmd.Flags().IntVar(&statusLines, "lines", 5, "Number of progress log lines to show")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return printStatus(cmd.OutOrStdout(), dirs.SessionFile(), time.Now())
}

func printStatus(out io.Writer, path string, now time.Time) error {
	info, err := session.Active(path)
	if errors.Is(err, session.ErrNoSession) {
		if statusJSON {
			fmt.Fprint(out, string(pretty.Pretty([]byte(`{"active":false}`))))
			return nil
		}
		fmt.Fprintln(out, "No active programmator sessions")
		return nil
	}
	if err != nil {
		return err
	}

	if statusJSON {
		doc, err := info.JSON()
		if err != nil {
			return err
		}
		doc, err = sjson.SetBytes(doc, "active", true)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(pretty.Pretty(doc)))
		return nil
	}

	fmt.Fprintln(out, "Active programmator session:")
	fmt.Fprintf(out, "  Ticket:      %s\n", info.TicketID)
	fmt.Fprintf(out, "  Working dir: %s\n", info.WorkingDir)
	if !info.StartedAt.IsZero() {
		fmt.Fprintf(out, "  Started:     %s (%s ago)\n",
			info.StartedAt.Local().Format("15:04:05"),
			progress.FormatDuration(now.Sub(info.StartedAt)))
	}
	fmt.Fprintf(out, "  PID:         %d\n", info.PID)

	if info.LogPath == "" {
		return nil
	}
	fmt.Fprintf(out, "  Log:         %s\n", info.LogPath)
	if lines := tailLines(info.LogPath, statusLines); len(lines) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Recent progress:")
		for _, line := range lines {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}

// tailLines returns the last n non-blank lines of path.
func tailLines(path string, n int) []string {
	if n <= 0 {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path from our own session file
	if err != nil {
		return nil
	}
	var lines []string
	for line := range strings.SplitSeq(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
