package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/ticketloop/programmator/internal/loop"
	"github.com/ticketloop/programmator/internal/safety"
)

// PrintSummary writes the end-of-run report.
func PrintSummary(out io.Writer, ticketID string, r *loop.Result) {
	if r == nil {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Ticket:        %s\n", ticketID)
	fmt.Fprintf(out, "Exit reason:   %s\n", r.ExitReason)
	if r.ExitMessage != "" && r.ExitReason != safety.ExitReasonComplete {
		fmt.Fprintf(out, "Message:       %s\n", r.ExitMessage)
	}
	fmt.Fprintf(out, "Iterations:    %d\n", r.Iterations)
	fmt.Fprintf(out, "Files changed: %d\n", len(r.TotalFilesChanged))
	for _, f := range r.TotalFilesChanged {
		fmt.Fprintf(out, "  - %s\n", f)
	}
	fmt.Fprintf(out, "Duration:      %s\n", FormatElapsed(r.Duration))
}

// ExitCode maps an exit reason to the process exit status.
func ExitCode(reason safety.ExitReason) int {
	switch reason {
	case safety.ExitReasonComplete:
		return 0
	case safety.ExitReasonUserInterrupt:
		return 130
	default:
		return 1
	}
}

// FormatElapsed renders d as "45s", "1m 16s" or "2h 3m".
func FormatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	m := total / 60
	s := total % 60
	if m < 60 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := m / 60
	m %= 60
	return fmt.Sprintf("%dh %dm", h, m)
}
