// Package cmd implements the CLI commands for programmator.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ticketloop/programmator/internal/debug"
)

// ExitError carries a non-zero process exit status without an error message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "programmator",
	Short: "Ticket-driven autonomous Claude Code loop",
	Long: `Programmator reads a ticket, identifies the current phase, invokes Claude Code
with a structured prompt, parses the status block in its response, and loops
until all phases are complete or a safety limit is reached.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if debugFlag {
			debug.Configure(true, os.Stderr)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Write debug logs to stderr (same as PROGRAMMATOR_DEBUG=1)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
}


// Execute runs the root command and returns the process exit status.
func Execute() int {
	return exitCode(rootCmd.Execute())
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
