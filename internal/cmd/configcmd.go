package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ticketloop/programmator/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage programmator configuration",
	Long:  `View and manage programmator configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration with source annotations",
	Long: `Show the fully resolved configuration and where each value came from.

Configuration is loaded from multiple sources with the following precedence:
  1. Embedded defaults (built into binary)
  2. Global config (~/.config/programmator/config.yaml)
  3. Environment variables
  4. Local config (.programmator/config.yaml)
  5. CLI flags (highest precedence)`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	printConfig(cmd.OutOrStdout(), cfg)
	return nil
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "# Programmator Configuration")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "## Sources (in order of precedence)")
	for _, src := range cfg.Sources() {
		fmt.Fprintf(out, "  - %s\n", src)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Directories")
	fmt.Fprintf(out, "  Global config: %s\n", cfg.ConfigDir())
	if cfg.LocalDir() != "" {
		fmt.Fprintf(out, "  Local config:  %s\n", cfg.LocalDir())
	} else {
		fmt.Fprintln(out, "  Local config:  (none detected)")
	}
	fmt.Fprintf(out, "  Tickets:       %s\n", cfg.EffectiveTicketsDir())
	fmt.Fprintf(out, "  Logs:          %s\n", cfg.EffectiveLogsDir())
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Loop Settings")
	fmt.Fprintf(out, "  max_iterations:   %d\n", cfg.MaxIterations)
	fmt.Fprintf(out, "  stagnation_limit: %d\n", cfg.StagnationLimit)
	fmt.Fprintf(out, "  timeout:          %ds\n", cfg.Timeout)
	fmt.Fprintf(out, "  streaming:        %t\n", cfg.Streaming)
	fmt.Fprintf(out, "  ticket_command:   %s\n", cfg.TicketCommand)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Claude Settings")
	if flags := cfg.ClaudeFlagList(); len(flags) > 0 {
		fmt.Fprintln(out, "  claude_flags:")
		for _, f := range flags {
			fmt.Fprintf(out, "    - %s\n", f)
		}
	} else {
		fmt.Fprintln(out, "  claude_flags:      (none)")
	}
	if cfg.ClaudeConfigDir != "" {
		fmt.Fprintf(out, "  claude_config_dir: %s\n", cfg.ClaudeConfigDir)
	} else {
		fmt.Fprintln(out, "  claude_config_dir: (default)")
	}
	if cfg.Prompts != nil && cfg.Prompts.PhasedSource != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "## Prompts")
		fmt.Fprintf(out, "  phased: %s\n", cfg.Prompts.PhasedSource)
	}
}
