package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ticketloop/programmator/internal/cli"
	"github.com/ticketloop/programmator/internal/config"
	"github.com/ticketloop/programmator/internal/dirs"
	"github.com/ticketloop/programmator/internal/git"
	"github.com/ticketloop/programmator/internal/llm/claude"
	"github.com/ticketloop/programmator/internal/loop"
	"github.com/ticketloop/programmator/internal/progress"
	"github.com/ticketloop/programmator/internal/prompt"
	"github.com/ticketloop/programmator/internal/session"
	"github.com/ticketloop/programmator/internal/ticket"
	"github.com/ticketloop/programmator/internal/tui"
)

var (
	workingDir      string
	maxIterations   int
	stagnationLimit int
	timeout         int
	noTUI           bool
	streaming       bool
	claudeArgs      []string
)

var startCmd = &cobra.Command{
	Use:   "start <ticket-id>",
	Short: "Start loop on ticket",
	Long: `Start the programmator loop on a ticket.

The loop will:
1. Read the ticket and identify the current phase
2. Invoke Claude Code with a structured prompt
3. Parse the PROGRAMMATOR_STATUS block from the response
4. Loop until all phases are complete or a safety limit is reached

On a terminal the TUI shows the iteration and stagnation counters, the phase
checklist and live output from Claude. Without a terminal, or with --no-tui,
events are printed as plain lines.

Controls (TUI):
  p - Pause/resume the loop
  s - Stop after the current iteration
  q - Quit (stops the loop if running)
  ↑/↓ - Scroll output

Ctrl+C in plain mode stops after the current iteration; a second Ctrl+C
aborts the running invocation.

Exit status: 0 when all phases are complete, 130 when stopped by the user,
1 for any other exit reason.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVarP(&workingDir, "dir", "d", "", "Working directory for Claude (default: current directory)")
	startCmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "Maximum iterations (overrides PROGRAMMATOR_MAX_ITERATIONS)")
	startCmd.Flags().IntVar(&stagnationLimit, "stagnation-limit", 0, "Stagnation limit (overrides PROGRAMMATOR_STAGNATION_LIMIT)")
	startCmd.Flags().IntVar(&timeout, "timeout", 0, "Timeout per Claude invocation in seconds (overrides PROGRAMMATOR_TIMEOUT)")
	startCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print plain output instead of the TUI")
	startCmd.Flags().BoolVar(&streaming, "streaming", true, "Use Claude's stream-json output")
	startCmd.Flags().StringArrayVar(&claudeArgs, "claude-arg", nil, "Extra argument passed to claude (repeatable)")
}

func runStart(cmd *cobra.Command, args []string) error {
	ticketID := args[0]

	wd, err := resolveWorkingDir(workingDir)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, wd)
	if err != nil {
		return err
	}
	builder, err := prompt.FromPrompts(cfg.Prompts)
	if err != nil {
		return err
	}
	safetyConfig := cfg.ToSafetyConfig()

	client := ticket.NewClient(
		ticket.WithCommand(cfg.TicketCommand),
		ticket.WithTicketsDir(cfg.EffectiveTicketsDir()),
	)
	invoker := claude.New(claude.Config{ClaudeConfigDir: cfg.ClaudeConfigDir})

	stderr := cmd.ErrOrStderr()
	stdout := cmd.OutOrStdout()

	opts := []loop.Option{
		loop.WithWorkingDir(wd),
		loop.WithStreaming(cfg.Streaming),
		loop.WithPromptBuilder(builder),
		loop.WithExtraFlags(claudeArgs...),
	}

	logger, err := progress.NewLogger(progress.Config{
		LogsDir:  cfg.EffectiveLogsDir(),
		TicketID: ticketID,
		WorkDir:  wd,
	})
	logPath := ""
	if err != nil {
		fmt.Fprintf(stderr, "Warning: could not create progress log: %v\n", err)
	} else {
		defer logger.Close()
		logPath = logger.Path()
		opts = append(opts, loop.WithProgressLogger(logger))
	}

	sessionPath := dirs.SessionFile()
	pid := os.Getpid()
	if err := session.Write(sessionPath, session.Info{
		TicketID:   ticketID,
		WorkingDir: wd,
		StartedAt:  time.Now(),
		PID:        pid,
		LogPath:    logPath,
	}); err != nil {
		fmt.Fprintf(stderr, "Warning: could not write session file: %v\n", err)
	}
	defer func() { _ = session.RemoveIfOwned(sessionPath, pid) }()

	gitInfo, inRepo := git.Describe(wd)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var result *loop.Result
	var runErr error

	if useTUI(noTUI) {
		t := tui.New(safetyConfig)
		t.SetWorkingDir(wd)
		t.SetLogPath(logPath)
		t.SetNoticeWriter(stderr)
		if inRepo {
			t.SetGitInfo(gitInfo)
		}
		l := loop.New(safetyConfig, client, invoker, append(opts, t.LoopOptions()...)...)
		release := handleSignals(cancel, l.Stop, io.Discard)
		result, runErr = t.Run(ctx, l, ticketID)
		release()
	} else {
		isTTY := isTerminal(os.Stdout)
		w := cli.NewWriter(stdout, isTTY, terminalWidth(os.Stdout), safetyConfig)
		if inRepo {
			w.SetGitInfo(gitInfo)
		}
		l := loop.New(safetyConfig, client, invoker, append(opts,
			loop.WithEventHandler(w.WriteEvent),
			loop.WithStateHandler(w.UpdateState),
			loop.WithProcessHandlers(w.SetPID, func() { w.SetPID(0) }),
		)...)
		release := handleSignals(cancel, l.Stop, stderr)
		result, runErr = l.Run(ctx, ticketID)
		release()
		w.ClearFooter()
	}

	cli.PrintSummary(stdout, ticketID, result)
	if logPath != "" {
		fmt.Fprintf(stdout, "Log:           %s\n", logPath)
	}
	if runErr != nil {
		return fmt.Errorf("loop error: %w", runErr)
	}
	if result != nil {
		if code := cli.ExitCode(result.ExitReason); code != 0 {
			return &ExitError{Code: code}
		}
	}
	return nil
}

// loadConfig resolves configuration for wd and applies the start flags.
func loadConfig(cmd *cobra.Command, wd string) (*config.Config, error) {
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	overrides := config.CLIOverrides{
		MaxIterations:   maxIterations,
		StagnationLimit: stagnationLimit,
		Timeout:         timeout,
	}
	if cmd.Flags().Changed("streaming") {
		overrides.Streaming = &streaming
	}
	cfg.ApplyCLIFlags(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveWorkingDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		return wd, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", abs)
	}
	return abs, nil
}

// handleSignals stops the loop on the first interrupt and cancels the run on
// the second. The returned func releases the handler.
func handleSignals(cancel context.CancelFunc, stop func(), notice io.Writer) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		count := 0
		for {
			select {
			case <-sigs:
				count++
				if count == 1 {
					fmt.Fprintln(notice, "Stopping after the current iteration (interrupt again to abort)...")
					stop()
					continue
				}
				cancel()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func useTUI(disabled bool) bool {
	return !disabled && isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

func terminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd())) //nolint:gosec // fd fits in int
	if err != nil {
		return 0
	}
	return w
}
