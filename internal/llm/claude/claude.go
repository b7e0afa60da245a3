// Package claude runs the Claude CLI as the coding agent.
package claude

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ticketloop/programmator/internal/debug"
	"github.com/ticketloop/programmator/internal/llm"
)

// DefaultBinary is the executable looked up on PATH.
const DefaultBinary = "claude"

// Config holds environment configuration for Claude subprocesses.
type Config struct {
	// Binary overrides DefaultBinary.
	Binary          string
	ClaudeConfigDir string
}

// Invoker invokes the Claude CLI binary.
type Invoker struct {
	Env Config
}

var _ llm.Invoker = (*Invoker)(nil)

func New(env Config) *Invoker {
	return &Invoker{Env: env}
}

// BuildEnv constructs the environment of a Claude subprocess. An inherited
// CLAUDE_CONFIG_DIR is dropped unless one is configured explicitly.
func BuildEnv(cfg Config) []string {
	env := llm.FilterEnv(os.Environ(), "CLAUDE_CONFIG_DIR=")
	if cfg.ClaudeConfigDir != "" {
		env = append(env, "CLAUDE_CONFIG_DIR="+cfg.ClaudeConfigDir)
	}
	return env
}

// BuildArgs returns the command line arguments for one invocation.
func BuildArgs(opts llm.InvokeOptions) []string {
	args := []string{"--print"}
	args = append(args, opts.ExtraFlags...)
	if opts.Streaming {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	return args
}

// Invoke runs claude --print with the prompt on stdin. In text mode stderr is
// merged into the captured output; in streaming mode it is kept aside in
// InvokeResult.Stderr. A non-zero exit is reported through ExitCode, not as an
// error, so the caller's parser decides what the output means.
func (c *Invoker) Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (*llm.InvokeResult, error) {
	binary := c.Env.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	invokeCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.Command(binary, BuildArgs(opts)...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	cmd.Env = BuildEnv(c.Env)
	setupProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	var stderrBuf bytes.Buffer
	if opts.Streaming {
		cmd.Stderr = &stderrBuf
	} else {
		cmd.Stderr = cmd.Stdout
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	pg := watchProcessGroup(cmd, invokeCtx.Done())

	if opts.OnProcessStart != nil {
		opts.OnProcessStart(cmd.Process.Pid)
	}

	go func() {
		defer stdin.Close()
		if _, err := io.WriteString(stdin, prompt); err != nil {
			debug.Logf("claude: failed to write prompt to stdin: %v", err)
		}
	}()

	var output string
	if opts.Streaming {
		output = llm.ProcessStreamOutput(stdout, opts)
	} else {
		output = llm.ProcessTextOutput(stdout, opts)
	}

	waitErr := pg.Wait()
	if opts.OnProcessEnd != nil {
		opts.OnProcessEnd()
	}

	result := &llm.InvokeResult{
		Text:     output,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderrBuf.String()),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := invokeCtx.Err(); ctxErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("claude interrupted: %w", ctx.Err())
		}
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			debug.Logf("claude: timed out after %s", opts.Timeout)
			result.Text = llm.TimeoutBlockedStatus()
			result.TimedOut = true
			return result, nil
		}
	}

	if waitErr != nil {
		debug.Logf("claude: exited with code %d: %v", result.ExitCode, waitErr)
	}
	return result, nil
}
